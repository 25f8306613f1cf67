package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/upstream"
)

func sampleRecord() upstream.RawRecord {
	return upstream.RawRecord{
		RecordID: "rec-123",
		Fields: map[string]upstream.FieldValue{
			"fld_name_primary":   {Raw: map[string]any{"text": "小部件"}},
			"fld_name_en":        {Raw: "Widget"},
			"fld_price_normal":   {Raw: 19.999},
			"fld_price_discount": {Raw: 15.0},
			"fld_barcode":        {Raw: "012345678905"},
			"fld_link":           {Raw: "https://example.com/p/123"},
			"fld_collect_time":   {Raw: float64(1700000000000)},
			"fld_image_front": {Raw: []any{
				map[string]any{"file_token": "tok-front-1"},
			}},
		},
	}
}

func TestTransformIsPure(t *testing.T) {
	rec := sampleRecord()

	r1, err1 := Transform(rec)
	r2, err2 := Transform(rec)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, r1.Product.ContentDigest, r2.Product.ContentDigest)
}

func TestTransformHappyPath(t *testing.T) {
	result, err := Transform(sampleRecord())
	require.NoError(t, err)

	p := result.Product
	assert.Equal(t, "rec-123", p.ProductID)
	assert.Equal(t, "Widget", p.Name.Display)
	assert.Equal(t, "小部件", p.Name.Primary)
	assert.Equal(t, 20.0, p.Price.Normal)
	require.NotNil(t, p.Price.Discount)
	assert.Equal(t, 15.0, *p.Price.Discount)
	require.NotNil(t, p.Price.DiscountRate)
	assert.InDelta(t, 0.25, *p.Price.DiscountRate, 0.0001)
	assert.Equal(t, "012345678905", p.Barcode)
	assert.Equal(t, "https://example.com/p/123", p.Link)
	assert.False(t, p.CollectTime.IsZero())
	require.Contains(t, p.Images, model.ImageRoleFront)
	assert.Equal(t, "tok-front-1", p.Images[model.ImageRoleFront].Token)
	assert.NotEmpty(t, p.ContentDigest)
}

func TestTransformMissingProductIDFails(t *testing.T) {
	rec := sampleRecord()
	rec.RecordID = ""

	_, err := Transform(rec)
	require.Error(t, err)

	var failure *TransformFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reasons, "missing productId")
}

func TestTransformMissingNameDisplayFails(t *testing.T) {
	rec := sampleRecord()
	delete(rec.Fields, "fld_name_primary")
	delete(rec.Fields, "fld_name_en")

	_, err := Transform(rec)
	require.Error(t, err)

	var failure *TransformFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reasons, "missing name.display")
}

func TestTransformInvalidBarcodeFallsBackWithWarning(t *testing.T) {
	rec := sampleRecord()
	rec.Fields["fld_barcode"] = upstream.FieldValue{Raw: "abc"}

	result, err := Transform(rec)
	require.NoError(t, err)
	assert.Empty(t, result.Product.Barcode)
	assert.NotEmpty(t, result.Warnings)
}

func TestTransformRejectsNonHTTPLink(t *testing.T) {
	rec := sampleRecord()
	rec.Fields["fld_link"] = upstream.FieldValue{Raw: "javascript:alert(1)"}

	result, err := Transform(rec)
	require.NoError(t, err)
	assert.Empty(t, result.Product.Link)
}

func TestDigestExcludesVolatileFields(t *testing.T) {
	r1, err := Transform(sampleRecord())
	require.NoError(t, err)

	p2 := r1.Product
	p2.Version = 7
	p2.SyncTime = p2.SyncTime.AddDate(1, 0, 0)

	assert.Equal(t, Digest(r1.Product), Digest(p2))
}

func TestDigestIsIdempotentUnderNormalization(t *testing.T) {
	r1, _ := Transform(sampleRecord())
	r2, _ := Transform(sampleRecord())

	assert.Equal(t, Digest(r1.Product), Digest(r2.Product))
}
