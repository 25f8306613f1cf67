package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-retail/tablesync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.Context(), ":memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func sampleProduct(id string) model.Product {
	return model.Product{
		ProductID: id,
		Name:      model.LocalizedText{Primary: "Cola", Display: "Cola"},
		Category:  model.Category{Primary: model.LocalizedText{Display: "Beverages"}},
		Price:     model.Price{Normal: 9.99},
		Images: map[model.ImageRole]model.ImageRef{
			model.ImageRoleFront: {Token: "tok-1"},
		},
		Manufacturer:  model.LocalizedText{Display: "Acme"},
		CollectTime:   time.Unix(1700000000, 0).UTC(),
		Status:        model.ProductStatusActive,
		IsVisible:     true,
		ContentDigest: "digest-v1",
	}
}

func TestUpsertBatchCreatesNewProduct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result, err := s.UpsertBatch(ctx, []model.Product{sampleProduct("p1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	got, found, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Cola", got.Name.Display)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "tok-1", got.Images[model.ImageRoleFront].Token)
}

func TestUpsertBatchSkipsUnchangedDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := sampleProduct("p1")
	_, err := s.UpsertBatch(ctx, []model.Product{p})
	require.NoError(t, err)

	result, err := s.UpsertBatch(ctx, []model.Product{p})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
}

func TestUpsertBatchUpdatesOnChangedDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := sampleProduct("p1")
	_, err := s.UpsertBatch(ctx, []model.Product{p})
	require.NoError(t, err)

	p.ContentDigest = "digest-v2"
	p.Name.Display = "Cola Zero"

	result, err := s.UpsertBatch(ctx, []model.Product{p})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	got, found, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Cola Zero", got.Name.Display)
	assert.Equal(t, int64(2), got.Version)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, []model.Product{sampleProduct("p1")})
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, []string{"p1"}))
	require.NoError(t, s.SoftDelete(ctx, []string{"p1"}))

	got, found, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.ProductStatusDeleted, got.Status)
	assert.False(t, got.IsVisible)

	ids, err := s.FindIDs(ctx, 0)
	require.NoError(t, err)
	assert.NotContains(t, ids, "p1")
}

func TestFindIDsFiltersBySinceTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, []model.Product{sampleProduct("p1")})
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).UnixMilli()

	ids, err := s.FindIDs(ctx, future)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.FindIDs(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, ids, "p1")
}

func TestSearchMatchesNameAndManufacturer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, []model.Product{sampleProduct("p1")})
	require.NoError(t, err)

	results, err := s.Search(ctx, "Cola", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ProductID)

	results, err = s.Search(ctx, "Acme", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.Search(ctx, "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListProductsPaginates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := sampleProduct(string(rune('a' + i)))
		p.ContentDigest = p.ProductID + "-digest"
		_, err := s.UpsertBatch(ctx, []model.Product{p})
		require.NoError(t, err)
	}

	page1, total, err := s.ListProducts(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page1, 2)

	page2, _, err := s.ListProducts(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
}

func TestPutAndGetImageReturnsMostRecentVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, []model.Product{sampleProduct("p1")})
	require.NoError(t, err)

	older := model.Image{
		ImageID:     "img-1",
		ProductID:   "p1",
		Role:        model.ImageRoleFront,
		ObjectKey:   "products/p1_front_1.jpg",
		ContentHash: "hash-1",
		UploadedAt:  time.Unix(1000, 0).UTC(),
	}
	newer := model.Image{
		ImageID:     "img-2",
		ProductID:   "p1",
		Role:        model.ImageRoleFront,
		ObjectKey:   "products/p1_front_2.jpg",
		ContentHash: "hash-2",
		UploadedAt:  time.Unix(2000, 0).UTC(),
	}

	require.NoError(t, s.PutImage(ctx, older))
	require.NoError(t, s.PutImage(ctx, newer))

	got, found, err := s.GetImage(ctx, "p1", model.ImageRoleFront)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "img-2", got.ImageID)
	assert.Equal(t, "hash-2", got.ContentHash)
}

func TestGetImageNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, found, err := s.GetImage(ctx, "nope", model.ImageRoleFront)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestSyncLogRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Unix(1700000000, 0).UTC()
	log := model.SyncLog{
		ID:          "sync-1",
		Mode:        model.SyncModeFull,
		Status:      model.SyncStatusRunning,
		TriggeredBy: model.TriggeredByAPI,
		StartTime:   start,
		Options:     model.SyncOptions{BatchSize: 100},
		Progress:    model.SyncProgress{Stage: model.StageFetching, Total: 10},
		Errors:      []model.SyncError{},
		Logs:        []string{"starting"},
	}

	require.NoError(t, s.PutSyncLog(ctx, log))

	got, found, err := s.GetSyncLog(ctx, "sync-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.SyncStatusRunning, got.Status)
	assert.Nil(t, got.EndTime)
	assert.Equal(t, 10, got.Progress.Total)

	end := start.Add(5 * time.Minute)
	log.Status = model.SyncStatusCompleted
	log.EndTime = &end
	log.Progress.Stage = model.StageCompleted

	require.NoError(t, s.PutSyncLog(ctx, log))

	got, found, err = s.GetSyncLog(ctx, "sync-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.SyncStatusCompleted, got.Status)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, end, *got.EndTime, time.Second)
}

func TestListSyncLogsFiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSyncLog(ctx, model.SyncLog{
		ID: "s1", Status: model.SyncStatusCompleted, Mode: model.SyncModeFull,
		StartTime: time.Unix(1000, 0).UTC(), Errors: []model.SyncError{}, Logs: []string{},
	}))
	require.NoError(t, s.PutSyncLog(ctx, model.SyncLog{
		ID: "s2", Status: model.SyncStatusFailed, Mode: model.SyncModeIncremental,
		StartTime: time.Unix(2000, 0).UTC(), Errors: []model.SyncError{}, Logs: []string{},
	}))

	logs, err := s.ListSyncLogs(ctx, model.SyncLogFilter{Status: model.SyncStatusFailed}, model.Page{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "s2", logs[0].ID)
}

func TestGetProductNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetProduct(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
