package repository

import (
	"encoding/json"
	"fmt"

	"github.com/acme-retail/tablesync/internal/model"
)

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("repository: marshaling %T: %w", v, err)
	}

	return string(b), nil
}

func unmarshalJSON[T any](raw string) (T, error) {
	var v T
	if raw == "" {
		return v, nil
	}

	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("repository: unmarshaling into %T: %w", v, err)
	}

	return v, nil
}

// productRow is the flattened, DB-native shape of a model.Product. Split
// out from model.Product itself so JSON-column encoding stays an
// implementation detail of this package.
type productRow struct {
	ProductID                string
	InternalID               string
	Sequence                 string
	NameJSON                 string
	NameDisplay              string
	CategoryJSON             string
	CategoryPrimaryDisplay   string
	CategorySecondaryDisplay string
	PriceJSON                string
	ImagesJSON               string
	OriginJSON               string
	PlatformJSON             string
	PlatformDisplay          string
	SpecificationJSON        string
	FlavorJSON               string
	ManufacturerJSON         string
	ManufacturerDisplay      string
	Barcode                  string
	Link                     string
	CollectTimeMS            int64
	SyncTimeMS               int64
	Version                  int64
	Status                   string
	IsVisible                bool
	ContentDigest            string
}

func toRow(p model.Product) (productRow, error) {
	nameJSON, err := marshalJSON(p.Name)
	if err != nil {
		return productRow{}, err
	}

	categoryJSON, err := marshalJSON(p.Category)
	if err != nil {
		return productRow{}, err
	}

	priceJSON, err := marshalJSON(p.Price)
	if err != nil {
		return productRow{}, err
	}

	imagesJSON, err := marshalJSON(p.Images)
	if err != nil {
		return productRow{}, err
	}

	originJSON, err := marshalJSON(p.Origin)
	if err != nil {
		return productRow{}, err
	}

	platformJSON, err := marshalJSON(p.Platform)
	if err != nil {
		return productRow{}, err
	}

	specJSON, err := marshalJSON(p.Specification)
	if err != nil {
		return productRow{}, err
	}

	flavorJSON, err := marshalJSON(p.Flavor)
	if err != nil {
		return productRow{}, err
	}

	manufacturerJSON, err := marshalJSON(p.Manufacturer)
	if err != nil {
		return productRow{}, err
	}

	return productRow{
		ProductID:                p.ProductID,
		InternalID:               p.InternalID,
		Sequence:                 p.Sequence,
		NameJSON:                 nameJSON,
		NameDisplay:              p.Name.Display,
		CategoryJSON:             categoryJSON,
		CategoryPrimaryDisplay:   p.Category.Primary.Display,
		CategorySecondaryDisplay: p.Category.Secondary.Display,
		PriceJSON:                priceJSON,
		ImagesJSON:               imagesJSON,
		OriginJSON:               originJSON,
		PlatformJSON:             platformJSON,
		PlatformDisplay:          p.Platform.Display,
		SpecificationJSON:        specJSON,
		FlavorJSON:               flavorJSON,
		ManufacturerJSON:         manufacturerJSON,
		ManufacturerDisplay:      p.Manufacturer.Display,
		Barcode:                  p.Barcode,
		Link:                     p.Link,
		CollectTimeMS:            p.CollectTime.UnixMilli(),
		SyncTimeMS:               p.SyncTime.UnixMilli(),
		Version:                  p.Version,
		Status:                   string(p.Status),
		IsVisible:                p.IsVisible,
		ContentDigest:            p.ContentDigest,
	}, nil
}

func (r productRow) toProduct() (model.Product, error) {
	name, err := unmarshalJSON[model.LocalizedText](r.NameJSON)
	if err != nil {
		return model.Product{}, err
	}

	category, err := unmarshalJSON[model.Category](r.CategoryJSON)
	if err != nil {
		return model.Product{}, err
	}

	price, err := unmarshalJSON[model.Price](r.PriceJSON)
	if err != nil {
		return model.Product{}, err
	}

	images, err := unmarshalJSON[map[model.ImageRole]model.ImageRef](r.ImagesJSON)
	if err != nil {
		return model.Product{}, err
	}

	origin, err := unmarshalJSON[model.Origin](r.OriginJSON)
	if err != nil {
		return model.Product{}, err
	}

	platform, err := unmarshalJSON[model.LocalizedText](r.PlatformJSON)
	if err != nil {
		return model.Product{}, err
	}

	specification, err := unmarshalJSON[model.LocalizedText](r.SpecificationJSON)
	if err != nil {
		return model.Product{}, err
	}

	flavor, err := unmarshalJSON[model.LocalizedText](r.FlavorJSON)
	if err != nil {
		return model.Product{}, err
	}

	manufacturer, err := unmarshalJSON[model.LocalizedText](r.ManufacturerJSON)
	if err != nil {
		return model.Product{}, err
	}

	return model.Product{
		ProductID:     r.ProductID,
		InternalID:    r.InternalID,
		Sequence:      r.Sequence,
		Name:          name,
		Category:      category,
		Price:         price,
		Images:        images,
		Origin:        origin,
		Platform:      platform,
		Specification: specification,
		Flavor:        flavor,
		Manufacturer:  manufacturer,
		Barcode:       r.Barcode,
		Link:          r.Link,
		CollectTime:   msToTime(r.CollectTimeMS),
		SyncTime:      msToTime(r.SyncTimeMS),
		Version:       r.Version,
		Status:        model.ProductStatus(r.Status),
		IsVisible:     r.IsVisible,
		ContentDigest: r.ContentDigest,
	}, nil
}
