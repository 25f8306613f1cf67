package fieldmap

import "github.com/acme-retail/tablesync/internal/model"

// Validator rejects an already-coerced value. Returning a non-nil error
// behaves like a coercion failure: the mapping row's Default is used and a
// warning is attached.
type Validator func(value any) error

// ScalarRule is one row of the mapping table (spec §4.1) for a
// single-valued target: upstream field id, its FieldType, whether it's a
// core field (escalates to a record-level failure when required and
// missing), an optional validator, and a default applied on coercion
// failure.
type ScalarRule struct {
	TargetPath    string
	UpstreamField string
	Type          FieldType
	Required      bool
	Validate      Validator
	Default       any
}

// LocalizedRule is one row mapping a LocalizedText triple: a primary
// language field, a secondary language field, and an optional
// English-language field preferred for the computed Display value (spec
// §4.1's localization rule).
type LocalizedRule struct {
	TargetPath     string
	PrimaryField   string
	SecondaryField string
	EnglishField   string
	DefaultDisplay string
	Required       bool
}

// coreScalarFields are the non-localized, non-image scalar target paths.
var coreScalarFields = []ScalarRule{
	{TargetPath: "internalId", UpstreamField: "fld_internal_id", Type: FieldTypeText},
	{TargetPath: "sequence", UpstreamField: "fld_sequence", Type: FieldTypeText},
	{TargetPath: "price.normal", UpstreamField: "fld_price_normal", Type: FieldTypeNumber, Default: 0.0},
	{TargetPath: "price.discount", UpstreamField: "fld_price_discount", Type: FieldTypeNumber},
	{TargetPath: "price.usd", UpstreamField: "fld_price_usd", Type: FieldTypeNumber},
	{TargetPath: "price.specialUsd", UpstreamField: "fld_price_special_usd", Type: FieldTypeNumber},
	{
		TargetPath:    "barcode",
		UpstreamField: "fld_barcode",
		Type:          FieldTypeText,
		Validate: func(v any) error {
			return validateBarcode(v.(string))
		},
	},
	{TargetPath: "link", UpstreamField: "fld_link", Type: FieldTypeLink},
	{
		TargetPath:    "collectTime",
		UpstreamField: "fld_collect_time",
		Type:          FieldTypeTimestamp,
	},
}

// localizedFields are the triple-valued target paths, per spec §3.1.
var localizedFields = []LocalizedRule{
	{
		TargetPath:     "name",
		PrimaryField:   "fld_name_primary",
		SecondaryField: "fld_name_secondary",
		EnglishField:   "fld_name_en",
		Required:       true,
	},
	{TargetPath: "category.primary", PrimaryField: "fld_category_primary", SecondaryField: "fld_category_primary_en"},
	{TargetPath: "category.secondary", PrimaryField: "fld_category_secondary", SecondaryField: "fld_category_secondary_en"},
	{TargetPath: "origin.country", PrimaryField: "fld_origin_country", SecondaryField: "fld_origin_country_en", EnglishField: "fld_origin_country_en"},
	{TargetPath: "origin.province", PrimaryField: "fld_origin_province", SecondaryField: "fld_origin_province_en"},
	{TargetPath: "origin.city", PrimaryField: "fld_origin_city", SecondaryField: "fld_origin_city_en"},
	{TargetPath: "platform", PrimaryField: "fld_platform", SecondaryField: "fld_platform_en"},
	{TargetPath: "specification", PrimaryField: "fld_specification", SecondaryField: "fld_specification_en"},
	{TargetPath: "flavor", PrimaryField: "fld_flavor", SecondaryField: "fld_flavor_en"},
	{TargetPath: "manufacturer", PrimaryField: "fld_manufacturer", SecondaryField: "fld_manufacturer_en"},
}

// imageFields maps each image role to the upstream attachment field that
// carries its token, per spec §3.1's images map.
var imageFields = map[model.ImageRole]string{
	model.ImageRoleFront:   "fld_image_front",
	model.ImageRoleBack:    "fld_image_back",
	model.ImageRoleLabel:   "fld_image_label",
	model.ImageRolePackage: "fld_image_package",
	model.ImageRoleGift:    "fld_image_gift",
}
