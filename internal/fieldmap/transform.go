package fieldmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/upstream"
)

// TransformResult is the successful output of Transform: a normalized
// product plus any non-fatal per-field warnings collected along the way.
type TransformResult struct {
	Product  model.Product
	Warnings []string
}

// TransformFailure is returned (wrapped) when a core required path is
// missing, per spec §4.1's failure semantics. Only productId and
// name.display can cause this; every other field degrades to a warning
// plus its mapping default.
type TransformFailure struct {
	RecordID string
	Reasons  []string
}

func (f *TransformFailure) Error() string {
	return fmt.Sprintf("fieldmap: record %s: %s", f.RecordID, strings.Join(f.Reasons, "; "))
}

// Transform converts one upstream.RawRecord into a model.Product. It is
// pure and deterministic: identical input produces a byte-identical
// product and warning list, with no I/O (spec §4.1's contract; §8's
// `transform(x) == transform(x)` property).
//
// Transform never sets SyncTime, Version, or resolved image object keys
// — those are owned by the repository at upsert time and by ImageFetcher
// respectively. Status/IsVisible are always active/true here; soft-delete
// is something only a full-sync diff in the engine can observe.
func Transform(rec upstream.RawRecord) (TransformResult, error) {
	var warnings []string
	var reasons []string

	product := model.Product{
		Status:    model.ProductStatusActive,
		IsVisible: true,
		Images:    make(map[model.ImageRole]model.ImageRef),
	}

	product.ProductID = strings.TrimSpace(rec.RecordID)
	if product.ProductID == "" {
		reasons = append(reasons, "missing productId")
	}

	for _, rule := range localizedFields {
		lt, w := resolveLocalized(rule, rec.Fields)
		warnings = append(warnings, w...)

		assignLocalized(&product, rule.TargetPath, lt)

		if rule.Required && lt.Display == "" {
			reasons = append(reasons, fmt.Sprintf("missing %s.display", rule.TargetPath))
		}
	}

	for _, rule := range coreScalarFields {
		value, warn := coerceField(rule, rec.Fields[rule.UpstreamField])
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", rule.TargetPath, warn))
		}

		if rule.Validate != nil {
			if err := rule.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %s, using default", rule.TargetPath, err))
				value = rule.Default
			}
		}

		assignScalar(&product, rule.TargetPath, value)

		if rule.Required && isZeroAssignable(value) {
			reasons = append(reasons, fmt.Sprintf("missing %s", rule.TargetPath))
		}
	}

	for role, upstreamField := range imageFields {
		raw, present := rec.Fields[upstreamField]
		if !present {
			continue
		}

		tokens, _ := coerceAttachment(raw.Raw)
		if toks, ok := tokens.([]string); ok && len(toks) > 0 {
			product.Images[role] = model.ImageRef{Token: toks[0]}
		}
	}

	applyPriceDerivation(&product, &warnings)

	if len(reasons) > 0 {
		return TransformResult{}, &TransformFailure{RecordID: rec.RecordID, Reasons: reasons}
	}

	product.ContentDigest = Digest(product)

	return TransformResult{Product: product, Warnings: warnings}, nil
}

func coerceField(rule ScalarRule, fv upstream.FieldValue) (any, string) {
	fn, ok := coercers[rule.Type]
	if !ok {
		return rule.Default, fmt.Sprintf("no coercer registered for type %s", rule.Type)
	}

	value, warn := fn(fv.Raw)
	if warn != "" && rule.Default != nil {
		return rule.Default, warn
	}

	return value, warn
}

// resolveLocalized builds a LocalizedText triple and computes Display per
// spec §4.1: prefer the upstream English field if present, otherwise the
// primary-language field, otherwise the mapping row's explicit default.
func resolveLocalized(rule LocalizedRule, fields map[string]upstream.FieldValue) (model.LocalizedText, []string) {
	var warnings []string

	text := func(fieldID string) string {
		if fieldID == "" {
			return ""
		}

		v, warn := coerceText(fields[fieldID].Raw)
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("%s (%s): %s", rule.TargetPath, fieldID, warn))
		}

		s, _ := v.(string)
		return s
	}

	primary := text(rule.PrimaryField)
	secondary := text(rule.SecondaryField)
	english := text(rule.EnglishField)

	display := english
	if display == "" {
		display = primary
	}

	if display == "" {
		display = rule.DefaultDisplay
	}

	return model.LocalizedText{Primary: primary, Secondary: secondary, Display: display}, warnings
}

func assignLocalized(p *model.Product, path string, lt model.LocalizedText) {
	switch path {
	case "name":
		p.Name = lt
	case "category.primary":
		p.Category.Primary = lt
	case "category.secondary":
		p.Category.Secondary = lt
	case "origin.country":
		p.Origin.Country = lt
	case "origin.province":
		p.Origin.Province = lt
	case "origin.city":
		p.Origin.City = lt
	case "platform":
		p.Platform = lt
	case "specification":
		p.Specification = lt
	case "flavor":
		p.Flavor = lt
	case "manufacturer":
		p.Manufacturer = lt
	default:
		panic("fieldmap: unhandled localized target path " + path)
	}
}

func assignScalar(p *model.Product, path string, value any) {
	switch path {
	case "internalId":
		p.InternalID, _ = value.(string)
	case "sequence":
		p.Sequence, _ = value.(string)
	case "price.normal":
		p.Price.Normal, _ = value.(float64)
	case "price.discount":
		assignOptionalFloat(&p.Price.Discount, value)
	case "price.usd":
		assignOptionalFloat(&p.Price.USD, value)
	case "price.specialUsd":
		assignOptionalFloat(&p.Price.SpecialUSD, value)
	case "barcode":
		p.Barcode, _ = value.(string)
	case "link":
		p.Link, _ = value.(string)
	case "collectTime":
		p.CollectTime, _ = value.(time.Time)
	default:
		panic("fieldmap: unhandled scalar target path " + path)
	}
}

func isZeroAssignable(value any) bool {
	switch v := value.(type) {
	case string:
		return v == ""
	case time.Time:
		return v.IsZero()
	default:
		return value == nil
	}
}

func assignOptionalFloat(dst **float64, value any) {
	f, ok := value.(float64)
	if !ok || f == 0 {
		*dst = nil
		return
	}

	cp := f
	*dst = &cp
}

func applyPriceDerivation(p *model.Product, warnings *[]string) {
	if p.Price.Discount == nil {
		return
	}

	if *p.Price.Discount > p.Price.Normal {
		*warnings = append(*warnings, "price.discount: exceeds price.normal, clamped")

		clamped := p.Price.Normal
		p.Price.Discount = &clamped
	}

	if p.Price.Normal <= 0 {
		return
	}

	rate := 1 - (*p.Price.Discount / p.Price.Normal)
	rate = roundTo(rate, 4)
	p.Price.DiscountRate = &rate
}

func roundTo(f float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}

	return float64(int64(f*scale+0.5)) / scale
}
