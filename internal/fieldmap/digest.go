package fieldmap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/acme-retail/tablesync/internal/model"
)

// Digest computes the stable contentDigest for a normalized product, per
// spec §4.3: excludes syncTime, version, and image object keys, so
// image-only changes (which arrive after Transform, via ImageFetcher) never
// perturb it. Attachment tokens ARE included — a changed upstream
// attachment is a content change even before it has been downloaded.
//
// Built as a flat, deterministically ordered string rather than JSON
// marshaling, so map iteration order (Images) can never leak in.
func Digest(p model.Product) string {
	var b strings.Builder

	writeLocalized := func(name string, lt model.LocalizedText) {
		fmt.Fprintf(&b, "%s=%s|%s|%s\n", name, lt.Primary, lt.Secondary, lt.Display)
	}

	fmt.Fprintf(&b, "productId=%s\n", p.ProductID)
	fmt.Fprintf(&b, "internalId=%s\n", p.InternalID)
	fmt.Fprintf(&b, "sequence=%s\n", p.Sequence)
	writeLocalized("name", p.Name)
	writeLocalized("category.primary", p.Category.Primary)
	writeLocalized("category.secondary", p.Category.Secondary)
	fmt.Fprintf(&b, "price.normal=%.2f\n", p.Price.Normal)
	fmt.Fprintf(&b, "price.discount=%s\n", floatPtrString(p.Price.Discount))
	fmt.Fprintf(&b, "price.discountRate=%s\n", floatPtrString(p.Price.DiscountRate))
	fmt.Fprintf(&b, "price.usd=%s\n", floatPtrString(p.Price.USD))
	fmt.Fprintf(&b, "price.specialUsd=%s\n", floatPtrString(p.Price.SpecialUSD))

	for _, role := range model.ValidImageRoles {
		ref := p.Images[role]
		fmt.Fprintf(&b, "images.%s.token=%s\n", role, ref.Token)
	}

	writeLocalized("origin.country", p.Origin.Country)
	writeLocalized("origin.province", p.Origin.Province)
	writeLocalized("origin.city", p.Origin.City)
	writeLocalized("platform", p.Platform)
	writeLocalized("specification", p.Specification)
	writeLocalized("flavor", p.Flavor)
	writeLocalized("manufacturer", p.Manufacturer)
	fmt.Fprintf(&b, "barcode=%s\n", p.Barcode)
	fmt.Fprintf(&b, "link=%s\n", p.Link)
	fmt.Fprintf(&b, "collectTime=%d\n", p.CollectTime.UnixMilli())
	fmt.Fprintf(&b, "status=%s\n", p.Status)
	fmt.Fprintf(&b, "isVisible=%t\n", p.IsVisible)

	sum := sha256.Sum256([]byte(b.String()))

	return hex.EncodeToString(sum[:])
}

func floatPtrString(f *float64) string {
	if f == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%.4f", *f)
}
