// Package model holds the domain entities shared across the sync core:
// Product, Image, SyncRun/SyncLog, and the enums spec §3 defines for them.
// Kept dependency-free (no store/transport imports) so every other
// package can import it without risk of cycles.
package model

import "time"

// LocalizedText is a localized triple per spec §3.1: primary/secondary
// language values plus a computed display fallback.
type LocalizedText struct {
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
	Display   string `json:"display"`
}

// ImageRole is one of the five attachment roles a product may carry.
type ImageRole string

const (
	ImageRoleFront   ImageRole = "front"
	ImageRoleBack    ImageRole = "back"
	ImageRoleLabel   ImageRole = "label"
	ImageRolePackage ImageRole = "package"
	ImageRoleGift    ImageRole = "gift"
)

// ValidImageRoles lists every role accepted in Product.Images.
var ValidImageRoles = []ImageRole{
	ImageRoleFront, ImageRoleBack, ImageRoleLabel, ImageRolePackage, ImageRoleGift,
}

// ProductStatus is the lifecycle status of a Product, per spec §3.1.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusDeleted  ProductStatus = "deleted"
)

// Price holds the normal/discount pricing fields, per spec §3.1.
type Price struct {
	Normal       float64  `json:"normal"`
	Discount     *float64 `json:"discount,omitempty"`
	DiscountRate *float64 `json:"discountRate,omitempty"`
	USD          *float64 `json:"usd,omitempty"`
	SpecialUSD   *float64 `json:"specialUsd,omitempty"`
}

// Origin is the localized country/province/city triple set, per spec §3.1.
type Origin struct {
	Country  LocalizedText `json:"country"`
	Province LocalizedText `json:"province"`
	City     LocalizedText `json:"city"`
}

// Category holds the primary/secondary localized category, per spec §3.1.
type Category struct {
	Primary   LocalizedText `json:"primary"`
	Secondary LocalizedText `json:"secondary"`
}

// ImageRef is either a pre-fetch upstream attachment token or a post-fetch
// stable object-store reference. Per spec §3.1's invariant, a Product
// never holds both for the same role — Token is cleared once Key is set.
type ImageRef struct {
	Token string `json:"token,omitempty"`
	Key   string `json:"key,omitempty"`
}

// Resolved reports whether this reference has been fetched and stored.
func (r ImageRef) Resolved() bool { return r.Key != "" }

// Product is the normalized product entity, per spec §3.1.
type Product struct {
	ProductID  string `json:"productId"`
	InternalID string `json:"internalId,omitempty"`
	Sequence   string `json:"sequence,omitempty"`

	Name     LocalizedText `json:"name"`
	Category Category      `json:"category"`
	Price    Price         `json:"price"`

	Images map[ImageRole]ImageRef `json:"images,omitempty"`

	Origin        Origin        `json:"origin"`
	Platform      LocalizedText `json:"platform"`
	Specification LocalizedText `json:"specification"`
	Flavor        LocalizedText `json:"flavor"`
	Manufacturer  LocalizedText `json:"manufacturer"`

	Barcode string `json:"barcode,omitempty"`
	Link    string `json:"link,omitempty"`

	CollectTime time.Time `json:"collectTime"`
	SyncTime    time.Time `json:"syncTime"`
	Version     int64     `json:"version"`

	Status    ProductStatus `json:"status"`
	IsVisible bool          `json:"isVisible"`

	// ContentDigest is the stable hash over the normalized entity excluding
	// syncTime/version/image object keys (spec §4.3). Persisted so
	// incremental sync never needs to re-normalize on read.
	ContentDigest string `json:"contentDigest"`
}
