// Package imagefetch implements ImageFetcher (C2, spec §4.2): resolving
// upstream attachment tokens to temporary signed URLs, downloading their
// bytes through a bounded worker pool, verifying content by magic bytes,
// and persisting the result to the object store.
package imagefetch

import (
	"context"

	"github.com/acme-retail/tablesync/internal/model"
)

// Request is one attachment to fetch: which product/role it belongs to,
// and the upstream token that identifies it.
type Request struct {
	ProductID string
	Role      model.ImageRole
	Token     string
}

// Result is the outcome of fetching one Request. Exactly one of Image or
// Err is set. A non-nil Err here is always non-fatal to the owning
// product — the spec requires the record to proceed without that image
// (§4.2's failure semantics) — callers decide what to do with it.
type Result struct {
	Request Request
	Image   *model.Image
	Err     error
}

// ExistingImageLookup lets the Fetcher skip re-uploading unchanged
// attachments (spec §4.2 step 4). Implemented by internal/repository;
// defined here per "accept interfaces at the consumer".
type ExistingImageLookup interface {
	GetImage(ctx context.Context, productID string, role model.ImageRole) (*model.Image, bool, error)
}
