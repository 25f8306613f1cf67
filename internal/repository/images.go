package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acme-retail/tablesync/internal/model"
)

const sqlInsertImage = `INSERT INTO images
	(image_id, product_id, role, object_key, public_url, content_hash, byte_size, format, uploaded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// sqlGetCurrentImage returns the most recently uploaded row for
// (product_id, role). Older uploads are never overwritten in place, per
// spec §3.3 ("older versions are superseded but retained by key") — this
// is what makes "current" a query-time concept rather than a column.
const sqlGetCurrentImage = `SELECT image_id, product_id, role, object_key, public_url,
	content_hash, byte_size, format, uploaded_at
	FROM images WHERE product_id = ? AND role = ?
	ORDER BY uploaded_at DESC LIMIT 1`

// PutImage records a newly persisted image version. It never updates an
// existing row; each upload is a new row keyed by ImageID, per spec §3.3.
func (s *Store) PutImage(ctx context.Context, img model.Image) error {
	_, err := s.stmts.upsertImage.ExecContext(ctx,
		img.ImageID, img.ProductID, string(img.Role), img.ObjectKey, img.PublicURL,
		img.ContentHash, img.ByteSize, img.Format, img.UploadedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("repository: inserting image %s: %w", img.ImageID, err)
	}

	return nil
}

// GetImage implements imagefetch.ExistingImageLookup: it returns the
// current image for (productID, role), used to detect an unchanged
// attachment and skip re-downloading it.
func (s *Store) GetImage(ctx context.Context, productID string, role model.ImageRole) (*model.Image, bool, error) {
	row := s.stmts.getImage.QueryRowContext(ctx, productID, string(role))

	var img model.Image
	var roleStr string
	var uploadedMS int64

	err := row.Scan(
		&img.ImageID, &img.ProductID, &roleStr, &img.ObjectKey, &img.PublicURL,
		&img.ContentHash, &img.ByteSize, &img.Format, &uploadedMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("repository: reading current image: %w", err)
	}

	img.Role = model.ImageRole(roleStr)
	img.UploadedAt = msToTime(uploadedMS)

	return &img, true, nil
}
