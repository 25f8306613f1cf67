package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acme-retail/tablesync/internal/model"
)

const productColumns = `product_id, internal_id, sequence, name_json, name_display,
	category_json, category_primary_display, category_secondary_display, price_json,
	images_json, origin_json, platform_json, platform_display, specification_json,
	flavor_json, manufacturer_json, manufacturer_display, barcode, link,
	collect_time, sync_time, version, status, is_visible, content_digest`

const sqlGetProduct = `SELECT ` + productColumns + ` FROM products WHERE product_id = ?`

const sqlGetDigest = `SELECT content_digest FROM products WHERE product_id = ?`

const sqlUpsertProduct = `INSERT INTO products (` + productColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(product_id) DO UPDATE SET
		internal_id = excluded.internal_id,
		sequence = excluded.sequence,
		name_json = excluded.name_json,
		name_display = excluded.name_display,
		category_json = excluded.category_json,
		category_primary_display = excluded.category_primary_display,
		category_secondary_display = excluded.category_secondary_display,
		price_json = excluded.price_json,
		images_json = excluded.images_json,
		origin_json = excluded.origin_json,
		platform_json = excluded.platform_json,
		platform_display = excluded.platform_display,
		specification_json = excluded.specification_json,
		flavor_json = excluded.flavor_json,
		manufacturer_json = excluded.manufacturer_json,
		manufacturer_display = excluded.manufacturer_display,
		barcode = excluded.barcode,
		link = excluded.link,
		collect_time = excluded.collect_time,
		sync_time = excluded.sync_time,
		version = excluded.version,
		status = excluded.status,
		is_visible = excluded.is_visible,
		content_digest = excluded.content_digest`

const sqlSoftDeleteProduct = `UPDATE products SET status = 'deleted', is_visible = 0, sync_time = ?
	WHERE product_id = ? AND status != 'deleted'`

// UpsertResult tallies the outcome of UpsertBatch, per spec §4.3.
type UpsertResult struct {
	Created int
	Updated int
	Skipped int
}

// UpsertBatch writes products keyed by ProductID. A product whose incoming
// ContentDigest equals the currently stored one is counted as Skipped and
// not written, per spec §4.3. Each product is upserted atomically; the
// batch itself is not (a mid-batch failure leaves earlier writes intact,
// matching the at-least-once semantics of §7).
func (s *Store) UpsertBatch(ctx context.Context, products []model.Product) (UpsertResult, error) {
	var result UpsertResult

	for i := range products {
		p := &products[i]

		existingDigest, found, err := s.getDigest(ctx, p.ProductID)
		if err != nil {
			return result, fmt.Errorf("repository: checking digest for %s: %w", p.ProductID, err)
		}

		if found && existingDigest == p.ContentDigest {
			result.Skipped++
			continue
		}

		p.SyncTime = nowFunc().UTC()

		if found {
			p.Version, err = s.nextVersion(ctx, p.ProductID)
			if err != nil {
				return result, err
			}
		} else {
			p.Version = 1
		}

		row, err := toRow(*p)
		if err != nil {
			return result, fmt.Errorf("repository: encoding %s: %w", p.ProductID, err)
		}

		_, err = s.stmts.upsertProduct.ExecContext(ctx,
			row.ProductID, row.InternalID, row.Sequence, row.NameJSON, row.NameDisplay,
			row.CategoryJSON, row.CategoryPrimaryDisplay, row.CategorySecondaryDisplay, row.PriceJSON,
			row.ImagesJSON, row.OriginJSON, row.PlatformJSON, row.PlatformDisplay, row.SpecificationJSON,
			row.FlavorJSON, row.ManufacturerJSON, row.ManufacturerDisplay, row.Barcode, row.Link,
			row.CollectTimeMS, row.SyncTimeMS, row.Version, row.Status, boolToInt(row.IsVisible), row.ContentDigest,
		)
		if err != nil {
			return result, fmt.Errorf("repository: upserting %s: %w", p.ProductID, err)
		}

		if found {
			result.Updated++
		} else {
			result.Created++
		}
	}

	return result, nil
}

func (s *Store) getDigest(ctx context.Context, productID string) (string, bool, error) {
	var digest string

	err := s.stmts.getDigest.QueryRowContext(ctx, productID).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("repository: reading digest: %w", err)
	}

	return digest, true, nil
}

func (s *Store) nextVersion(ctx context.Context, productID string) (int64, error) {
	existing, found, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	if !found {
		return 1, nil
	}

	return existing.Version + 1, nil
}

// GetProduct fetches one product by id.
func (s *Store) GetProduct(ctx context.Context, productID string) (model.Product, bool, error) {
	row, found, err := scanProductRow(s.stmts.getProduct.QueryRowContext(ctx, productID))
	if err != nil || !found {
		return model.Product{}, found, err
	}

	p, err := row.toProduct()
	return p, true, err
}

func scanProductRow(row *sql.Row) (productRow, bool, error) {
	var r productRow
	var isVisible int64

	err := row.Scan(
		&r.ProductID, &r.InternalID, &r.Sequence, &r.NameJSON, &r.NameDisplay,
		&r.CategoryJSON, &r.CategoryPrimaryDisplay, &r.CategorySecondaryDisplay, &r.PriceJSON,
		&r.ImagesJSON, &r.OriginJSON, &r.PlatformJSON, &r.PlatformDisplay, &r.SpecificationJSON,
		&r.FlavorJSON, &r.ManufacturerJSON, &r.ManufacturerDisplay, &r.Barcode, &r.Link,
		&r.CollectTimeMS, &r.SyncTimeMS, &r.Version, &r.Status, &isVisible, &r.ContentDigest,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return productRow{}, false, nil
	}

	if err != nil {
		return productRow{}, false, fmt.Errorf("repository: scanning product: %w", err)
	}

	r.IsVisible = isVisible != 0

	return r, true, nil
}

// FindIDs enumerates product ids, optionally filtered to products synced
// after since (UnixMilli, 0 meaning unfiltered), per spec §4.3.
func (s *Store) FindIDs(ctx context.Context, sinceMS int64) (map[string]struct{}, error) {
	query := `SELECT product_id FROM products WHERE status != 'deleted'`

	args := []any{}
	if sinceMS > 0 {
		query += ` AND sync_time > ?`
		args = append(args, sinceMS)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: finding ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: scanning id: %w", err)
		}

		ids[id] = struct{}{}
	}

	return ids, rows.Err()
}

// SoftDelete sets status=deleted, isVisible=false for every id in
// productIDs, per spec §4.3. Already-deleted products are left untouched
// (idempotent).
func (s *Store) SoftDelete(ctx context.Context, productIDs []string) error {
	now := nowFunc().UTC().UnixMilli()

	for _, id := range productIDs {
		if _, err := s.stmts.softDelete.ExecContext(ctx, now, id); err != nil {
			return fmt.Errorf("repository: soft-deleting %s: %w", id, err)
		}
	}

	return nil
}

// ListProducts is a supplementary read path (SPEC_FULL.md) backing the
// consumer-facing product listing the sync core's document store serves
// once products are written. page is 1-indexed; pageSize <= 0 defaults
// to 50.
func (s *Store) ListProducts(ctx context.Context, page, pageSize int) ([]model.Product, int, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	if page < 1 {
		page = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE status != 'deleted'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: counting products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE status != 'deleted'
		ORDER BY sync_time DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: listing products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Search performs a substring match over name.display and
// manufacturer.display, the two columns spec §4.3 requires a text index
// across.
func (s *Store) Search(ctx context.Context, query string, pageSize int) ([]model.Product, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	like := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products
		WHERE status != 'deleted' AND (name_display LIKE ? OR manufacturer_display LIKE ?)
		ORDER BY sync_time DESC LIMIT ?`, like, like, pageSize)
	if err != nil {
		return nil, fmt.Errorf("repository: searching products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]model.Product, error) {
	var out []model.Product

	for rows.Next() {
		var r productRow
		var isVisible int64

		if err := rows.Scan(
			&r.ProductID, &r.InternalID, &r.Sequence, &r.NameJSON, &r.NameDisplay,
			&r.CategoryJSON, &r.CategoryPrimaryDisplay, &r.CategorySecondaryDisplay, &r.PriceJSON,
			&r.ImagesJSON, &r.OriginJSON, &r.PlatformJSON, &r.PlatformDisplay, &r.SpecificationJSON,
			&r.FlavorJSON, &r.ManufacturerJSON, &r.ManufacturerDisplay, &r.Barcode, &r.Link,
			&r.CollectTimeMS, &r.SyncTimeMS, &r.Version, &r.Status, &isVisible, &r.ContentDigest,
		); err != nil {
			return nil, fmt.Errorf("repository: scanning product row: %w", err)
		}

		r.IsVisible = isVisible != 0

		p, err := r.toProduct()
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, rows.Err()
}
