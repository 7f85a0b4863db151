package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SetProductImage stores or replaces a product's label image.
func SetProductImage(ctx context.Context, db *sqlx.DB, productID int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO product_images (product_id, image, image_mime) VALUES (?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE
		 SET image = excluded.image, image_mime = excluded.image_mime, updated_at = CURRENT_TIMESTAMP`,
		productID, image, mime,
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return nil
}

// GetProductImage returns a product's label image and MIME type, or nil if it has none.
func GetProductImage(ctx context.Context, db *sqlx.DB, productID int64) ([]byte, string, error) {
	var row struct {
		Image []byte `db:"image"`
		Mime  string `db:"image_mime"`
	}
	err := db.GetContext(ctx, &row,
		`SELECT image, image_mime FROM product_images WHERE product_id = ?`, productID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return row.Image, row.Mime, nil
}
