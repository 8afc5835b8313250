package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ksp-deals/internal/models"
)

const productColumns = "id, sku, title, price_current, in_stock, category, image_url, source_url, created_at, updated_at"

func scanProduct(s scanner) (*models.Product, error) {
	var p models.Product
	err := s.Scan(&p.ID, &p.SKU, &p.Title, &p.PriceCurrent, &p.InStock, &p.Category, &p.ImageURL, &p.SourceURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductBySKU returns the product with its full price history.
func (db *DB) ProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE sku = ?", sku))
	if err != nil {
		return nil, err
	}
	if p.PriceHistory, err = db.priceHistory(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ProductByID returns the product with its full price history.
func (db *DB) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if p.PriceHistory, err = db.priceHistory(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// CountProducts returns the number of stored products.
func (db *DB) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, err
}

func (db *DB) priceHistory(ctx context.Context, productID string) ([]models.PricePoint, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT price, observed_at FROM price_history WHERE product_id = ? ORDER BY id", productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PricePoint
	for rows.Next() {
		var pp models.PricePoint
		if err := rows.Scan(&pp.Price, &pp.ObservedAt); err != nil {
			return nil, err
		}
		history = append(history, pp)
	}
	return history, rows.Err()
}

// CreateProduct inserts a new product together with its seeded history.
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO products ("+productColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			p.ID, p.SKU, p.Title, p.PriceCurrent, p.InStock, p.Category, p.ImageURL, p.SourceURL, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.SKU, err)
		}
		for _, pp := range p.PriceHistory {
			if err := appendPricePoint(ctx, tx, p.ID, pp); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveObservation writes the updated product state, the appended history
// entry (if any) and the new alerts in one transaction.
func (db *DB) SaveObservation(ctx context.Context, p *models.Product, appended *models.PricePoint, alerts []models.Alert) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET title = ?, price_current = ?, in_stock = ?, image_url = ?, updated_at = ? WHERE id = ?",
			p.Title, p.PriceCurrent, p.InStock, p.ImageURL, p.UpdatedAt.UTC(), p.ID,
		)
		if err != nil {
			return fmt.Errorf("update product %s: %w", p.SKU, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update product %s: %w", p.SKU, err)
		}
		if n == 0 {
			return models.ErrNotFound
		}
		if appended != nil {
			if err := appendPricePoint(ctx, tx, p.ID, *appended); err != nil {
				return err
			}
		}
		for i := range alerts {
			if err := insertAlert(ctx, tx, &alerts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func appendPricePoint(ctx context.Context, tx *sql.Tx, productID string, pp models.PricePoint) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO price_history (product_id, price, observed_at) VALUES (?, ?, ?)",
		productID, pp.Price, pp.ObservedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}
