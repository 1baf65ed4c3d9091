package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"estateadmin/internal/models"
)

const propertyColumns = `id, title, type, price, address, COALESCE(city, ''),
               COALESCE(zip_code, ''), COALESCE(description, ''), status,
               COALESCE(area, 0), COALESCE(bedrooms, 0), COALESCE(bathrooms, 0),
               COALESCE(image_url, ''), is_active, is_featured, view_count,
               created_at, updated_at`

func scanProperty(row interface{ Scan(...any) error }) (*models.Property, error) {
	var p models.Property
	err := row.Scan(
		&p.ID, &p.Title, &p.Type, &p.Price, &p.Address, &p.City,
		&p.ZipCode, &p.Description, &p.Status,
		&p.Area, &p.Bedrooms, &p.Bathrooms,
		&p.ImageURL, &p.IsActive, &p.IsFeatured, &p.ViewCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreateProperty(ctx context.Context, p *models.Property) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO properties (
            title, type, price, address, city, zip_code, description, status,
            area, bedrooms, bathrooms, image_url, is_active, is_featured,
            view_count, created_at, updated_at
         ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.Title, p.Type, p.Price, p.Address, p.City, p.ZipCode, p.Description, p.Status,
		p.Area, p.Bedrooms, p.Bathrooms, p.ImageURL, p.IsActive, p.IsFeatured,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.ViewCount = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (db *DB) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = ?`
	p, err := scanProperty(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

func (db *DB) UpdateProperty(ctx context.Context, p *models.Property) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE properties SET
            title = ?, type = ?, price = ?, address = ?, city = ?, zip_code = ?,
            description = ?, status = ?, area = ?, bedrooms = ?, bathrooms = ?,
            image_url = ?, is_active = ?, is_featured = ?, updated_at = ?
         WHERE id = ?`,
		p.Title, p.Type, p.Price, p.Address, p.City, p.ZipCode,
		p.Description, p.Status, p.Area, p.Bedrooms, p.Bathrooms,
		p.ImageURL, p.IsActive, p.IsFeatured, now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update property: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

// IncrementPropertyViews bumps view_count. Called on detail reads; losing this
// increment in a race is acceptable.
func (db *DB) IncrementPropertyViews(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE properties SET view_count = view_count + 1 WHERE id = ?`, id)
	return err
}

// ListProperties returns properties matching the filter, newest first.
func (db *DB) ListProperties(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, `(LOWER(title) LIKE ? OR LOWER(address) LIKE ? OR LOWER(COALESCE(city, '')) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?)`)
		args = append(args, needle, needle, needle, needle)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	query := `SELECT ` + propertyColumns + ` FROM properties` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// RecentProperties returns the n most recently created properties.
func (db *DB) RecentProperties(ctx context.Context, n int) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties
              ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent properties: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// CountPropertiesBy returns counts grouped by the given column (type or status).
func (db *DB) countPropertiesGrouped(ctx context.Context, column string) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM properties GROUP BY %s`, column, column)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count properties by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (db *DB) CountPropertiesByType(ctx context.Context) (map[string]int, error) {
	return db.countPropertiesGrouped(ctx, "type")
}

func (db *DB) CountPropertiesByStatus(ctx context.Context) (map[string]int, error) {
	return db.countPropertiesGrouped(ctx, "status")
}

// CountProperties returns (total, active).
func (db *DB) CountProperties(ctx context.Context) (int, int, error) {
	var total, active int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) FROM properties`).
		Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return total, active, nil
}
