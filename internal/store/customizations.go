package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lumen/internal/customization"
	"lumen/internal/deviceid"
)

// Put inserts or replaces the customization for rec.ID.
func (s *Store) Put(ctx context.Context, rec customization.Record) error {
	key := deviceid.Fold(rec.ID)
	if key == "" {
		return fmt.Errorf("put customization: empty monitor id")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	c := rec.Customization
	err := s.exec(ctx, `INSERT INTO customizations (key, id, name, is_unison, lowest, highest, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			is_unison = excluded.is_unison,
			lowest = excluded.lowest,
			highest = excluded.highest,
			updated_at = excluded.updated_at`,
		key, strings.TrimSpace(rec.ID), c.Name, boolToInt(c.IsUnison), int(c.Lowest), int(c.Highest),
		updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put customization %q: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the customization for id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.exec(ctx, "DELETE FROM customizations WHERE key = ?", deviceid.Fold(id)); err != nil {
		return fmt.Errorf("delete customization %q: %w", id, err)
	}
	return nil
}

// LoadAll returns every stored customization, least recently updated first.
func (s *Store) LoadAll(ctx context.Context) ([]customization.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_unison, lowest, highest, updated_at
		 FROM customizations ORDER BY updated_at ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("load customizations: %w", err)
	}
	defer rows.Close()

	var records []customization.Record
	for rows.Next() {
		var (
			rec             customization.Record
			unison          int
			lowest, highest int
			updated         string
		)
		if err := rows.Scan(&rec.ID, &rec.Customization.Name, &unison, &lowest, &highest, &updated); err != nil {
			return nil, fmt.Errorf("scan customization: %w", err)
		}
		rec.Customization.IsUnison = unison != 0
		rec.Customization.Lowest = clampByte(lowest)
		rec.Customization.Highest = clampByte(highest)
		if ts, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
			rec.UpdatedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customizations: %w", err)
	}
	return records, nil
}

// Count returns the number of stored customizations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM customizations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count customizations: %w", err)
	}
	return n, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func clampByte(v int) uint8 {
	return uint8(max(0, min(v, 255)))
}
