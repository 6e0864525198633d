package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"garagestock/internal/identity"
	"garagestock/internal/models"
	"garagestock/internal/repository"
)

const locationColumns = `id, household_id, name, type, description, qr_code, color,
	date_added, last_updated, synced_at, deleted_at`

type locationGateway struct {
	db     *sql.DB
	dsn    string
	logger *logrus.Logger
}

// NewLocationGateway creates the remote gateway for storage locations.
func NewLocationGateway(db *sql.DB, dsn string, logger *logrus.Logger) repository.LocationGateway {
	return &locationGateway{db: db, dsn: dsn, logger: logger}
}

func (g *locationGateway) Insert(ctx context.Context, loc *models.StorageLocation) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO storage_locations (`+locationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		locationArgs(loc)...)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

func (g *locationGateway) Update(ctx context.Context, loc *models.StorageLocation) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE storage_locations
		SET household_id = $2, name = $3, type = $4, description = $5,
		    qr_code = $6, color = $7, date_added = $8, last_updated = $9,
		    synced_at = $10, deleted_at = $11
		WHERE id = $1`,
		locationArgs(loc)...)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	return nil
}

func (g *locationGateway) SoftDelete(ctx context.Context, id, deletedAt string) error {
	_, err := g.db.ExecContext(ctx,
		`UPDATE storage_locations SET deleted_at = $2 WHERE id = $1`, id, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to soft-delete location: %w", err)
	}
	return nil
}

func (g *locationGateway) Upsert(ctx context.Context, locs []*models.StorageLocation) error {
	for _, loc := range locs {
		_, err := g.db.ExecContext(ctx, `
			INSERT INTO storage_locations (`+locationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				household_id = excluded.household_id, name = excluded.name,
				type = excluded.type, description = excluded.description,
				color = excluded.color, last_updated = excluded.last_updated,
				synced_at = excluded.synced_at, deleted_at = excluded.deleted_at`,
			locationArgs(loc)...)
		if err != nil {
			return fmt.Errorf("failed to upsert location %s: %w", loc.ID, err)
		}
	}
	return nil
}

func (g *locationGateway) SelectWhere(ctx context.Context, householdID string, excludeDeleted bool) ([]*models.StorageLocation, error) {
	query := `SELECT row_to_json(storage_locations) FROM storage_locations WHERE household_id = $1`
	if excludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY date_added DESC`

	rows, err := g.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to select locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.StorageLocation
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		var w locationWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode location row: %w", err)
		}
		locations = append(locations, locationFromWire(&w))
	}
	return locations, rows.Err()
}

func (g *locationGateway) Subscribe(householdID string, handler func(repository.LocationEvent)) (func(), error) {
	return subscribeChannel(g.dsn, locationsChannel, g.logger, func(payload []byte) {
		var change changePayload
		if err := json.Unmarshal(payload, &change); err != nil {
			g.logger.WithError(err).Warn("failed to decode location change payload")
			return
		}
		var w locationWire
		if err := json.Unmarshal(change.Row, &w); err != nil {
			g.logger.WithError(err).Warn("failed to decode location change row")
			return
		}
		if w.HouseholdID != householdID {
			return
		}

		ev := repository.LocationEvent{Op: repository.ChangeOp(change.Op), ID: w.ID}
		if ev.Op != repository.OpDelete {
			ev.Location = locationFromWire(&w)
		}
		handler(ev)
	})
}

func locationArgs(loc *models.StorageLocation) []any {
	w := locationToWire(loc)
	w.SyncedAt = nullable(identity.Now())
	return []any{
		w.ID, w.HouseholdID, w.Name, w.Type, w.Description, w.QRCode,
		w.Color, w.DateAdded, w.LastUpdated, w.SyncedAt, w.DeletedAt,
	}
}
