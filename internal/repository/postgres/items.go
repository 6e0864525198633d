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

const itemColumns = `id, household_id, name, category, quantity, max_quantity, threshold, unit,
	image_uri, images, purchase_links, notes, barcode, details,
	created_at, updated_at, synced_at, deleted_at`

type itemGateway struct {
	db     *sql.DB
	dsn    string
	logger *logrus.Logger
}

// NewItemGateway creates the remote gateway for the items collection. The
// dsn is kept for the realtime listener, which needs its own connection.
func NewItemGateway(db *sql.DB, dsn string, logger *logrus.Logger) repository.ItemGateway {
	return &itemGateway{db: db, dsn: dsn, logger: logger}
}

func (g *itemGateway) Insert(ctx context.Context, item *models.InventoryItem) error {
	args, err := itemArgs(item)
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO inventory_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (g *itemGateway) Update(ctx context.Context, item *models.InventoryItem) error {
	args, err := itemArgs(item)
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET household_id = $2, name = $3, category = $4, quantity = $5,
		    max_quantity = $6, threshold = $7, unit = $8, image_uri = $9,
		    images = $10, purchase_links = $11, notes = $12, barcode = $13,
		    details = $14, created_at = $15, updated_at = $16,
		    synced_at = $17, deleted_at = $18
		WHERE id = $1`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

func (g *itemGateway) SoftDelete(ctx context.Context, id, deletedAt string) error {
	_, err := g.db.ExecContext(ctx,
		`UPDATE inventory_items SET deleted_at = $2 WHERE id = $1`, id, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to soft-delete item: %w", err)
	}
	return nil
}

func (g *itemGateway) Upsert(ctx context.Context, items []*models.InventoryItem) error {
	for _, item := range items {
		args, err := itemArgs(item)
		if err != nil {
			return err
		}
		_, err = g.db.ExecContext(ctx, `
			INSERT INTO inventory_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (id) DO UPDATE SET
				household_id = excluded.household_id, name = excluded.name,
				category = excluded.category, quantity = excluded.quantity,
				max_quantity = excluded.max_quantity, threshold = excluded.threshold,
				unit = excluded.unit, image_uri = excluded.image_uri,
				images = excluded.images, purchase_links = excluded.purchase_links,
				notes = excluded.notes, barcode = excluded.barcode,
				details = excluded.details, updated_at = excluded.updated_at,
				synced_at = excluded.synced_at, deleted_at = excluded.deleted_at`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
		}
	}
	return nil
}

func (g *itemGateway) SelectWhere(ctx context.Context, householdID string, excludeDeleted bool) ([]*models.InventoryItem, error) {
	query := `SELECT row_to_json(inventory_items) FROM inventory_items WHERE household_id = $1`
	if excludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := g.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var items []*models.InventoryItem
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		var w itemWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode item row: %w", err)
		}
		items = append(items, itemFromWire(&w))
	}
	return items, rows.Err()
}

func (g *itemGateway) Subscribe(householdID string, handler func(repository.ItemEvent)) (func(), error) {
	return subscribeChannel(g.dsn, itemsChannel, g.logger, func(payload []byte) {
		var change changePayload
		if err := json.Unmarshal(payload, &change); err != nil {
			g.logger.WithError(err).Warn("failed to decode item change payload")
			return
		}
		var w itemWire
		if err := json.Unmarshal(change.Row, &w); err != nil {
			g.logger.WithError(err).Warn("failed to decode item change row")
			return
		}
		if w.HouseholdID != householdID {
			return
		}

		ev := repository.ItemEvent{Op: repository.ChangeOp(change.Op), ID: w.ID}
		if ev.Op != repository.OpDelete {
			ev.Item = itemFromWire(&w)
		}
		handler(ev)
	})
}

// itemArgs flattens an item into the positional column values shared by
// insert, update and upsert. The synced_at stamp is set here, at write
// time, matching what the row will report back to every device.
func itemArgs(item *models.InventoryItem) ([]any, error) {
	w := itemToWire(item)
	w.SyncedAt = nullable(identity.Now())

	images, err := jsonbArg(w.Images, len(w.Images) > 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}
	links, err := jsonbArg(w.PurchaseLinks, w.PurchaseLinks != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase links: %w", err)
	}
	details, err := jsonbArg(w.Details, len(w.Details) > 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode details: %w", err)
	}

	return []any{
		w.ID, w.HouseholdID, w.Name, w.Category, w.Quantity, w.MaxQuantity,
		w.Threshold, w.Unit, w.ImageURI, images, links, w.Notes, w.Barcode,
		details, w.CreatedAt, w.UpdatedAt, w.SyncedAt, w.DeletedAt,
	}, nil
}

// jsonbArg marshals a jsonb column value, or yields NULL when empty.
func jsonbArg(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
