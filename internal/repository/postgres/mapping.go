package postgres

import "garagestock/internal/models"

// Wire structs mirror the remote row shape: flattened snake_case columns,
// jsonb for the open-ended fields. The same structs decode rows fetched
// with row_to_json and the change-feed payloads, so fetch and realtime
// share one mapping. Mapping is pure and total in both directions;
// malformed rows are not defended against.

type itemWire struct {
	ID            string                `json:"id"`
	HouseholdID   string                `json:"household_id"`
	Name          string                `json:"name"`
	Category      string                `json:"category"`
	Quantity      float64               `json:"quantity"`
	MaxQuantity   float64               `json:"max_quantity"`
	Threshold     float64               `json:"threshold"`
	Unit          string                `json:"unit"`
	ImageURI      *string               `json:"image_uri"`
	Images        []string              `json:"images"`
	PurchaseLinks *models.PurchaseLinks `json:"purchase_links"`
	Notes         *string               `json:"notes"`
	Barcode       *string               `json:"barcode"`
	Details       models.ItemDetails    `json:"details"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
	SyncedAt      *string               `json:"synced_at"`
	DeletedAt     *string               `json:"deleted_at"`
}

// The locations table predates the items one and kept its original column
// names (date_added/last_updated instead of created_at/updated_at).
type locationWire struct {
	ID          string  `json:"id"`
	HouseholdID string  `json:"household_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description"`
	QRCode      string  `json:"qr_code"`
	Color       *string `json:"color"`
	DateAdded   string  `json:"date_added"`
	LastUpdated string  `json:"last_updated"`
	SyncedAt    *string `json:"synced_at"`
	DeletedAt   *string `json:"deleted_at"`
}

func itemToWire(it *models.InventoryItem) *itemWire {
	w := &itemWire{
		ID:          it.ID,
		HouseholdID: it.HouseholdID,
		Name:        it.Name,
		Category:    it.Category,
		Quantity:    it.Quantity,
		MaxQuantity: it.MaxQuantity,
		Threshold:   it.Threshold,
		Unit:        it.Unit,
		Images:      it.Images,
		CreatedAt:   it.DateAdded,
		UpdatedAt:   it.LastUpdated,
	}
	w.ImageURI = nullable(it.ImageURI)
	w.Notes = nullable(it.Description)
	w.Barcode = nullable(it.Barcode)
	w.SyncedAt = nullable(it.SyncedAt)
	w.DeletedAt = nullable(it.DeletedAt)
	if len(it.Details) > 0 {
		w.Details = it.Details
	}
	if it.PurchaseLinks != nil {
		links := *it.PurchaseLinks
		w.PurchaseLinks = &links
	}
	return w
}

func itemFromWire(w *itemWire) *models.InventoryItem {
	it := &models.InventoryItem{
		ID:          w.ID,
		HouseholdID: w.HouseholdID,
		Name:        w.Name,
		Category:    w.Category,
		Quantity:    w.Quantity,
		MaxQuantity: w.MaxQuantity,
		Threshold:   w.Threshold,
		Unit:        w.Unit,
		Images:      w.Images,
		DateAdded:   w.CreatedAt,
		LastUpdated: w.UpdatedAt,
		ImageURI:    deref(w.ImageURI),
		Description: deref(w.Notes),
		Barcode:     deref(w.Barcode),
		SyncedAt:    deref(w.SyncedAt),
		DeletedAt:   deref(w.DeletedAt),
	}
	if w.Details != nil {
		it.Details = w.Details
	} else {
		it.Details = models.ItemDetails{}
	}
	if w.PurchaseLinks != nil {
		links := *w.PurchaseLinks
		it.PurchaseLinks = &links
	}
	return it
}

func locationToWire(loc *models.StorageLocation) *locationWire {
	return &locationWire{
		ID:          loc.ID,
		HouseholdID: loc.HouseholdID,
		Name:        loc.Name,
		Type:        string(loc.Type),
		Description: nullable(loc.Description),
		QRCode:      loc.QRCode,
		Color:       nullable(loc.Color),
		DateAdded:   loc.DateAdded,
		LastUpdated: loc.LastUpdated,
		SyncedAt:    nullable(loc.SyncedAt),
		DeletedAt:   nullable(loc.DeletedAt),
	}
}

func locationFromWire(w *locationWire) *models.StorageLocation {
	return &models.StorageLocation{
		ID:          w.ID,
		HouseholdID: w.HouseholdID,
		Name:        w.Name,
		Type:        models.StorageType(w.Type),
		Description: deref(w.Description),
		QRCode:      w.QRCode,
		Color:       deref(w.Color),
		DateAdded:   w.DateAdded,
		LastUpdated: w.LastUpdated,
		SyncedAt:    deref(w.SyncedAt),
		DeletedAt:   deref(w.DeletedAt),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
