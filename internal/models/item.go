package models

// ItemDetails is an open mapping of optional descriptive fields (brand,
// size, color, material, storage reference, ...). New fields can appear
// without a schema migration, so it stays a free-form map rather than a
// fixed struct.
type ItemDetails map[string]any

// Well-known detail keys.
const (
	DetailStorageLocationID = "storageLocationId"
	DetailStoragePosition   = "storagePosition"
)

// StorageLocationID returns the id of the storage location this item is
// filed under, or "" when the item is not assigned to one.
func (d ItemDetails) StorageLocationID() string {
	s, _ := d[DetailStorageLocationID].(string)
	return s
}

// PurchaseLinks holds optional store URLs for reordering an item.
type PurchaseLinks struct {
	HomeDepot string `json:"homeDepot,omitempty"`
	Lowes     string `json:"lowes,omitempty"`
	Amazon    string `json:"amazon,omitempty"`
}

// InventoryItem is a single tracked garage item. All timestamps are
// ISO-8601 strings. HouseholdID is empty for local-only, unsynced data;
// SyncedAt is set only after a successful remote write; a non-empty
// DeletedAt marks the row soft-deleted.
type InventoryItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Description   string         `json:"description,omitempty"`
	Quantity      float64        `json:"quantity"`
	MaxQuantity   float64        `json:"maxQuantity"`
	Threshold     float64        `json:"threshold"`
	Unit          string         `json:"unit"`
	ImageURI      string         `json:"imageUri,omitempty"`
	Images        []string       `json:"images,omitempty"`
	Barcode       string         `json:"barcode,omitempty"`
	Details       ItemDetails    `json:"details,omitempty"`
	PurchaseLinks *PurchaseLinks `json:"purchaseLinks,omitempty"`
	DateAdded     string         `json:"dateAdded"`
	LastUpdated   string         `json:"lastUpdated"`
	HouseholdID   string         `json:"householdId,omitempty"`
	SyncedAt      string         `json:"syncedAt,omitempty"`
	DeletedAt     string         `json:"deletedAt,omitempty"`
}

// IsLowStock reports whether the item is at or below its threshold.
func (i *InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.Threshold
}

// Clone returns a deep copy so callers can hand items across goroutine
// boundaries without sharing mutable state.
func (i *InventoryItem) Clone() *InventoryItem {
	c := *i
	if i.Images != nil {
		c.Images = append([]string(nil), i.Images...)
	}
	if i.Details != nil {
		c.Details = make(ItemDetails, len(i.Details))
		for k, v := range i.Details {
			c.Details[k] = v
		}
	}
	if i.PurchaseLinks != nil {
		links := *i.PurchaseLinks
		c.PurchaseLinks = &links
	}
	return &c
}

// ItemPatch is a partial update for an InventoryItem. Nil fields are left
// untouched; Details and Images replace the existing value wholesale when
// non-nil.
type ItemPatch struct {
	Name          *string        `json:"name,omitempty"`
	Category      *string        `json:"category,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Quantity      *float64       `json:"quantity,omitempty"`
	MaxQuantity   *float64       `json:"maxQuantity,omitempty"`
	Threshold     *float64       `json:"threshold,omitempty"`
	Unit          *string        `json:"unit,omitempty"`
	ImageURI      *string        `json:"imageUri,omitempty"`
	Images        []string       `json:"images,omitempty"`
	Barcode       *string        `json:"barcode,omitempty"`
	Details       ItemDetails    `json:"details,omitempty"`
	PurchaseLinks *PurchaseLinks `json:"purchaseLinks,omitempty"`
}

// Apply merges the patch into the item. It does not touch identity or
// bookkeeping fields; the repository owns those.
func (p *ItemPatch) Apply(item *InventoryItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.MaxQuantity != nil {
		item.MaxQuantity = *p.MaxQuantity
	}
	if p.Threshold != nil {
		item.Threshold = *p.Threshold
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.ImageURI != nil {
		item.ImageURI = *p.ImageURI
	}
	if p.Images != nil {
		item.Images = append([]string(nil), p.Images...)
	}
	if p.Barcode != nil {
		item.Barcode = *p.Barcode
	}
	if p.Details != nil {
		item.Details = p.Details
	}
	if p.PurchaseLinks != nil {
		links := *p.PurchaseLinks
		item.PurchaseLinks = &links
	}
}
