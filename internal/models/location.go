package models

// StorageType classifies a physical storage container.
type StorageType string

const (
	StoragePackout StorageType = "packout"
	StorageBin     StorageType = "bin"
	StorageDrawer  StorageType = "drawer"
	StorageShelf   StorageType = "shelf"
	StorageCabinet StorageType = "cabinet"
	StorageToolbox StorageType = "toolbox"
	StorageOther   StorageType = "other"
)

// StorageLocation is a QR-labelled physical storage spot. QRCode always
// equals ID: the identifier doubles as the printable QR payload, which is
// why location ids are UUIDs (safe to render as an alphanumeric QR code).
type StorageLocation struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        StorageType `json:"type"`
	Description string      `json:"description,omitempty"`
	QRCode      string      `json:"qrCode"`
	Color       string      `json:"color,omitempty"`
	DateAdded   string      `json:"dateAdded"`
	LastUpdated string      `json:"lastUpdated"`
	HouseholdID string      `json:"householdId,omitempty"`
	SyncedAt    string      `json:"syncedAt,omitempty"`
	DeletedAt   string      `json:"deletedAt,omitempty"`
}

// Clone returns a copy of the location.
func (l *StorageLocation) Clone() *StorageLocation {
	c := *l
	return &c
}

// LocationPatch is a partial update for a StorageLocation. Identity fields
// (id, qrCode) are immutable and have no patch counterpart.
type LocationPatch struct {
	Name        *string      `json:"name,omitempty"`
	Type        *StorageType `json:"type,omitempty"`
	Description *string      `json:"description,omitempty"`
	Color       *string      `json:"color,omitempty"`
}

// Apply merges the patch into the location.
func (p *LocationPatch) Apply(loc *StorageLocation) {
	if p.Name != nil {
		loc.Name = *p.Name
	}
	if p.Type != nil {
		loc.Type = *p.Type
	}
	if p.Description != nil {
		loc.Description = *p.Description
	}
	if p.Color != nil {
		loc.Color = *p.Color
	}
}
