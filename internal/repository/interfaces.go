package repository

import (
	"context"

	"garagestock/internal/models"
)

// ChangeOp identifies a realtime change-feed event type.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// ItemEvent is a single row-level change delivered by the live feed.
// Item is nil for delete events; ID is always set.
type ItemEvent struct {
	Op   ChangeOp
	ID   string
	Item *models.InventoryItem
}

// LocationEvent is the storage-location counterpart of ItemEvent.
type LocationEvent struct {
	Op       ChangeOp
	ID       string
	Location *models.StorageLocation
}

// ItemGateway abstracts the remote store for the items collection. Row
// mapping between the in-memory model and the remote row shape lives
// behind this interface; callers only ever see models.
type ItemGateway interface {
	Insert(ctx context.Context, item *models.InventoryItem) error
	Update(ctx context.Context, item *models.InventoryItem) error
	SoftDelete(ctx context.Context, id, deletedAt string) error
	Upsert(ctx context.Context, items []*models.InventoryItem) error
	SelectWhere(ctx context.Context, householdID string, excludeDeleted bool) ([]*models.InventoryItem, error)
	// Subscribe starts a live change feed scoped to the household and
	// returns a function that tears it down.
	Subscribe(householdID string, handler func(ItemEvent)) (func(), error)
}

// LocationGateway abstracts the remote store for storage locations.
type LocationGateway interface {
	Insert(ctx context.Context, loc *models.StorageLocation) error
	Update(ctx context.Context, loc *models.StorageLocation) error
	SoftDelete(ctx context.Context, id, deletedAt string) error
	Upsert(ctx context.Context, locs []*models.StorageLocation) error
	SelectWhere(ctx context.Context, householdID string, excludeDeleted bool) ([]*models.StorageLocation, error)
	Subscribe(householdID string, handler func(LocationEvent)) (func(), error)
}

// HouseholdGateway abstracts the remote household and membership tables.
// Lookup methods return (nil, nil) when no row matches.
type HouseholdGateway interface {
	GenerateInviteCode(ctx context.Context) (string, error)
	InsertHousehold(ctx context.Context, name, inviteCode string) (*models.Household, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Household, error)
	// AddMember registers a device in a household. Registering an existing
	// member is a no-op.
	AddMember(ctx context.Context, householdID, deviceID, deviceName string) error
	RemoveMember(ctx context.Context, householdID, deviceID string) error
	ListMembers(ctx context.Context, householdID string) ([]*models.HouseholdMember, error)
	// FindMembership returns the household this device already belongs to,
	// if any.
	FindMembership(ctx context.Context, deviceID string) (*models.Household, error)
}

// Syncer is the household-scoped sync surface both repositories share. The
// membership manager fans out over it when a device binds to or leaves a
// household.
type Syncer interface {
	MigrateLocalToRemote(ctx context.Context, householdID string) error
	SyncToRemote(ctx context.Context, householdID string) error
	FetchFromRemote(ctx context.Context, householdID string) error
	SubscribeRealtime(householdID string) error
	Unsubscribe()
}
