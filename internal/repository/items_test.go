package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagestock/internal/identity"
	"garagestock/internal/models"
)

func newItemRepo(t *testing.T, gateway *fakeItemGateway) (*ItemRepository, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	repo, err := NewItemRepository(store, gateway, notifier, testLogger())
	require.NoError(t, err)
	return repo, store, notifier
}

func TestItemAddAssignsIdentity(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	added, err := repo.Add(&models.InventoryItem{Name: "Deck Screws", Quantity: 3, Unit: "boxes"}, "")
	require.NoError(t, err)

	assert.NotEmpty(t, added.ID)
	assert.NotEmpty(t, added.DateAdded)
	assert.Equal(t, added.DateAdded, added.LastUpdated)
	assert.Empty(t, added.SyncedAt)
	assert.Empty(t, added.HouseholdID)

	// Local-only adds must not reach the remote at all.
	repo.Flush()
	assert.Empty(t, gw.inserts())
}

func TestItemAddRequiresName(t *testing.T) {
	repo, _, _ := newItemRepo(t, &fakeItemGateway{})

	_, err := repo.Add(&models.InventoryItem{Name: "   "}, "")
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.Empty(t, repo.List())
}

func TestItemAddSurvivesRemoteFailure(t *testing.T) {
	gw := &fakeItemGateway{}
	gw.fail(errors.New("connection refused"))
	repo, _, _ := newItemRepo(t, gw)

	added, err := repo.Add(&models.InventoryItem{Name: "WD-40"}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	got := repo.GetByID(added.ID)
	require.NotNil(t, got)
	assert.Empty(t, got.SyncedAt, "failed push must leave the item unsynced")
}

func TestItemAddMarksSyncedOnPushSuccess(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	added, err := repo.Add(&models.InventoryItem{Name: "WD-40"}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	got := repo.GetByID(added.ID)
	require.NotNil(t, got)
	assert.NotEmpty(t, got.SyncedAt)
	require.Len(t, gw.inserts(), 1)
	assert.Equal(t, added.ID, gw.inserts()[0].ID)
}

func TestItemUpdateMergesPatch(t *testing.T) {
	repo, _, _ := newItemRepo(t, &fakeItemGateway{})

	added, err := repo.Add(&models.InventoryItem{Name: "Sandpaper", Category: "Abrasives", Quantity: 10}, "")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	qty := 4.0
	require.NoError(t, repo.Update(added.ID, &models.ItemPatch{Quantity: &qty}))

	got := repo.GetByID(added.ID)
	require.NotNil(t, got)
	assert.Equal(t, 4.0, got.Quantity)
	assert.Equal(t, "Abrasives", got.Category, "unpatched fields survive")
	assert.True(t, identity.Before(added.LastUpdated, got.LastUpdated), "lastUpdated must advance")
}

func TestItemUpdateUnknownIDIsNoop(t *testing.T) {
	repo, _, _ := newItemRepo(t, &fakeItemGateway{})
	name := "ghost"
	assert.NoError(t, repo.Update("missing", &models.ItemPatch{Name: &name}))
}

func TestItemDeleteIsLocalHardRemoteSoft(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	added, err := repo.Add(&models.InventoryItem{Name: "Caulk"}, "hh-1")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(added.ID))
	assert.Nil(t, repo.GetByID(added.ID), "deleted item disappears from local state immediately")

	repo.Flush()
	assert.Equal(t, []string{added.ID}, gw.softDeletes())
}

func TestItemLowStockBoundary(t *testing.T) {
	repo, _, notifier := newItemRepo(t, &fakeItemGateway{})

	added, err := repo.Add(&models.InventoryItem{Name: "Nails", Quantity: 20, Threshold: 5, Unit: "boxes"}, "")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateQuantity(added.ID, 6))
	assert.Empty(t, notifier.notifications(), "above threshold must not alert")
	assert.Empty(t, repo.GetLowStock())

	require.NoError(t, repo.UpdateQuantity(added.ID, 5))
	sent := notifier.notifications()
	require.Len(t, sent, 1, "at threshold must alert")
	assert.Equal(t, "Low Stock Alert", sent[0].Title)
	assert.Equal(t, "Nails is running low. Only 5 boxes remaining.", sent[0].Body)
	assert.Equal(t, added.ID, sent[0].Data["itemId"])

	require.Len(t, repo.GetLowStock(), 1)

	// Every qualifying update re-fires; there is no cooldown.
	require.NoError(t, repo.UpdateQuantity(added.ID, 4))
	assert.Len(t, notifier.notifications(), 2)
}

func TestItemSyncToRemotePushesOnlyUnsynced(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	a, err := repo.Add(&models.InventoryItem{Name: "A"}, "hh-1")
	require.NoError(t, err)
	b, err := repo.Add(&models.InventoryItem{Name: "B"}, "hh-1")
	require.NoError(t, err)
	repo.Flush() // both pushed, both synced

	qty := 2.0
	require.NoError(t, repo.Update(a.ID, &models.ItemPatch{Quantity: &qty}))
	repo.Flush()

	// Knock out a's synced marker to simulate a push that never landed.
	gw.fail(errors.New("offline"))
	require.NoError(t, repo.Update(a.ID, &models.ItemPatch{Quantity: &qty}))
	repo.Flush()
	gw.fail(nil)

	before := len(gw.upserts())
	require.NoError(t, repo.SyncToRemote(context.Background(), "hh-1"))

	pushed := gw.upserts()[before:]
	require.Len(t, pushed, 1)
	assert.Equal(t, a.ID, pushed[0].ID)

	assert.NotEmpty(t, repo.GetByID(a.ID).SyncedAt)
	assert.NotEmpty(t, repo.GetByID(b.ID).SyncedAt)
	assert.NotEmpty(t, repo.LastSyncTime())
}

func TestItemSyncToRemoteAggregatesFailures(t *testing.T) {
	gw := &fakeItemGateway{}
	gw.fail(errors.New("offline"))
	repo, _, _ := newItemRepo(t, gw)

	added, err := repo.Add(&models.InventoryItem{Name: "A"}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	err = repo.SyncToRemote(context.Background(), "hh-1")
	assert.Error(t, err)
	assert.Empty(t, repo.GetByID(added.ID).SyncedAt, "failed rows stay unsynced")
}

func TestItemFetchMergesByIdentity(t *testing.T) {
	gw := &fakeItemGateway{}
	gw.fail(errors.New("offline"))
	repo, _, _ := newItemRepo(t, gw)

	// a: household row with a pending local edit that was never pushed.
	a, err := repo.Add(&models.InventoryItem{Name: "A local", Quantity: 1}, "hh-1")
	require.NoError(t, err)
	// b: belongs to a different household, must survive untouched.
	b, err := repo.Add(&models.InventoryItem{Name: "B"}, "hh-2")
	require.NoError(t, err)
	// c: never attached to any household.
	c, err := repo.Add(&models.InventoryItem{Name: "C"}, "")
	require.NoError(t, err)
	repo.Flush()
	gw.fail(nil)

	remoteA := a.Clone()
	remoteA.Name = "A remote"
	remoteA.Quantity = 9
	gw.selectRows = []*models.InventoryItem{
		remoteA,
		{ID: "item-d", Name: "D", HouseholdID: "hh-1", DateAdded: identity.Now(), LastUpdated: identity.Now()},
	}

	require.NoError(t, repo.FetchFromRemote(context.Background(), "hh-1"))

	got := repo.GetByID(a.ID)
	require.NotNil(t, got)
	assert.Equal(t, "A remote", got.Name, "remote wins for same-household ids")
	assert.Equal(t, 9.0, got.Quantity)

	assert.NotNil(t, repo.GetByID(b.ID), "other-household rows preserved")
	assert.NotNil(t, repo.GetByID(c.ID), "local-only rows preserved")
	assert.NotNil(t, repo.GetByID("item-d"), "new remote rows appear")
	assert.Len(t, repo.List(), 4)
}

func TestItemRealtimeInsertDedup(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)
	require.NoError(t, repo.SubscribeRealtime("hh-1"))

	added, err := repo.Add(&models.InventoryItem{Name: "Tape"}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	// The echo of our own insert comes back over the feed.
	echo := added.Clone()
	echo.Name = "Tape echoed"
	gw.emit(ItemEvent{Op: OpInsert, ID: added.ID, Item: echo})

	got := repo.GetByID(added.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Tape", got.Name, "existing rows are not replaced by insert events")
	assert.Len(t, repo.List(), 1)
}

func TestItemRealtimeStaleUpdateDropped(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)
	require.NoError(t, repo.SubscribeRealtime("hh-1"))

	added, err := repo.Add(&models.InventoryItem{Name: "Glue", Quantity: 5}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	stale := added.Clone()
	stale.Quantity = 1
	stale.LastUpdated = identity.Format(time.Now().Add(-time.Hour))
	gw.emit(ItemEvent{Op: OpUpdate, ID: added.ID, Item: stale})
	assert.Equal(t, 5.0, repo.GetByID(added.ID).Quantity, "older event must not revert local state")

	fresh := added.Clone()
	fresh.Quantity = 7
	fresh.LastUpdated = identity.Format(time.Now().Add(time.Hour))
	gw.emit(ItemEvent{Op: OpUpdate, ID: added.ID, Item: fresh})
	assert.Equal(t, 7.0, repo.GetByID(added.ID).Quantity)
}

func TestItemRealtimeUpdateWithDeletedAtRemoves(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)
	require.NoError(t, repo.SubscribeRealtime("hh-1"))

	added, err := repo.Add(&models.InventoryItem{Name: "Primer"}, "hh-1")
	require.NoError(t, err)
	repo.Flush()

	// Another device soft-deleted the row; it arrives as an UPDATE.
	tomb := added.Clone()
	tomb.DeletedAt = identity.Now()
	gw.emit(ItemEvent{Op: OpUpdate, ID: added.ID, Item: tomb})

	assert.Nil(t, repo.GetByID(added.ID))
	assert.Empty(t, repo.List())
}

func TestItemRealtimeDeleteUnknownIgnored(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)
	require.NoError(t, repo.SubscribeRealtime("hh-1"))

	gw.emit(ItemEvent{Op: OpDelete, ID: "never-seen"})
	assert.Empty(t, repo.List())
}

func TestItemResubscribeTearsDownPrevious(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	require.NoError(t, repo.SubscribeRealtime("hh-1"))
	require.NoError(t, repo.SubscribeRealtime("hh-1"))
	assert.Equal(t, 2, gw.subscribed)
	assert.Equal(t, 1, gw.torndown)

	repo.Unsubscribe()
	assert.Equal(t, 2, gw.torndown)
	repo.Unsubscribe() // idempotent
	assert.Equal(t, 2, gw.torndown)
}

func TestItemMigrateLocalToRemote(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	local, err := repo.Add(&models.InventoryItem{Name: "Pre-existing"}, "")
	require.NoError(t, err)
	other, err := repo.Add(&models.InventoryItem{Name: "Elsewhere"}, "hh-2")
	require.NoError(t, err)
	repo.Flush()

	before := len(gw.upserts())
	require.NoError(t, repo.MigrateLocalToRemote(context.Background(), "hh-1"))

	migrated := gw.upserts()[before:]
	require.Len(t, migrated, 1)
	assert.Equal(t, local.ID, migrated[0].ID)
	assert.Equal(t, "hh-1", migrated[0].HouseholdID)

	got := repo.GetByID(local.ID)
	assert.Equal(t, "hh-1", got.HouseholdID)
	assert.NotEmpty(t, got.SyncedAt)
	assert.Equal(t, "hh-2", repo.GetByID(other.ID).HouseholdID)
}

func TestItemMigrateFailureLeavesLocalUntouched(t *testing.T) {
	gw := &fakeItemGateway{}
	repo, _, _ := newItemRepo(t, gw)

	local, err := repo.Add(&models.InventoryItem{Name: "Pre-existing"}, "")
	require.NoError(t, err)

	gw.fail(errors.New("offline"))
	require.Error(t, repo.MigrateLocalToRemote(context.Background(), "hh-1"))

	got := repo.GetByID(local.ID)
	assert.Empty(t, got.HouseholdID, "failed migration must not stamp the row")
	assert.Empty(t, got.SyncedAt)
}

func TestItemQueriesFilterAndSort(t *testing.T) {
	repo, _, _ := newItemRepo(t, &fakeItemGateway{})

	_, err := repo.Add(&models.InventoryItem{
		Name: "Circular Saw", Category: "Power Tools",
		Details: models.ItemDetails{"brand": "DeWalt", models.DetailStorageLocationID: "loc-1"},
	}, "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = repo.Add(&models.InventoryItem{
		Name: "Screwdriver", Category: "Hand Tools",
		Details: models.ItemDetails{models.DetailStorageLocationID: "loc-2"},
	}, "")
	require.NoError(t, err)

	list := repo.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Screwdriver", list[0].Name, "newest first")

	assert.Equal(t, []string{"Hand Tools", "Power Tools"}, repo.Categories())

	byLoc := repo.GetByLocation("loc-1")
	require.Len(t, byLoc, 1)
	assert.Equal(t, "Circular Saw", byLoc[0].Name)
	assert.Equal(t, 1, repo.CountByLocation("loc-2"))
	assert.Equal(t, 0, repo.CountByLocation("loc-3"))

	names := func(items []*models.InventoryItem) []string {
		var out []string
		for _, it := range items {
			out = append(out, it.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Screwdriver", "Circular Saw"}, names(repo.Search("screw")))
	assert.Equal(t, []string{"Circular Saw"}, names(repo.Search("dewalt")))
	assert.Equal(t, []string{"Screwdriver"}, names(repo.Search("hand tools")))
	assert.Len(t, repo.Search(""), 2)
	assert.Empty(t, repo.Search("welding"))
}

func TestItemSnapshotSurvivesRestart(t *testing.T) {
	gw := &fakeItemGateway{}
	store := newFakeStore()
	repo, err := NewItemRepository(store, gw, &fakeNotifier{}, testLogger())
	require.NoError(t, err)

	added, err := repo.Add(&models.InventoryItem{Name: "Spare Fuses", Quantity: 12}, "")
	require.NoError(t, err)
	repo.Close()

	reopened, err := NewItemRepository(store, gw, &fakeNotifier{}, testLogger())
	require.NoError(t, err)
	got := reopened.GetByID(added.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Spare Fuses", got.Name)
	assert.Equal(t, 12.0, got.Quantity)
}
