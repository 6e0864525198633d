package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"garagestock/internal/identity"
	"garagestock/internal/localstore"
	"garagestock/internal/metrics"
	"garagestock/internal/models"
	"garagestock/internal/notify"
)

// remotePushTimeout bounds the fire-and-forget pushes so a dead network
// cannot pile up goroutines forever.
const remotePushTimeout = 15 * time.Second

// itemSnapshot is the serialized form written to the local store after
// every mutation.
type itemSnapshot struct {
	Items        []*models.InventoryItem `json:"items"`
	LastSyncTime string                  `json:"lastSyncTime,omitempty"`
}

// ItemRepository owns the items collection. Local mutations are synchronous
// and atomic under the mutex; remote pushes run in goroutines and never
// gate the caller. Local state is authoritative for the session.
type ItemRepository struct {
	mu           sync.Mutex
	items        map[string]*models.InventoryItem
	lastSyncTime string

	store    localstore.Store
	gateway  ItemGateway
	notifier notify.Notifier
	logger   *logrus.Logger

	syncing     *atomic.Bool
	unsubscribe func()
	inflight    sync.WaitGroup
}

// NewItemRepository loads the persisted collection and returns the
// repository. A missing snapshot means a fresh install, not an error.
func NewItemRepository(store localstore.Store, gateway ItemGateway, notifier notify.Notifier, logger *logrus.Logger) (*ItemRepository, error) {
	r := &ItemRepository{
		items:    make(map[string]*models.InventoryItem),
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		syncing:  atomic.NewBool(false),
	}

	raw, ok, err := store.Get(localstore.KeyItems)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	if ok {
		var snap itemSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode items snapshot: %w", err)
		}
		for _, item := range snap.Items {
			r.items[item.ID] = item
		}
		r.lastSyncTime = snap.LastSyncTime
	}

	return r, nil
}

// Add assigns identity and timestamps, appends the item to the local
// collection unconditionally, and fires a remote insert when a household is
// supplied. The local write always succeeds even with the network down; a
// failed push leaves syncedAt unset.
func (r *ItemRepository) Add(item *models.InventoryItem, householdID string) (*models.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, ErrNameRequired
	}

	now := identity.Now()
	item = item.Clone()
	item.ID = identity.NewItemID()
	item.DateAdded = now
	item.LastUpdated = now
	item.HouseholdID = householdID
	item.SyncedAt = ""
	item.DeletedAt = ""

	r.mu.Lock()
	r.items[item.ID] = item
	r.persistLocked()
	r.mu.Unlock()

	if householdID != "" {
		r.push(item.Clone(), func(ctx context.Context, it *models.InventoryItem) error {
			return r.gateway.Insert(ctx, it)
		})
	}

	return item.Clone(), nil
}

// Update merges the patch into the existing item and refreshes lastUpdated.
// Unknown ids are a silent no-op. Household items get a full-row remote
// update; remote failure is logged only.
func (r *ItemRepository) Update(id string, patch *models.ItemPatch) error {
	r.mu.Lock()
	item, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	patch.Apply(item)
	item.LastUpdated = identity.Now()
	item.SyncedAt = "" // dirty until the remote write lands
	r.persistLocked()
	pending := item.Clone()
	r.mu.Unlock()

	if pending.HouseholdID != "" {
		r.push(pending, func(ctx context.Context, it *models.InventoryItem) error {
			return r.gateway.Update(ctx, it)
		})
	}

	return nil
}

// Delete removes the item from local state immediately and issues a remote
// soft delete. The asymmetry is deliberate: the local view never shows
// soft-deleted items, while the remote keeps the row so other devices can
// observe the deletion during sync catch-up.
func (r *ItemRepository) Delete(id string) error {
	r.mu.Lock()
	item, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.items, id)
	r.persistLocked()
	householdID := item.HouseholdID
	r.mu.Unlock()

	if householdID != "" {
		deletedAt := identity.Now()
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), remotePushTimeout)
			defer cancel()
			if err := r.gateway.SoftDelete(ctx, id, deletedAt); err != nil {
				metrics.RemotePushes.WithLabelValues("items", "error").Inc()
				r.logger.WithError(err).WithField("item_id", id).Error("failed to soft-delete item remotely")
				return
			}
			metrics.RemotePushes.WithLabelValues("items", "ok").Inc()
		}()
	}

	return nil
}

// UpdateQuantity is the specialized update path for stock changes. The
// low-stock check fires after the local commit regardless of how the
// remote push fares.
func (r *ItemRepository) UpdateQuantity(id string, quantity float64) error {
	if err := r.Update(id, &models.ItemPatch{Quantity: &quantity}); err != nil {
		return err
	}
	r.CheckAndNotifyLowStock(id)
	return nil
}

// GetByID returns a copy of the item, or nil when absent.
func (r *ItemRepository) GetByID(id string) *models.InventoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.DeletedAt != "" {
		return nil
	}
	return item.Clone()
}

// List returns all non-deleted items, newest first.
func (r *ItemRepository) List() []*models.InventoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(*models.InventoryItem) bool { return true })
}

// GetLowStock returns all non-deleted items at or below their threshold.
// The deleted filter lives here on purpose: leaving it to callers is how
// ghost rows end up in restock reminders.
func (r *ItemRepository) GetLowStock() []*models.InventoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(it *models.InventoryItem) bool { return it.IsLowStock() })
}

// GetByLocation returns non-deleted items filed under the given storage
// location.
func (r *ItemRepository) GetByLocation(locationID string) []*models.InventoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(it *models.InventoryItem) bool {
		return it.Details.StorageLocationID() == locationID
	})
}

// CountByLocation reports how many non-deleted items reference the storage
// location. The location repository consults this before allowing a delete.
func (r *ItemRepository) CountByLocation(locationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.DeletedAt == "" && it.Details.StorageLocationID() == locationID {
			n++
		}
	}
	return n
}

// Categories returns the distinct categories present in the collection,
// sorted. The user-facing category list derives from the items themselves.
func (r *ItemRepository) Categories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	for _, it := range r.items {
		if it.DeletedAt == "" && it.Category != "" {
			seen[it.Category] = true
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// Search returns non-deleted items whose name, category or brand contains
// the query, case-insensitively.
func (r *ItemRepository) Search(query string) []*models.InventoryItem {
	query = strings.ToLower(strings.TrimSpace(query))
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(it *models.InventoryItem) bool {
		if query == "" {
			return true
		}
		brand, _ := it.Details["brand"].(string)
		return strings.Contains(strings.ToLower(it.Name), query) ||
			strings.Contains(strings.ToLower(it.Category), query) ||
			strings.Contains(strings.ToLower(brand), query)
	})
}

// CheckAndNotifyLowStock emits one notification if the item is at or below
// its threshold. Every qualifying quantity update re-fires; there is no
// cooldown.
func (r *ItemRepository) CheckAndNotifyLowStock(id string) {
	item := r.GetByID(id)
	if item == nil || !item.IsLowStock() {
		return
	}

	n := notify.Notification{
		Title: "Low Stock Alert",
		Body:  fmt.Sprintf("%s is running low. Only %s %s remaining.", item.Name, formatQuantity(item.Quantity), item.Unit),
		Data:  map[string]string{"itemId": item.ID},
	}
	if err := r.notifier.Notify(context.Background(), n); err != nil {
		r.logger.WithError(err).WithField("item_id", id).Error("failed to send low stock notification")
		return
	}
	metrics.LowStockAlerts.Inc()
}

// SyncToRemote pushes every unsynced item belonging to the household as an
// upsert. Concurrent invocations are no-ops; per-row failures are
// aggregated and the affected rows stay unsynced.
func (r *ItemRepository) SyncToRemote(ctx context.Context, householdID string) error {
	if !r.syncing.CAS(false, true) {
		return nil
	}
	defer r.syncing.Store(false)

	r.mu.Lock()
	var unsynced []*models.InventoryItem
	for _, it := range r.items {
		if it.SyncedAt == "" && it.HouseholdID == householdID {
			unsynced = append(unsynced, it.Clone())
		}
	}
	r.mu.Unlock()

	var errs *multierror.Error
	var pushed []string
	for _, it := range unsynced {
		if err := r.gateway.Upsert(ctx, []*models.InventoryItem{it}); err != nil {
			metrics.RemotePushes.WithLabelValues("items", "error").Inc()
			errs = multierror.Append(errs, fmt.Errorf("item %s: %w", it.ID, err))
			continue
		}
		metrics.RemotePushes.WithLabelValues("items", "ok").Inc()
		pushed = append(pushed, it.ID)
	}

	now := identity.Now()
	r.mu.Lock()
	for _, id := range pushed {
		if it, ok := r.items[id]; ok {
			it.SyncedAt = now
		}
	}
	r.lastSyncTime = now
	r.persistLocked()
	r.mu.Unlock()

	return errs.ErrorOrNil()
}

// FetchFromRemote pulls all non-deleted rows for the household and merges
// them by identity: remote rows win over stale local copies with the same
// id, items without a household or from a different household are
// preserved untouched, and never-pushed local rows survive the merge.
func (r *ItemRepository) FetchFromRemote(ctx context.Context, householdID string) error {
	fetched, err := r.gateway.SelectWhere(ctx, householdID, true)
	if err != nil {
		return fmt.Errorf("failed to fetch items: %w", err)
	}

	r.mu.Lock()
	merged := make(map[string]*models.InventoryItem, len(fetched))
	for _, it := range fetched {
		merged[it.ID] = it
	}
	for id, it := range r.items {
		if it.HouseholdID == householdID {
			continue // replaced wholesale by the fetch result
		}
		if _, ok := merged[id]; !ok {
			merged[id] = it
		}
	}
	r.items = merged
	r.lastSyncTime = identity.Now()
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"household_id": householdID,
		"fetched":      len(fetched),
	}).Debug("fetched items from remote")
	return nil
}

// SubscribeRealtime establishes the single live change-feed subscription
// for the household, tearing down any previous one first.
func (r *ItemRepository) SubscribeRealtime(householdID string) error {
	r.Unsubscribe()

	unsubscribe, err := r.gateway.Subscribe(householdID, r.applyEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to item changes: %w", err)
	}

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Unsubscribe tears down the live subscription if one is active.
func (r *ItemRepository) Unsubscribe() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// applyEvent merges one change-feed event into local state. Inserts are
// de-duplicated by id, updates are dropped when older than the local copy
// (a late echo must not revert a newer edit), and a row arriving with
// deletedAt set is removed so the local view never shows soft-deleted
// items. Deletes for unknown ids are ignored.
func (r *ItemRepository) applyEvent(ev ItemEvent) {
	metrics.RealtimeEvents.WithLabelValues("items", string(ev.Op)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Op {
	case OpInsert:
		if ev.Item == nil || ev.Item.DeletedAt != "" {
			return
		}
		if _, exists := r.items[ev.ID]; exists {
			return
		}
		r.items[ev.ID] = ev.Item
		r.persistLocked()

	case OpUpdate:
		if ev.Item == nil {
			return
		}
		current, ok := r.items[ev.ID]
		if !ok {
			return
		}
		if ev.Item.DeletedAt != "" {
			delete(r.items, ev.ID)
			r.persistLocked()
			return
		}
		if identity.Before(ev.Item.LastUpdated, current.LastUpdated) {
			metrics.StaleEventsDropped.WithLabelValues("items").Inc()
			r.logger.WithField("item_id", ev.ID).Debug("dropped stale realtime update")
			return
		}
		r.items[ev.ID] = ev.Item
		r.persistLocked()

	case OpDelete:
		if _, ok := r.items[ev.ID]; !ok {
			return
		}
		delete(r.items, ev.ID)
		r.persistLocked()
	}
}

// MigrateLocalToRemote stamps every local-only item with the household id
// and bulk-uploads it. A no-op when there is nothing to migrate; on
// failure nothing is stamped, so the migration can simply run again.
func (r *ItemRepository) MigrateLocalToRemote(ctx context.Context, householdID string) error {
	r.mu.Lock()
	var local []*models.InventoryItem
	for _, it := range r.items {
		if it.HouseholdID == "" {
			migrated := it.Clone()
			migrated.HouseholdID = householdID
			local = append(local, migrated)
		}
	}
	r.mu.Unlock()

	if len(local) == 0 {
		return nil
	}

	if err := r.gateway.Upsert(ctx, local); err != nil {
		metrics.RemotePushes.WithLabelValues("items", "error").Inc()
		return fmt.Errorf("failed to migrate %d items: %w", len(local), err)
	}
	metrics.RemotePushes.WithLabelValues("items", "ok").Inc()

	now := identity.Now()
	r.mu.Lock()
	for _, migrated := range local {
		if it, ok := r.items[migrated.ID]; ok {
			it.HouseholdID = householdID
			it.SyncedAt = now
		}
	}
	r.lastSyncTime = now
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithField("count", len(local)).Info("migrated local items to household")
	return nil
}

// LastSyncTime returns the timestamp of the last successful bulk sync or
// fetch, or "" when none has happened.
func (r *ItemRepository) LastSyncTime() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSyncTime
}

// Flush waits for in-flight remote pushes. Used on shutdown and in tests;
// callers never wait on it in the mutation path.
func (r *ItemRepository) Flush() {
	r.inflight.Wait()
}

// Close tears down the subscription and drains pending pushes.
func (r *ItemRepository) Close() {
	r.Unsubscribe()
	r.Flush()
}

// push runs a fire-and-forget remote write for a single item and stamps
// syncedAt on success, if the item still exists by then.
func (r *ItemRepository) push(item *models.InventoryItem, op func(context.Context, *models.InventoryItem) error) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remotePushTimeout)
		defer cancel()

		if err := op(ctx, item); err != nil {
			metrics.RemotePushes.WithLabelValues("items", "error").Inc()
			r.logger.WithError(err).WithField("item_id", item.ID).Error("failed to push item to remote")
			return
		}
		metrics.RemotePushes.WithLabelValues("items", "ok").Inc()

		now := identity.Now()
		r.mu.Lock()
		if current, ok := r.items[item.ID]; ok {
			current.SyncedAt = now
			r.persistLocked()
		}
		r.mu.Unlock()
	}()
}

// collectLocked gathers non-deleted items matching keep, newest first.
// Callers must hold the mutex.
func (r *ItemRepository) collectLocked(keep func(*models.InventoryItem) bool) []*models.InventoryItem {
	items := make([]*models.InventoryItem, 0, len(r.items))
	for _, it := range r.items {
		if it.DeletedAt == "" && keep(it) {
			items = append(items, it.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].DateAdded != items[j].DateAdded {
			return items[i].DateAdded > items[j].DateAdded
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// persistLocked rewrites the snapshot in the local store. Durable-write
// failures are logged, not propagated: the in-memory state is already
// committed and the next mutation retries the write anyway.
func (r *ItemRepository) persistLocked() {
	snap := itemSnapshot{
		Items:        make([]*models.InventoryItem, 0, len(r.items)),
		LastSyncTime: r.lastSyncTime,
	}
	for _, it := range r.items {
		snap.Items = append(snap.Items, it)
	}
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].ID < snap.Items[j].ID })

	raw, err := json.Marshal(snap)
	if err != nil {
		r.logger.WithError(err).Error("failed to encode items snapshot")
		return
	}
	if err := r.store.Put(localstore.KeyItems, raw); err != nil {
		r.logger.WithError(err).Error("failed to persist items snapshot")
	}
}

func formatQuantity(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%g", q)
}
