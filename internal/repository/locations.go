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
)

// removalGracePeriod is how long a soft-deleted location stays in local
// state (invisible to reads) before the sweep physically drops it. The
// grace window gives the deletion event time to propagate to the remote
// before the row disappears from this device entirely.
const removalGracePeriod = 5 * time.Second

// ItemReferencer answers how many live items are filed under a storage
// location. Deleting a location is rejected while the count is non-zero.
type ItemReferencer interface {
	CountByLocation(locationID string) int
}

type locationSnapshot struct {
	Locations    []*models.StorageLocation `json:"locations"`
	LastSyncTime string                    `json:"lastSyncTime,omitempty"`
}

// LocationRepository owns the storage-locations collection. It mirrors the
// item repository's offline-first contract, with two differences: the id
// doubles as the QR payload, and deletion is two-phase — soft-deleted rows
// linger (hidden) for a grace period before the sweep drops them.
type LocationRepository struct {
	mu           sync.Mutex
	locations    map[string]*models.StorageLocation
	lastSyncTime string

	store   localstore.Store
	gateway LocationGateway
	refs    ItemReferencer
	logger  *logrus.Logger

	removalGrace time.Duration
	syncing      *atomic.Bool
	unsubscribe  func()
	inflight     sync.WaitGroup
}

// NewLocationRepository loads the persisted collection and returns the
// repository.
func NewLocationRepository(store localstore.Store, gateway LocationGateway, refs ItemReferencer, logger *logrus.Logger) (*LocationRepository, error) {
	r := &LocationRepository{
		locations:    make(map[string]*models.StorageLocation),
		store:        store,
		gateway:      gateway,
		refs:         refs,
		logger:       logger,
		removalGrace: removalGracePeriod,
		syncing:      atomic.NewBool(false),
	}

	raw, ok, err := store.Get(localstore.KeyLocations)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	if ok {
		var snap locationSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode locations snapshot: %w", err)
		}
		for _, loc := range snap.Locations {
			r.locations[loc.ID] = loc
		}
		r.lastSyncTime = snap.LastSyncTime
	}

	return r, nil
}

// Add creates the location and returns it synchronously so callers can
// render its QR code immediately, even while the remote insert is still in
// flight. The QR payload is the id itself.
func (r *LocationRepository) Add(loc *models.StorageLocation, householdID string) (*models.StorageLocation, error) {
	if strings.TrimSpace(loc.Name) == "" {
		return nil, ErrNameRequired
	}

	now := identity.Now()
	loc = loc.Clone()
	loc.ID = identity.NewLocationID()
	loc.QRCode = loc.ID
	if loc.Type == "" {
		loc.Type = models.StorageOther
	}
	loc.DateAdded = now
	loc.LastUpdated = now
	loc.HouseholdID = householdID
	loc.SyncedAt = ""
	loc.DeletedAt = ""

	r.mu.Lock()
	r.locations[loc.ID] = loc
	r.persistLocked()
	r.mu.Unlock()

	if householdID != "" {
		r.push(loc.Clone(), func(ctx context.Context, l *models.StorageLocation) error {
			return r.gateway.Insert(ctx, l)
		})
	}

	return loc.Clone(), nil
}

// Update merges the patch into the location. Unknown or soft-deleted ids
// are a silent no-op.
func (r *LocationRepository) Update(id string, patch *models.LocationPatch) error {
	r.mu.Lock()
	loc, ok := r.locations[id]
	if !ok || loc.DeletedAt != "" {
		r.mu.Unlock()
		return nil
	}

	patch.Apply(loc)
	loc.LastUpdated = identity.Now()
	loc.SyncedAt = "" // dirty until the remote write lands
	r.persistLocked()
	pending := loc.Clone()
	r.mu.Unlock()

	if pending.HouseholdID != "" {
		r.push(pending, func(ctx context.Context, l *models.StorageLocation) error {
			return r.gateway.Update(ctx, l)
		})
	}

	return nil
}

// Delete soft-deletes the location: the deletion is rejected before any
// mutation while live items still reference the location; otherwise the
// row is marked deleted (immediately invisible to reads), mirrored
// remotely, and physically dropped once the grace period elapses.
func (r *LocationRepository) Delete(id string) error {
	if n := r.refs.CountByLocation(id); n > 0 {
		return fmt.Errorf("%w: %d items", ErrLocationInUse, n)
	}

	deletedAt := identity.Now()

	r.mu.Lock()
	loc, ok := r.locations[id]
	if !ok || loc.DeletedAt != "" {
		r.mu.Unlock()
		return nil
	}
	loc.DeletedAt = deletedAt
	r.persistLocked()
	householdID := loc.HouseholdID
	r.mu.Unlock()

	if householdID != "" {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), remotePushTimeout)
			defer cancel()
			if err := r.gateway.SoftDelete(ctx, id, deletedAt); err != nil {
				metrics.RemotePushes.WithLabelValues("locations", "error").Inc()
				r.logger.WithError(err).WithField("location_id", id).Error("failed to soft-delete location remotely")
				return
			}
			metrics.RemotePushes.WithLabelValues("locations", "ok").Inc()
		}()
	}

	return nil
}

// SweepExpired physically removes soft-deleted rows whose grace period has
// elapsed and returns how many were dropped. The pending-removal state is
// derived from deletedAt, so restarts cannot leak rows the way a
// fire-and-forget timer would.
func (r *LocationRepository) SweepExpired() int {
	cutoff := time.Now().Add(-r.removalGrace)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, loc := range r.locations {
		if loc.DeletedAt == "" {
			continue
		}
		deletedAt, ok := identity.Parse(loc.DeletedAt)
		if ok && deletedAt.After(cutoff) {
			continue
		}
		delete(r.locations, id)
		removed++
	}
	if removed > 0 {
		r.persistLocked()
		r.logger.WithField("count", removed).Debug("swept expired storage locations")
	}
	return removed
}

// GetByID returns a copy of the location, or nil when absent or
// soft-deleted.
func (r *LocationRepository) GetByID(id string) *models.StorageLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	if !ok || loc.DeletedAt != "" {
		return nil
	}
	return loc.Clone()
}

// GetByQRCode resolves a scanned QR payload. The payload is the location
// id, so this is the same lookup under the scanner-facing name.
func (r *LocationRepository) GetByQRCode(qrCode string) *models.StorageLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loc := range r.locations {
		if loc.QRCode == qrCode && loc.DeletedAt == "" {
			return loc.Clone()
		}
	}
	return nil
}

// List returns all non-deleted locations, newest first.
func (r *LocationRepository) List() []*models.StorageLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(*models.StorageLocation) bool { return true })
}

// GetByType returns non-deleted locations of the given type.
func (r *LocationRepository) GetByType(t models.StorageType) []*models.StorageLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(func(l *models.StorageLocation) bool { return l.Type == t })
}

// SyncToRemote pushes every unsynced location for the household as an
// upsert, guarded against concurrent invocations.
func (r *LocationRepository) SyncToRemote(ctx context.Context, householdID string) error {
	if !r.syncing.CAS(false, true) {
		return nil
	}
	defer r.syncing.Store(false)

	r.mu.Lock()
	var unsynced []*models.StorageLocation
	for _, loc := range r.locations {
		if loc.SyncedAt == "" && loc.DeletedAt == "" && loc.HouseholdID == householdID {
			unsynced = append(unsynced, loc.Clone())
		}
	}
	r.mu.Unlock()

	var errs *multierror.Error
	var pushed []string
	for _, loc := range unsynced {
		if err := r.gateway.Upsert(ctx, []*models.StorageLocation{loc}); err != nil {
			metrics.RemotePushes.WithLabelValues("locations", "error").Inc()
			errs = multierror.Append(errs, fmt.Errorf("location %s: %w", loc.ID, err))
			continue
		}
		metrics.RemotePushes.WithLabelValues("locations", "ok").Inc()
		pushed = append(pushed, loc.ID)
	}

	now := identity.Now()
	r.mu.Lock()
	for _, id := range pushed {
		if loc, ok := r.locations[id]; ok {
			loc.SyncedAt = now
		}
	}
	r.lastSyncTime = now
	r.persistLocked()
	r.mu.Unlock()

	return errs.ErrorOrNil()
}

// FetchFromRemote merges the household's remote rows into local state by
// identity, preserving local-only rows and rows from other households.
func (r *LocationRepository) FetchFromRemote(ctx context.Context, householdID string) error {
	fetched, err := r.gateway.SelectWhere(ctx, householdID, true)
	if err != nil {
		return fmt.Errorf("failed to fetch locations: %w", err)
	}

	r.mu.Lock()
	merged := make(map[string]*models.StorageLocation, len(fetched))
	for _, loc := range fetched {
		merged[loc.ID] = loc
	}
	for id, loc := range r.locations {
		if loc.HouseholdID == householdID {
			continue
		}
		if _, ok := merged[id]; !ok {
			merged[id] = loc
		}
	}
	r.locations = merged
	r.lastSyncTime = identity.Now()
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"household_id": householdID,
		"fetched":      len(fetched),
	}).Debug("fetched locations from remote")
	return nil
}

// SubscribeRealtime establishes the single live subscription for the
// household, replacing any previous one.
func (r *LocationRepository) SubscribeRealtime(householdID string) error {
	r.Unsubscribe()

	unsubscribe, err := r.gateway.Subscribe(householdID, r.applyEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to location changes: %w", err)
	}

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Unsubscribe tears down the live subscription if one is active.
func (r *LocationRepository) Unsubscribe() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// applyEvent merges one change-feed event. An update carrying deletedAt
// moves the local row into pending removal instead of replacing it, so a
// remote deletion follows the same two-phase path as a local one.
func (r *LocationRepository) applyEvent(ev LocationEvent) {
	metrics.RealtimeEvents.WithLabelValues("locations", string(ev.Op)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Op {
	case OpInsert:
		if ev.Location == nil || ev.Location.DeletedAt != "" {
			return
		}
		if _, exists := r.locations[ev.ID]; exists {
			return
		}
		r.locations[ev.ID] = ev.Location
		r.persistLocked()

	case OpUpdate:
		if ev.Location == nil {
			return
		}
		current, ok := r.locations[ev.ID]
		if !ok {
			return
		}
		if ev.Location.DeletedAt != "" {
			current.DeletedAt = ev.Location.DeletedAt
			r.persistLocked()
			return
		}
		if identity.Before(ev.Location.LastUpdated, current.LastUpdated) {
			metrics.StaleEventsDropped.WithLabelValues("locations").Inc()
			r.logger.WithField("location_id", ev.ID).Debug("dropped stale realtime update")
			return
		}
		r.locations[ev.ID] = ev.Location
		r.persistLocked()

	case OpDelete:
		if _, ok := r.locations[ev.ID]; !ok {
			return
		}
		delete(r.locations, ev.ID)
		r.persistLocked()
	}
}

// MigrateLocalToRemote stamps local-only locations with the household id
// and bulk-uploads them.
func (r *LocationRepository) MigrateLocalToRemote(ctx context.Context, householdID string) error {
	r.mu.Lock()
	var local []*models.StorageLocation
	for _, loc := range r.locations {
		if loc.HouseholdID == "" && loc.DeletedAt == "" {
			migrated := loc.Clone()
			migrated.HouseholdID = householdID
			local = append(local, migrated)
		}
	}
	r.mu.Unlock()

	if len(local) == 0 {
		return nil
	}

	if err := r.gateway.Upsert(ctx, local); err != nil {
		metrics.RemotePushes.WithLabelValues("locations", "error").Inc()
		return fmt.Errorf("failed to migrate %d locations: %w", len(local), err)
	}
	metrics.RemotePushes.WithLabelValues("locations", "ok").Inc()

	now := identity.Now()
	r.mu.Lock()
	for _, migrated := range local {
		if loc, ok := r.locations[migrated.ID]; ok {
			loc.HouseholdID = householdID
			loc.SyncedAt = now
		}
	}
	r.lastSyncTime = now
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithField("count", len(local)).Info("migrated local locations to household")
	return nil
}

// LastSyncTime returns the timestamp of the last successful bulk sync or
// fetch.
func (r *LocationRepository) LastSyncTime() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSyncTime
}

// Flush waits for in-flight remote pushes.
func (r *LocationRepository) Flush() {
	r.inflight.Wait()
}

// Close tears down the subscription and drains pending pushes.
func (r *LocationRepository) Close() {
	r.Unsubscribe()
	r.Flush()
}

func (r *LocationRepository) push(loc *models.StorageLocation, op func(context.Context, *models.StorageLocation) error) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remotePushTimeout)
		defer cancel()

		if err := op(ctx, loc); err != nil {
			metrics.RemotePushes.WithLabelValues("locations", "error").Inc()
			r.logger.WithError(err).WithField("location_id", loc.ID).Error("failed to push location to remote")
			return
		}
		metrics.RemotePushes.WithLabelValues("locations", "ok").Inc()

		now := identity.Now()
		r.mu.Lock()
		if current, ok := r.locations[loc.ID]; ok {
			current.SyncedAt = now
			r.persistLocked()
		}
		r.mu.Unlock()
	}()
}

func (r *LocationRepository) collectLocked(keep func(*models.StorageLocation) bool) []*models.StorageLocation {
	locations := make([]*models.StorageLocation, 0, len(r.locations))
	for _, loc := range r.locations {
		if loc.DeletedAt == "" && keep(loc) {
			locations = append(locations, loc.Clone())
		}
	}
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].DateAdded != locations[j].DateAdded {
			return locations[i].DateAdded > locations[j].DateAdded
		}
		return locations[i].ID < locations[j].ID
	})
	return locations
}

func (r *LocationRepository) persistLocked() {
	snap := locationSnapshot{
		Locations:    make([]*models.StorageLocation, 0, len(r.locations)),
		LastSyncTime: r.lastSyncTime,
	}
	for _, loc := range r.locations {
		snap.Locations = append(snap.Locations, loc)
	}
	sort.Slice(snap.Locations, func(i, j int) bool { return snap.Locations[i].ID < snap.Locations[j].ID })

	raw, err := json.Marshal(snap)
	if err != nil {
		r.logger.WithError(err).Error("failed to encode locations snapshot")
		return
	}
	if err := r.store.Put(localstore.KeyLocations, raw); err != nil {
		r.logger.WithError(err).Error("failed to persist locations snapshot")
	}
}
