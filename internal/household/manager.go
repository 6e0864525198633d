// Package household binds a device to a shared inventory namespace and
// orchestrates what that means for the data layer: migrating pre-existing
// local-only rows, pushing unsynced ones, fetching the household's state
// and standing up the realtime subscriptions.
package household

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"garagestock/internal/identity"
	"garagestock/internal/localstore"
	"garagestock/internal/models"
	"garagestock/internal/repository"
)

// State of the device's household membership.
type State string

const (
	// StateUnbound means no active household; all data stays local-only.
	StateUnbound State = "unbound"
	// StateBound means an active household with this device registered as
	// a member.
	StateBound State = "bound"
)

var (
	// ErrAlreadyBound rejects creating or joining while bound: switching
	// households requires leaving the current one first.
	ErrAlreadyBound = errors.New("device already belongs to a household")
	// ErrUnknownInviteCode is returned when no household matches the code.
	ErrUnknownInviteCode = errors.New("unknown invite code")
)

// boundState is what survives restarts in the local store.
type boundState struct {
	Household *models.Household `json:"household,omitempty"`
}

// Manager is the membership state machine. Exactly one household may be
// active per device session.
type Manager struct {
	mu        sync.Mutex
	household *models.Household

	deviceID   string
	deviceName string

	gateway repository.HouseholdGateway
	store   localstore.Store
	syncers []repository.Syncer
	logger  *logrus.Logger
}

// NewManager loads the persisted membership (if any) and the device
// identity. The device id is a random identifier generated on first launch
// and persisted, so reinstalling the OS or renaming the device does not
// change who we are.
func NewManager(store localstore.Store, gateway repository.HouseholdGateway, deviceName string, logger *logrus.Logger, syncers ...repository.Syncer) (*Manager, error) {
	m := &Manager{
		deviceName: deviceName,
		gateway:    gateway,
		store:      store,
		syncers:    syncers,
		logger:     logger,
	}

	raw, ok, err := store.Get(localstore.KeyDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}
	if ok {
		m.deviceID = string(raw)
	} else {
		m.deviceID = identity.NewDeviceID()
		if err := store.Put(localstore.KeyDeviceID, []byte(m.deviceID)); err != nil {
			return nil, fmt.Errorf("failed to persist device id: %w", err)
		}
		logger.WithField("device_id", m.deviceID).Info("generated new device identity")
	}

	raw, ok, err = store.Get(localstore.KeyHousehold)
	if err != nil {
		return nil, fmt.Errorf("failed to load household state: %w", err)
	}
	if ok {
		var saved boundState
		if err := json.Unmarshal(raw, &saved); err != nil {
			return nil, fmt.Errorf("failed to decode household state: %w", err)
		}
		m.household = saved.Household
	}

	return m, nil
}

// Initialize resumes a previous membership at startup: a persisted
// household, or failing that, whatever the remote knows about this device.
// When bound, the sync fan-out runs. Remote errors leave the device usable
// in local-only mode.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	hh := m.household
	m.mu.Unlock()

	if hh == nil {
		found, err := m.gateway.FindMembership(ctx, m.deviceID)
		if err != nil {
			return fmt.Errorf("failed to check existing membership: %w", err)
		}
		if found == nil {
			return nil
		}
		hh = found
		m.setHousehold(hh)
		m.logger.WithField("household", hh.Name).Info("resumed household membership from remote")
	}

	m.bindCollections(ctx, hh.ID)
	return nil
}

// Create generates an invite code via the remote side, inserts the
// household, registers this device as a member and binds. On any remote
// failure the device stays unbound.
func (m *Manager) Create(ctx context.Context, name string) (*models.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, repository.ErrNameRequired
	}
	if m.State() == StateBound {
		return nil, ErrAlreadyBound
	}

	code, err := m.gateway.GenerateInviteCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	hh, err := m.gateway.InsertHousehold(ctx, name, code)
	if err != nil {
		return nil, fmt.Errorf("failed to create household: %w", err)
	}

	if err := m.gateway.AddMember(ctx, hh.ID, m.deviceID, m.deviceName); err != nil {
		return nil, fmt.Errorf("failed to register device in household: %w", err)
	}

	m.setHousehold(hh)
	m.logger.WithFields(logrus.Fields{
		"household":   hh.Name,
		"invite_code": hh.InviteCode,
	}).Info("created household")

	m.bindCollections(ctx, hh.ID)
	return hh.Clone(), nil
}

// Join looks up the household by invite code (case-insensitive) and
// registers this device. Joining the household we are already bound to is
// a no-op; membership registration is idempotent, so a retried join never
// duplicates rows.
func (m *Manager) Join(ctx context.Context, inviteCode string) (*models.Household, error) {
	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	if code == "" {
		return nil, ErrUnknownInviteCode
	}

	hh, err := m.gateway.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite code: %w", err)
	}
	if hh == nil {
		return nil, ErrUnknownInviteCode
	}

	m.mu.Lock()
	current := m.household
	m.mu.Unlock()
	if current != nil && current.ID != hh.ID {
		return nil, ErrAlreadyBound
	}

	if err := m.gateway.AddMember(ctx, hh.ID, m.deviceID, m.deviceName); err != nil {
		return nil, fmt.Errorf("failed to register device in household: %w", err)
	}

	m.setHousehold(hh)
	m.logger.WithField("household", hh.Name).Info("joined household")

	m.bindCollections(ctx, hh.ID)
	return hh.Clone(), nil
}

// Leave deletes this device's membership row, tears down the realtime
// subscriptions and returns to unbound. Item and location data is left
// untouched; the caller decides whether to keep or clear the local
// collections.
func (m *Manager) Leave(ctx context.Context) error {
	m.mu.Lock()
	hh := m.household
	m.mu.Unlock()
	if hh == nil {
		return nil
	}

	if err := m.gateway.RemoveMember(ctx, hh.ID, m.deviceID); err != nil {
		return fmt.Errorf("failed to leave household: %w", err)
	}

	for _, s := range m.syncers {
		s.Unsubscribe()
	}

	m.setHousehold(nil)
	m.logger.WithField("household", hh.Name).Info("left household")
	return nil
}

// Members fetches the current member list from the remote.
func (m *Manager) Members(ctx context.Context) ([]*models.HouseholdMember, error) {
	m.mu.Lock()
	hh := m.household
	m.mu.Unlock()
	if hh == nil {
		return nil, nil
	}
	return m.gateway.ListMembers(ctx, hh.ID)
}

// Household returns a copy of the active household, or nil when unbound.
func (m *Manager) Household() *models.Household {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.household == nil {
		return nil
	}
	return m.household.Clone()
}

// State reports whether the device is bound to a household.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.household == nil {
		return StateUnbound
	}
	return StateBound
}

// DeviceID returns the persisted device identity.
func (m *Manager) DeviceID() string {
	return m.deviceID
}

// bindCollections fans the household scope out to both repositories:
// migrate local-only rows, push anything unsynced, pull the household's
// current state and subscribe to its change feed. Failures are logged and
// non-fatal; a later sync pass picks up whatever a flaky network dropped.
func (m *Manager) bindCollections(ctx context.Context, householdID string) {
	var errs *multierror.Error
	for _, s := range m.syncers {
		if err := s.MigrateLocalToRemote(ctx, householdID); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := s.SyncToRemote(ctx, householdID); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := s.FetchFromRemote(ctx, householdID); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := s.SubscribeRealtime(householdID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		m.logger.WithError(err).Warn("household sync fan-out completed with errors")
	}
}

// setHousehold updates and persists the bound state.
func (m *Manager) setHousehold(hh *models.Household) {
	m.mu.Lock()
	m.household = hh
	m.mu.Unlock()

	raw, err := json.Marshal(boundState{Household: hh})
	if err != nil {
		m.logger.WithError(err).Error("failed to encode household state")
		return
	}
	if err := m.store.Put(localstore.KeyHousehold, raw); err != nil {
		m.logger.WithError(err).Error("failed to persist household state")
	}
}
