package repository

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"garagestock/internal/localstore"
	"garagestock/internal/models"
	"garagestock/internal/notify"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeStore is an in-memory localstore.Store.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	return raw, ok, nil
}

func (s *fakeStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *fakeStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeNotifier records every notification it receives.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) notifications() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}

// fakeItemGateway records remote calls and can be told to fail. Pushes run
// in goroutines, so everything is mutex-guarded.
type fakeItemGateway struct {
	mu          sync.Mutex
	err         error
	inserted    []*models.InventoryItem
	updated     []*models.InventoryItem
	upserted    []*models.InventoryItem
	softDeleted []string
	selectRows  []*models.InventoryItem
	handler     func(ItemEvent)
	subscribed  int
	torndown    int
}

func (g *fakeItemGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeItemGateway) Insert(_ context.Context, item *models.InventoryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.inserted = append(g.inserted, item.Clone())
	return nil
}

func (g *fakeItemGateway) Update(_ context.Context, item *models.InventoryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.updated = append(g.updated, item.Clone())
	return nil
}

func (g *fakeItemGateway) SoftDelete(_ context.Context, id, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.softDeleted = append(g.softDeleted, id)
	return nil
}

func (g *fakeItemGateway) Upsert(_ context.Context, items []*models.InventoryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	for _, it := range items {
		g.upserted = append(g.upserted, it.Clone())
	}
	return nil
}

func (g *fakeItemGateway) SelectWhere(_ context.Context, _ string, _ bool) ([]*models.InventoryItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	rows := make([]*models.InventoryItem, 0, len(g.selectRows))
	for _, it := range g.selectRows {
		rows = append(rows, it.Clone())
	}
	return rows, nil
}

func (g *fakeItemGateway) Subscribe(_ string, handler func(ItemEvent)) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.handler = handler
	g.subscribed++
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.torndown++
	}, nil
}

// emit delivers a change-feed event as the live subscription would.
func (g *fakeItemGateway) emit(ev ItemEvent) {
	g.mu.Lock()
	handler := g.handler
	g.mu.Unlock()
	handler(ev)
}

func (g *fakeItemGateway) softDeletes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.softDeleted...)
}

func (g *fakeItemGateway) upserts() []*models.InventoryItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*models.InventoryItem(nil), g.upserted...)
}

func (g *fakeItemGateway) inserts() []*models.InventoryItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*models.InventoryItem(nil), g.inserted...)
}

// fakeLocationGateway mirrors fakeItemGateway for storage locations.
type fakeLocationGateway struct {
	mu          sync.Mutex
	err         error
	inserted    []*models.StorageLocation
	upserted    []*models.StorageLocation
	softDeleted []string
	selectRows  []*models.StorageLocation
	handler     func(LocationEvent)
	subscribed  int
	torndown    int
}

func (g *fakeLocationGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeLocationGateway) Insert(_ context.Context, loc *models.StorageLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.inserted = append(g.inserted, loc.Clone())
	return nil
}

func (g *fakeLocationGateway) Update(_ context.Context, loc *models.StorageLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *fakeLocationGateway) SoftDelete(_ context.Context, id, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.softDeleted = append(g.softDeleted, id)
	return nil
}

func (g *fakeLocationGateway) Upsert(_ context.Context, locs []*models.StorageLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	for _, loc := range locs {
		g.upserted = append(g.upserted, loc.Clone())
	}
	return nil
}

func (g *fakeLocationGateway) SelectWhere(_ context.Context, _ string, _ bool) ([]*models.StorageLocation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	rows := make([]*models.StorageLocation, 0, len(g.selectRows))
	for _, loc := range g.selectRows {
		rows = append(rows, loc.Clone())
	}
	return rows, nil
}

func (g *fakeLocationGateway) Subscribe(_ string, handler func(LocationEvent)) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.handler = handler
	g.subscribed++
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.torndown++
	}, nil
}

func (g *fakeLocationGateway) emit(ev LocationEvent) {
	g.mu.Lock()
	handler := g.handler
	g.mu.Unlock()
	handler(ev)
}

func (g *fakeLocationGateway) softDeletes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.softDeleted...)
}

// staticRefs is a fixed-answer ItemReferencer.
type staticRefs int

func (n staticRefs) CountByLocation(string) int { return int(n) }

var _ localstore.Store = (*fakeStore)(nil)
var _ ItemGateway = (*fakeItemGateway)(nil)
var _ LocationGateway = (*fakeLocationGateway)(nil)
