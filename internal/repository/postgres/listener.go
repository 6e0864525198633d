package postgres

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Notification channels raised by the pg_notify triggers (see migrations).
const (
	itemsChannel     = "inventory_items_changes"
	locationsChannel = "storage_locations_changes"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// changePayload is the envelope the triggers publish: the operation and
// the full row as JSON.
type changePayload struct {
	Op  string          `json:"op"`
	Row json.RawMessage `json:"row"`
}

// subscribeChannel opens a dedicated pq.Listener on the channel and pumps
// raw payloads to fn until the returned teardown function is called. Each
// subscription gets its own connection; the repositories guarantee at most
// one per collection per household, so this stays cheap.
func subscribeChannel(dsn, channel string, logger *logrus.Logger, fn func(payload []byte)) (func(), error) {
	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.WithError(err).WithField("channel", channel).Warn("realtime listener event")
			}
		})

	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// A nil notification signals a reconnect; the repositories
				// recover missed events on the next full fetch.
				if n == nil {
					continue
				}
				fn([]byte(n.Extra))
			case <-time.After(listenerPingInterval):
				go func() {
					if err := listener.Ping(); err != nil {
						logger.WithError(err).WithField("channel", channel).Warn("realtime listener ping failed")
					}
				}()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			listener.Close()
		})
	}, nil
}
