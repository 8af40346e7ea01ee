// Package registry tracks the WebSocket clients that receive broadcasts.
package registry

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrClientClosed is returned by Client.Send once the client's transport
	// has gone away. Broadcast deregisters clients that report it.
	ErrClientClosed = errors.New("client is closed")

	// ErrQueueFull is returned by Client.Send when the client cannot accept
	// another payload right now. Only that payload is lost for that client.
	ErrQueueFull = errors.New("client send queue is full")
)

// Client is a broadcast recipient. Send must not block on the network: it
// hands the payload to the client's own writer and returns.
type Client interface {
	ID() string
	Send(payload []byte) error
}

// ObserverFunc is called after every membership change with the new number of
// registered clients. It must not call back into the Registry.
type ObserverFunc func(count int)

// Registry is the live set of clients. Membership changes and broadcast
// snapshots are serialized by a single RWMutex; sends happen outside the lock
// so a slow client never holds up Add or Remove.
type Registry struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[Client]struct{}
	observer ObserverFunc
}

// New creates an empty Registry. A nil logger disables logging.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger,
		clients: make(map[Client]struct{}),
	}
}

// WithObserver installs fn as the membership observer and returns the
// Registry. It must be called before the Registry is shared.
func (r *Registry) WithObserver(fn ObserverFunc) *Registry {
	r.observer = fn
	return r
}

// Add registers client. Adding a client that is already present is a no-op.
func (r *Registry) Add(client Client) {
	r.mu.Lock()
	_, exists := r.clients[client]
	if !exists {
		r.clients[client] = struct{}{}
	}
	count := len(r.clients)
	r.mu.Unlock()

	if exists {
		r.logger.Debug("Client already registered", zap.String("client", client.ID()))
		return
	}

	r.logger.Debug("Client registered",
		zap.String("client", client.ID()),
		zap.Int("active_connections", count),
	)
	r.notify(count)
}

// Remove deregisters client. Removing an absent client is a no-op, so racing
// disconnect paths may both call it.
func (r *Registry) Remove(client Client) {
	r.mu.Lock()
	_, exists := r.clients[client]
	if exists {
		delete(r.clients, client)
	}
	count := len(r.clients)
	r.mu.Unlock()

	if !exists {
		return
	}

	r.logger.Debug("Client deregistered",
		zap.String("client", client.ID()),
		zap.Int("active_connections", count),
	)
	r.notify(count)
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the registered clients at this instant, in no particular
// order.
func (r *Registry) Snapshot() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast sends payload to every client registered when the call starts.
// Clients added during the call are not included. A failing client is logged
// and skipped; clients reporting ErrClientClosed are also deregistered.
// Broadcast returns the number of clients that accepted the payload.
func (r *Registry) Broadcast(payload []byte) int {
	clients := r.Snapshot()

	delivered := 0
	for _, client := range clients {
		err := client.Send(payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrClientClosed):
			r.logger.Debug("Dropping closed client during broadcast", zap.String("client", client.ID()))
			r.Remove(client)
		default:
			r.logger.Warn("Failed to deliver broadcast to client",
				zap.String("client", client.ID()),
				zap.Error(err),
			)
		}
	}

	return delivered
}

func (r *Registry) notify(count int) {
	if r.observer != nil {
		r.observer(count)
	}
}
