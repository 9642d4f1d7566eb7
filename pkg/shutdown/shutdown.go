package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler is a cleanup callback invoked during shutdown.
type Handler func(ctx context.Context)

// Manager collects cleanup callbacks and runs them on shutdown in
// registration order, so a callback can rely on the resources of those
// registered after it still being open.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		callbacks: make([]Handler, 0),
	}
}

// OnShutdown registers a callback.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs all registered callbacks sequentially and blocks until they
// finish or ctx expires. ctx should carry a timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	log.Infof("shutting down, %d callbacks", len(callbacks))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, cb := range callbacks {
			cb(ctx)
		}
	}()

	select {
	case <-done:
		log.Info("all shutdown callbacks completed")
	case <-ctx.Done():
		log.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
