// Package interfaces exposes panel state to external consumers while a
// sync attempt runs.
package interfaces

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/paisync/internal/config"
	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/protocol/session"
)

const eventQueueLen = 32

var ErrUnknownInterface = errors.New("interfaces: unknown interface")

// EventSource is satisfied by session.PanelSession.
type EventSource interface {
	Subscribe(fn func(session.Event)) func()
}

// Interface consumes panel events until ctx is done or events is closed.
type Interface interface {
	Name() string
	Run(ctx context.Context, events <-chan session.Event) error
}

type Manager struct {
	src    EventSource
	ifaces []Interface

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	unsubscribe func()
	queues      []chan session.Event
	wg          sync.WaitGroup
}

// NewManager resolves every interface named in cfg.
func NewManager(src EventSource, cfg config.Config) (*Manager, error) {
	m := &Manager{src: src}
	for _, name := range cfg.Interfaces {
		factory, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownInterface, name, Names())
		}
		iface, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("interfaces: build %s: %w", name, err)
		}
		m.ifaces = append(m.ifaces, iface)
	}
	return m, nil
}

// Start launches every interface and returns without waiting on them.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.queues = make([]chan session.Event, len(m.ifaces))
	for i, iface := range m.ifaces {
		q := make(chan session.Event, eventQueueLen)
		m.queues[i] = q
		m.wg.Add(1)
		go func(iface Interface, q <-chan session.Event) {
			defer m.wg.Done()
			if err := iface.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				logging.Errf("interfaces.Manager interface=%s exited err=%v", iface.Name(), err)
			}
		}(iface, q)
	}
	queues := m.queues
	m.unsubscribe = m.src.Subscribe(func(ev session.Event) {
		for i, q := range queues {
			select {
			case q <- ev:
			default:
				logging.Warnf("interfaces.Manager interface=%s queue full, dropped event", m.ifaces[i].Name())
			}
		}
	})
	logging.Infof("interfaces.Manager started interfaces=%d", len(m.ifaces))
}

// Stop detaches from the source, closes the queues and waits for every
// interface to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	unsubscribe, cancel, queues := m.unsubscribe, m.cancel, m.queues
	m.unsubscribe, m.cancel, m.queues = nil, nil, nil
	m.mu.Unlock()

	unsubscribe()
	for _, q := range queues {
		close(q)
	}
	m.wg.Wait()
	cancel()
	logging.Debugf("interfaces.Manager stopped")
}
