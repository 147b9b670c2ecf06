package interfaces

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/paisync/internal/config"
	"github.com/danmuck/paisync/internal/protocol/session"
	"github.com/danmuck/paisync/internal/testutil/panelsim"
	"github.com/danmuck/paisync/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu   sync.Mutex
	subs map[int]func(session.Event)
	next int
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: map[int]func(session.Event){}}
}

func (f *fakeSource) Subscribe(fn func(session.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) emit(ev session.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.subs {
		fn(ev)
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type captureInterface struct {
	mu     sync.Mutex
	events []session.Event
	exited chan struct{}
}

func (c *captureInterface) Name() string { return "capture" }

func (c *captureInterface) Run(ctx context.Context, events <-chan session.Event) error {
	defer close(c.exited)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}
}

func (c *captureInterface) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestManagerUnknownInterface(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Interfaces = []string{"mqtt"}
	_, err := NewManager(newFakeSource(), cfg)
	assert.ErrorIs(t, err, ErrUnknownInterface)
}

func TestManagerFansOutEvents(t *testing.T) {
	testlog.Start(t)
	capture := &captureInterface{exited: make(chan struct{})}
	Register("capture", func(config.Config) (Interface, error) { return capture, nil })

	cfg := config.Default()
	cfg.Interfaces = []string{"capture", LogInterfaceName}
	src := newFakeSource()
	m, err := NewManager(src, cfg)
	require.NoError(t, err)

	m.Start(context.Background())
	m.Start(context.Background())
	assert.Equal(t, 1, src.subscribers())

	src.emit(session.Event{Frame: panelsim.LiveEvent(20, 26, 10, 14, 9, 30, 2, 5, 1), ReceivedAt: time.Now()})
	src.emit(session.Event{Frame: panelsim.Reply(0x30), ReceivedAt: time.Now()})
	require.Eventually(t, func() bool { return capture.count() == 2 }, time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.Equal(t, 0, src.subscribers())
	select {
	case <-capture.exited:
	case <-time.After(time.Second):
		t.Fatalf("capture interface did not exit")
	}
}

func TestManagerWithoutInterfaces(t *testing.T) {
	testlog.Start(t)
	src := newFakeSource()
	m, err := NewManager(src, config.Default())
	require.NoError(t, err)
	m.Start(context.Background())
	m.Stop()
	assert.Equal(t, 0, src.subscribers())
}

func TestNamesIncludesLog(t *testing.T) {
	testlog.Start(t)
	assert.Contains(t, Names(), LogInterfaceName)
}
