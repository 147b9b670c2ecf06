// Package panelsim is a scripted fake panel for session tests.
package panelsim

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/paisync/internal/protocol/frame"
)

// Command bytes handled by the simulator itself.
const (
	cmdStartCommunication      byte = 0x5F
	cmdInitializeCommunication byte = 0x00
	cmdCloseConnection         byte = 0x70
)

// Handler returns the frames to write back for one request. Returning nil
// leaves the request unanswered.
type Handler func(call int, req frame.Frame) []frame.Frame

type Config struct {
	// Password is the two-byte login value the panel accepts.
	Password int
	// OnCommand answers every request past the handshake.
	OnCommand Handler
	// HandshakeEvents are written ahead of the StartCommunication reply.
	HandshakeEvents []frame.Frame
	// Hold delays the StartCommunication reply until it is closed.
	Hold <-chan struct{}
}

type Panel struct {
	t   *testing.T
	cfg Config
	ln  net.Listener

	mu       sync.Mutex
	calls    int
	accepted int
	released int
	received []frame.Frame
	conn     net.Conn
	conns    []net.Conn
	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// Start listens on a loopback port. The panel is closed on test cleanup.
func Start(t *testing.T, cfg Config) *Panel {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &Panel{t: t, cfg: cfg, ln: ln, quit: make(chan struct{})}
	p.wg.Add(1)
	go p.acceptLoop()
	t.Cleanup(p.Close)
	return p
}

func (p *Panel) Addr() string {
	return p.ln.Addr().String()
}

func (p *Panel) Close() {
	p.stopOnce.Do(func() { close(p.quit) })
	_ = p.ln.Close()
	p.mu.Lock()
	for _, conn := range p.conns {
		_ = conn.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Accepted is the number of connections the panel has seen.
func (p *Panel) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// Released is the number of connections the peer has closed or dropped.
func (p *Panel) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Received returns every frame read so far, handshake included.
func (p *Panel) Received() []frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]frame.Frame, len(p.received))
	copy(out, p.received)
	return out
}

// Count returns how many received frames carry command byte cmd.
func (p *Panel) Count(cmd byte) int {
	n := 0
	for _, f := range p.Received() {
		if f.Body[0] == cmd {
			n++
		}
	}
	return n
}

// Push writes f to the current connection.
func (p *Panel) Push(f frame.Frame) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("panelsim: no connection")
	}
	return frame.WriteFrame(conn, f)
}

func (p *Panel) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.accepted++
		p.conn = conn
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		p.wg.Add(1)
		go p.serve(conn)
	}
}

func (p *Panel) serve(conn net.Conn) {
	defer p.wg.Done()
	defer func() {
		_ = conn.Close()
		p.mu.Lock()
		p.released++
		p.mu.Unlock()
	}()
	for {
		req, err := frame.ReadFrame(conn)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.received = append(p.received, req)
		p.mu.Unlock()

		var out []frame.Frame
		switch req.Body[0] {
		case cmdStartCommunication:
			if p.cfg.Hold != nil {
				select {
				case <-p.cfg.Hold:
				case <-p.quit:
					return
				}
			}
			out = append(out, p.cfg.HandshakeEvents...)
			out = append(out, Reply(0x00))
		case cmdInitializeCommunication:
			got := int(req.Body[2])<<8 | int(req.Body[3])
			if got == p.cfg.Password {
				out = []frame.Frame{Reply(0x10)}
			} else {
				out = []frame.Frame{Reply(0x18)}
			}
		case cmdCloseConnection:
			return
		default:
			p.mu.Lock()
			p.calls++
			call := p.calls
			p.mu.Unlock()
			if p.cfg.OnCommand != nil {
				out = p.cfg.OnCommand(call, req)
			}
		}
		for _, f := range out {
			if err := frame.WriteFrame(conn, f); err != nil {
				return
			}
		}
	}
}

// Reply builds a frame whose first byte is b.
func Reply(b byte) frame.Frame {
	f, _ := frame.New([]byte{b})
	return f
}

// Echo answers every request with a reply carrying the request's code.
func Echo(_ int, req frame.Frame) []frame.Frame {
	return []frame.Frame{Reply(req.Body[0] & 0xF0)}
}

// Silent never answers.
func Silent(int, frame.Frame) []frame.Frame {
	return nil
}

// LiveEvent builds an unsolicited event frame.
func LiveEvent(century, year, month, day, hour, minute, group, subgroup, partition byte) frame.Frame {
	f, _ := frame.New([]byte{0xE0, century, year, month, day, hour, minute, group, subgroup, partition})
	return f
}
