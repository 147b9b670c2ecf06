package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/protocol/frame"
	"github.com/danmuck/paisync/internal/protocol/schema"
	"github.com/google/uuid"
)

var (
	ErrHandshakeRejected = errors.New("session: handshake rejected")
	ErrUnexpectedReply   = errors.New("session: unexpected handshake reply")
)

// loginRejected is the status bit a panel sets on a refused login reply.
const loginRejected uint8 = 0x08

const replyQueueLen = 8

// PanelSession is a request/reply session with one panel. The zero value is
// not usable; construct with NewPanelSession.
type PanelSession struct {
	cfg      Config
	password int
	rng      *rand.Rand

	// reqMu orders Disconnect after any outstanding request.
	reqMu   sync.Mutex
	pending atomic.Bool

	mu      sync.Mutex
	state   State
	id      string
	conn    net.Conn
	replies chan frame.Frame
	done    chan struct{}

	// attempt numbers each Connect; Disconnect bumps it to void an
	// in-flight handshake.
	attempt      uint64
	abortConnect context.CancelFunc

	subMu     sync.RWMutex
	nextSubID int
	subs      map[int]func(Event)
}

func NewPanelSession(cfg Config) (*PanelSession, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	password, err := ParsePassword(cfg.Password)
	if err != nil {
		return nil, err
	}
	return &PanelSession{
		cfg:      cfg,
		password: password,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    StateDisconnected,
		subs:     make(map[int]func(Event)),
	}, nil
}

func (s *PanelSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID identifies the current (or last) connection for log correlation.
func (s *PanelSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Subscribe registers fn for live events. fn runs on the reader goroutine
// and must not block. The returned func removes the subscription.
func (s *PanelSession) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Connect dials the panel and logs in. Ordinary failures are reported as
// false and leave the session Disconnected.
func (s *PanelSession) Connect(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateDisconnected {
		logging.Warnf("session.PanelSession connect refused state=%s", s.state)
		s.mu.Unlock()
		return false
	}
	s.state = StateConnecting
	s.attempt++
	attempt := s.attempt
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.abortConnect = cancel
	s.mu.Unlock()

	conn, err := s.dialAndLogin(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.attempt == attempt
	if current {
		s.abortConnect = nil
	}
	if err != nil {
		logging.Warnf("session.PanelSession connect failed addr=%q err=%v", s.cfg.Address, err)
		if current && s.state == StateConnecting {
			s.state = StateDisconnected
		}
		return false
	}
	if !current || s.state != StateConnecting {
		// Disconnect raced the handshake.
		_ = conn.Close()
		logging.Warnf("session.PanelSession connect aborted attempt=%d state=%s", attempt, s.state)
		return false
	}
	s.id = uuid.NewString()
	s.conn = conn
	s.replies = make(chan frame.Frame, replyQueueLen)
	s.done = make(chan struct{})
	s.state = StateConnected
	go s.readLoop(conn, s.replies, s.done)
	logging.Infof("session.PanelSession connected id=%s addr=%q", s.id, s.cfg.Address)
	return true
}

func (s *PanelSession) dialAndLogin(ctx context.Context) (net.Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := s.dial(ctx)
		if err == nil {
			err = s.loginContext(ctx, conn)
			if err == nil {
				return conn, nil
			}
			_ = conn.Close()
			if errors.Is(err, ErrHandshakeRejected) || ctx.Err() != nil {
				return nil, err
			}
		}
		logging.Warnf("session.PanelSession attempt=%d addr=%q err=%v", attempt, s.cfg.Address, err)
		if attempt >= s.cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := sleepContext(ctx, s.cfg.Backoff.Delay(attempt, s.rng)); err != nil {
			return nil, err
		}
	}
}

func (s *PanelSession) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", s.cfg.Address)
}

// loginContext runs login and closes conn if ctx ends first.
func (s *PanelSession) loginContext(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err := s.login(conn)
	if !stop() {
		return ctx.Err()
	}
	return err
}

// login runs the two-step handshake synchronously, before the reader starts.
func (s *PanelSession) login(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if _, err := s.handshakeStep(conn, schema.MsgStartCommunication, nil, schema.ReplyStartCommunication); err != nil {
		return err
	}
	reply, err := s.handshakeStep(conn, schema.MsgInitializeCommunication,
		schema.Fields{schema.FieldPassword: s.password}, schema.ReplyInitializeCommunication)
	if err != nil {
		return err
	}
	if reply.Status()&loginRejected != 0 {
		return fmt.Errorf("%w: status=0x%X", ErrHandshakeRejected, reply.Status())
	}
	return nil
}

func (s *PanelSession) handshakeStep(conn net.Conn, name string, fields schema.Fields, want uint8) (frame.Frame, error) {
	req, err := schema.Encode(name, fields)
	if err != nil {
		return frame.Frame{}, err
	}
	if err := frame.WriteFrame(conn, req); err != nil {
		return frame.Frame{}, err
	}
	for {
		reply, err := frame.ReadFrame(conn)
		if err != nil {
			return frame.Frame{}, err
		}
		if reply.IsLiveEvent() {
			s.publish(Event{Frame: reply, ReceivedAt: time.Now()})
			continue
		}
		if reply.Code() != want {
			return frame.Frame{}, fmt.Errorf("%w: step=%s got=0x%X want=0x%X", ErrUnexpectedReply, name, reply.Code(), want)
		}
		return reply, nil
	}
}

func (s *PanelSession) readLoop(conn net.Conn, replies chan<- frame.Frame, done chan<- struct{}) {
	defer close(done)
	for {
		f, err := frame.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, frame.ErrBadChecksum) {
				logging.Warnf("session.PanelSession read dropped frame err=%v", err)
				continue
			}
			logging.Debugf("session.PanelSession reader exit err=%v", err)
			return
		}
		if f.IsLiveEvent() {
			s.publish(Event{Frame: f, ReceivedAt: time.Now()})
			continue
		}
		select {
		case replies <- f:
		default:
			logging.Warnf("session.PanelSession reply queue full, dropped %s", f)
		}
	}
}

func (s *PanelSession) publish(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(ev)
	}
}

// SendWait sends command and waits up to timeout for a reply whose code is
// expected. It returns nil for mismatch, timeout, a busy or disconnected
// session and transport failures. The error is reserved for encoding
// failures.
func (s *PanelSession) SendWait(ctx context.Context, command string, fields schema.Fields, expected uint8, timeout time.Duration) (*Reply, error) {
	out, err := s.Exchange(ctx, command, fields, expected, timeout)
	if err != nil {
		return nil, err
	}
	return out.Reply(), nil
}

// Exchange is SendWait reporting the full outcome.
func (s *PanelSession) Exchange(ctx context.Context, command string, fields schema.Fields, expected uint8, timeout time.Duration) (Outcome, error) {
	req, err := schema.Encode(command, fields)
	if err != nil {
		return Outcome{}, err
	}

	if !s.pending.CompareAndSwap(false, true) {
		logging.Warnf("session.PanelSession exchange busy command=%s", command)
		return Outcome{}, nil
	}
	defer s.pending.Store(false)

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		logging.Warnf("session.PanelSession exchange refused command=%s state=%s", command, state)
		return Outcome{}, nil
	}
	conn, replies, done, id := s.conn, s.replies, s.done, s.id
	s.mu.Unlock()

	discard(replies)

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := frame.WriteFrame(conn, req); err != nil {
		logging.Warnf("session.PanelSession write failed id=%s command=%s err=%v", id, command, err)
		return Outcome{}, nil
	}
	sent := time.Now()
	logging.Debugf("session.PanelSession sent id=%s command=%s expect=0x%X timeout=%s", id, command, expected, timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-replies:
		out := Outcome{
			Received: true,
			Matched:  f.Code() == expected,
			Raw:      f.Bytes(),
			Code:     f.Code(),
			Latency:  time.Since(sent),
			frame:    f,
		}
		if !out.Matched {
			logging.Warnf("session.PanelSession reply mismatch id=%s command=%s got=0x%X want=0x%X", id, command, out.Code, expected)
		}
		return out, nil
	case <-timer.C:
		logging.Warnf("session.PanelSession reply timeout id=%s command=%s after=%s", id, command, timeout)
	case <-done:
		logging.Warnf("session.PanelSession connection lost id=%s command=%s", id, command)
	case <-ctx.Done():
		logging.Warnf("session.PanelSession exchange canceled id=%s command=%s err=%v", id, command, ctx.Err())
	}
	return Outcome{}, nil
}

// Disconnect releases the connection. Safe to call from any state, any
// number of times.
func (s *PanelSession) Disconnect() {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateDisconnected, StateDisconnecting:
		s.mu.Unlock()
		return
	case StateConnecting:
		s.state = StateDisconnected
		s.attempt++
		abort := s.abortConnect
		s.abortConnect = nil
		s.mu.Unlock()
		if abort != nil {
			abort()
		}
		logging.Infof("session.PanelSession connect canceled addr=%q", s.cfg.Address)
		return
	}
	s.state = StateDisconnecting
	conn, replies, done, id := s.conn, s.replies, s.done, s.id
	s.conn = nil
	s.mu.Unlock()

	if f, err := schema.Encode(schema.MsgCloseConnection, nil); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = frame.WriteFrame(conn, f)
	}
	_ = conn.Close()
	<-done
	discard(replies)

	s.mu.Lock()
	s.state = StateDisconnected
	s.replies = nil
	s.done = nil
	s.mu.Unlock()
	logging.Infof("session.PanelSession disconnected id=%s", id)
}

func discard(replies <-chan frame.Frame) {
	for {
		select {
		case f := <-replies:
			logging.Debugf("session.PanelSession discarded stale %s", f)
		default:
			return
		}
	}
}
