package timesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/protocol/schema"
	"github.com/danmuck/paisync/internal/protocol/session"
)

// DefaultReplyTimeout bounds the wait for the SetTimeDate reply.
const DefaultReplyTimeout = 10 * time.Second

var ErrUnknownTimezone = errors.New("timesync: unknown timezone")

// Result labels reported to a Recorder.
const (
	ResultSuccess       = "success"
	ResultConnectFailed = "connect_failed"
	ResultNoReply       = "no_reply"
	ResultUnencodable   = "unencodable"
	ResultError         = "error"
)

// Session is the part of session.PanelSession the command drives.
type Session interface {
	Connect(ctx context.Context) bool
	SendWait(ctx context.Context, command string, fields schema.Fields, expected uint8, timeout time.Duration) (*session.Reply, error)
	Disconnect()
}

// Recorder observes attempt results. latency is zero unless a reply matched.
type Recorder interface {
	RecordSync(result string, latency time.Duration)
}

type Config struct {
	// Timezone is an IANA zone name. Empty keeps the system zone.
	Timezone     string
	ReplyTimeout time.Duration
	Now          func() time.Time
	Recorder     Recorder
}

// Command pushes the host clock to the panel.
type Command struct {
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	recorder Recorder
}

func New(cfg Config) (*Command, error) {
	c := &Command{
		loc:      time.Local,
		timeout:  cfg.ReplyTimeout,
		now:      cfg.Now,
		recorder: cfg.Recorder,
	}
	if zone := strings.TrimSpace(cfg.Timezone); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, zone, err)
		}
		c.loc = loc
	}
	if c.timeout <= 0 {
		c.timeout = DefaultReplyTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Command) Location() *time.Location {
	return c.loc
}

// Fields samples the clock once and splits it in the configured zone.
func (c *Command) Fields() TimeFields {
	return FieldsFromTime(c.now().In(c.loc))
}

// Run performs one sync attempt. The bool is the verdict; the error is
// only set for encoder misconfiguration. Disconnect runs whenever Connect
// succeeded.
func (c *Command) Run(ctx context.Context, s Session) (bool, error) {
	if !s.Connect(ctx) {
		logging.Errf("timesync.Command connect failed")
		c.record(ResultConnectFailed, 0)
		return false, nil
	}
	defer s.Disconnect()

	fields := c.Fields()
	if !fields.Encodable() {
		logging.Errf("timesync.Command time not encodable fields=%s", fields)
		c.record(ResultUnencodable, 0)
		return false, nil
	}

	logging.Infof("timesync.Command set time fields=%s zone=%s", fields, c.loc)
	reply, err := s.SendWait(ctx, schema.MsgSetTimeDate, fields.Fields(), schema.ReplySetTimeDate, c.timeout)
	if err != nil {
		c.record(ResultError, 0)
		return false, fmt.Errorf("timesync: %w", err)
	}
	if reply == nil {
		logging.Errf("timesync.Command no matching reply timeout=%s", c.timeout)
		c.record(ResultNoReply, 0)
		return false, nil
	}
	logging.Infof("timesync.Command panel accepted time latency=%s", reply.Latency)
	c.record(ResultSuccess, reply.Latency)
	return true, nil
}

func (c *Command) record(result string, latency time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordSync(result, latency)
	}
}
