package interfaces

import (
	"context"
	"time"

	"github.com/danmuck/paisync/internal/config"
	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/protocol/schema"
	"github.com/danmuck/paisync/internal/protocol/session"
)

const LogInterfaceName = "log"

func init() {
	Register(LogInterfaceName, newLogInterface)
}

// logInterface writes every live event to the process log.
type logInterface struct {
	loc *time.Location
}

func newLogInterface(cfg config.Config) (Interface, error) {
	loc := time.Local
	if cfg.SyncTime.Timezone != "" {
		l, err := time.LoadLocation(cfg.SyncTime.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}
	return &logInterface{loc: loc}, nil
}

func (l *logInterface) Name() string {
	return LogInterfaceName
}

func (l *logInterface) Run(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			decoded, err := schema.DecodeLiveEvent(ev.Frame, l.loc)
			if err != nil {
				logging.Warnf("interfaces.log undecodable event %s err=%v", ev.Frame, err)
				continue
			}
			logging.Infof("interfaces.log panel event %s", decoded)
		}
	}
}
