package schema

import (
	"fmt"
	"time"

	"github.com/danmuck/paisync/internal/protocol/frame"
)

// LiveEvent is the decoded form of an unsolicited event frame.
type LiveEvent struct {
	Time      time.Time
	Group     uint8
	Subgroup  uint8
	Partition uint8
}

func (e LiveEvent) String() string {
	return fmt.Sprintf("group=%d subgroup=%d partition=%d time=%s",
		e.Group, e.Subgroup, e.Partition, e.Time.Format("2006-01-02 15:04"))
}

// DecodeLiveEvent decodes the event timestamp (century, year, month, day,
// hour, minute at bytes 1..6) and the group/subgroup/partition triple.
// The timestamp is interpreted in loc.
func DecodeLiveEvent(f frame.Frame, loc *time.Location) (LiveEvent, error) {
	if !f.IsLiveEvent() {
		return LiveEvent{}, fmt.Errorf("schema: not a live event: %s", f)
	}
	if loc == nil {
		loc = time.Local
	}
	b := f.Body
	year := int(b[1])*100 + int(b[2])
	return LiveEvent{
		Time:      time.Date(year, time.Month(b[3]), int(b[4]), int(b[5]), int(b[6]), 0, 0, loc),
		Group:     b[7],
		Subgroup:  b[8],
		Partition: b[9],
	}, nil
}
