package timesync

import (
	"fmt"
	"time"

	"github.com/danmuck/paisync/internal/protocol/schema"
)

// TimeFields is the panel's split calendar representation of one instant.
type TimeFields struct {
	Century int
	Year    int
	Month   int
	Day     int
	Hour    int
	Minute  int
}

// FieldsFromTime splits t in its own location. Seconds are dropped.
func FieldsFromTime(t time.Time) TimeFields {
	year := t.Year()
	return TimeFields{
		Century: year / 100,
		Year:    year % 100,
		Month:   int(t.Month()),
		Day:     t.Day(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
	}
}

func (f TimeFields) FullYear() int {
	return f.Century*100 + f.Year
}

// Encodable reports whether the panel can represent f. Years past 9999
// need a three-digit century and do not fit.
func (f TimeFields) Encodable() bool {
	return f.Century >= 0 && f.Century <= 99 && f.Year >= 0
}

// Time rebuilds the instant (minute precision) in loc.
func (f TimeFields) Time(loc *time.Location) time.Time {
	return time.Date(f.FullYear(), time.Month(f.Month), f.Day, f.Hour, f.Minute, 0, 0, loc)
}

func (f TimeFields) Fields() schema.Fields {
	return schema.Fields{
		schema.FieldCentury: f.Century,
		schema.FieldYear:    f.Year,
		schema.FieldMonth:   f.Month,
		schema.FieldDay:     f.Day,
		schema.FieldHour:    f.Hour,
		schema.FieldMinute:  f.Minute,
	}
}

func (f TimeFields) String() string {
	return fmt.Sprintf("%02d%02d-%02d-%02d %02d:%02d", f.Century, f.Year, f.Month, f.Day, f.Hour, f.Minute)
}
