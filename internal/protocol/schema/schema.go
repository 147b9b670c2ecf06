package schema

import (
	"errors"
	"fmt"

	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/protocol/frame"
)

// Message names understood by the encoder.
const (
	MsgStartCommunication      = "StartCommunication"
	MsgInitializeCommunication = "InitializeCommunication"
	MsgSetTimeDate             = "SetTimeDate"
	MsgCloseConnection         = "CloseConnection"
)

// Field names.
const (
	FieldPassword = "password"
	FieldCentury  = "century"
	FieldYear     = "year"
	FieldMonth    = "month"
	FieldDay      = "day"
	FieldHour     = "hour"
	FieldMinute   = "minute"
)

// Reply codes, compared against frame.Frame.Code.
const (
	ReplyStartCommunication      uint8 = 0x0
	ReplyInitializeCommunication uint8 = 0x1
	ReplySetTimeDate             uint8 = 0x3
)

var (
	ErrUnknownMessage = errors.New("schema: unknown message")
	ErrMissingField   = errors.New("schema: missing required field")
	ErrFieldRange     = errors.New("schema: field out of range")
)

// Fields maps field names to values for one outgoing message.
type Fields map[string]int

// FieldSpec places one field into the frame body. Width is 1 or 2 bytes,
// two-byte fields are big endian.
type FieldSpec struct {
	Name   string
	Offset int
	Width  int
	Min    int
	Max    int
}

// Definition describes how one named message is laid out.
type Definition struct {
	Name    string
	Command byte
	Fixed   map[int]byte
	Fields  []FieldSpec
}

type FieldError struct {
	Message string
	Field   string
	Value   int
	Err     error
}

func (e FieldError) Error() string {
	if errors.Is(e.Err, ErrFieldRange) {
		return fmt.Sprintf("schema: message=%s field=%s value=%d: %v", e.Message, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("schema: message=%s field=%s: %v", e.Message, e.Field, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

var definitions = map[string]Definition{
	MsgStartCommunication: {
		Name:    MsgStartCommunication,
		Command: 0x5F,
		Fixed:   map[int]byte{1: 0x20},
	},
	MsgInitializeCommunication: {
		Name:    MsgInitializeCommunication,
		Command: 0x00,
		Fixed:   map[int]byte{1: 0x00, 33: 0x05},
		Fields: []FieldSpec{
			{Name: FieldPassword, Offset: 2, Width: 2, Min: 0, Max: 0xFFFF},
		},
	},
	MsgSetTimeDate: {
		Name:    MsgSetTimeDate,
		Command: 0x30,
		Fields: []FieldSpec{
			{Name: FieldCentury, Offset: 4, Width: 1, Min: 0, Max: 99},
			{Name: FieldYear, Offset: 5, Width: 1, Min: 0, Max: 99},
			{Name: FieldMonth, Offset: 6, Width: 1, Min: 1, Max: 12},
			{Name: FieldDay, Offset: 7, Width: 1, Min: 1, Max: 31},
			{Name: FieldHour, Offset: 8, Width: 1, Min: 0, Max: 23},
			{Name: FieldMinute, Offset: 9, Width: 1, Min: 0, Max: 59},
		},
	},
	MsgCloseConnection: {
		Name:    MsgCloseConnection,
		Command: 0x70,
		Fixed:   map[int]byte{2: 0x05},
	},
}

// Lookup returns the definition registered for name.
func Lookup(name string) (Definition, error) {
	def, ok := definitions[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
	}
	return def, nil
}

// Names lists every known message name.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for name := range definitions {
		out = append(out, name)
	}
	return out
}

// Encode builds the frame for message name with fields.
// Fields not declared by the definition are ignored.
func Encode(name string, fields Fields) (frame.Frame, error) {
	def, err := Lookup(name)
	if err != nil {
		logging.Errf("schema.Encode unknown message=%q", name)
		return frame.Frame{}, err
	}
	var f frame.Frame
	f.Body[0] = def.Command
	for offset, v := range def.Fixed {
		f.Body[offset] = v
	}
	for _, spec := range def.Fields {
		v, ok := fields[spec.Name]
		if !ok {
			return frame.Frame{}, FieldError{Message: name, Field: spec.Name, Err: ErrMissingField}
		}
		if v < spec.Min || v > spec.Max {
			logging.Warnf("schema.Encode range message=%s field=%s value=%d min=%d max=%d", name, spec.Name, v, spec.Min, spec.Max)
			return frame.Frame{}, FieldError{Message: name, Field: spec.Name, Value: v, Err: ErrFieldRange}
		}
		switch spec.Width {
		case 2:
			f.Body[spec.Offset] = byte(v >> 8)
			f.Body[spec.Offset+1] = byte(v)
		default:
			f.Body[spec.Offset] = byte(v)
		}
	}
	logging.Debugf("schema.Encode ok message=%s %s", name, f)
	return f, nil
}

// Decode reads the declared fields of message name back out of f.
func Decode(name string, f frame.Frame) (Fields, error) {
	def, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	out := make(Fields, len(def.Fields))
	for _, spec := range def.Fields {
		switch spec.Width {
		case 2:
			out[spec.Name] = int(f.Body[spec.Offset])<<8 | int(f.Body[spec.Offset+1])
		default:
			out[spec.Name] = int(f.Body[spec.Offset])
		}
	}
	return out, nil
}
