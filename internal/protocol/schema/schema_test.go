package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/paisync/internal/protocol/frame"
	"github.com/danmuck/paisync/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeFields() Fields {
	return Fields{
		FieldCentury: 20,
		FieldYear:    26,
		FieldMonth:   10,
		FieldDay:     14,
		FieldHour:    9,
		FieldMinute:  5,
	}
}

func TestEncodeSetTimeDateLayout(t *testing.T) {
	testlog.Start(t)
	f, err := Encode(MsgSetTimeDate, timeFields())
	require.NoError(t, err)

	assert.Equal(t, byte(0x30), f.Body[0])
	assert.Equal(t, []byte{20, 26, 10, 14, 9, 5}, f.Body[4:10])
	wire := f.Bytes()
	assert.Equal(t, frame.Checksum(wire[:frame.BodyLen]), wire[frame.BodyLen])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	f, err := Encode(MsgSetTimeDate, timeFields())
	require.NoError(t, err)
	got, err := Decode(MsgSetTimeDate, f)
	require.NoError(t, err)
	assert.Equal(t, timeFields(), got)
}

func TestEncodeUnknownMessage(t *testing.T) {
	testlog.Start(t)
	_, err := Encode("SetTimeAndDate", timeFields())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMessage))
}

func TestEncodeMissingField(t *testing.T) {
	testlog.Start(t)
	fields := timeFields()
	delete(fields, FieldMinute)
	_, err := Encode(MsgSetTimeDate, fields)
	require.ErrorIs(t, err, ErrMissingField)

	var fe FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FieldMinute, fe.Field)
}

func TestEncodeCenturyOutOfRange(t *testing.T) {
	testlog.Start(t)
	fields := timeFields()
	fields[FieldCentury] = 100
	_, err := Encode(MsgSetTimeDate, fields)
	require.ErrorIs(t, err, ErrFieldRange)
	assert.Contains(t, err.Error(), "field=century value=100")
}

func TestEncodePasswordBigEndian(t *testing.T) {
	testlog.Start(t)
	f, err := Encode(MsgInitializeCommunication, Fields{FieldPassword: 0x1234})
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), f.Body[0])
	assert.Equal(t, []byte{0x12, 0x34}, f.Body[2:4])
	assert.Equal(t, byte(0x05), f.Body[33])
}

func TestEncodeFixedOnlyMessages(t *testing.T) {
	testlog.Start(t)
	start, err := Encode(MsgStartCommunication, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5F), start.Body[0])
	assert.Equal(t, byte(0x20), start.Body[1])

	closeFrame, err := Encode(MsgCloseConnection, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7), closeFrame.Code())
}

func TestNamesCoversDefinitions(t *testing.T) {
	testlog.Start(t)
	assert.ElementsMatch(t, []string{
		MsgStartCommunication,
		MsgInitializeCommunication,
		MsgSetTimeDate,
		MsgCloseConnection,
	}, Names())
}

func TestDecodeLiveEvent(t *testing.T) {
	testlog.Start(t)
	f, err := frame.New([]byte{0xE0, 20, 26, 10, 14, 21, 47, 2, 11, 1})
	require.NoError(t, err)
	ev, err := DecodeLiveEvent(f, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.October, 14, 21, 47, 0, 0, time.UTC), ev.Time)
	assert.Equal(t, uint8(2), ev.Group)
	assert.Equal(t, uint8(11), ev.Subgroup)
	assert.Equal(t, uint8(1), ev.Partition)

	notEvent, _ := frame.New([]byte{0x30})
	_, err = DecodeLiveEvent(notEvent, time.UTC)
	assert.Error(t, err)
}
