package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// Size is the length of every frame on the wire, checksum included.
	Size = 37
	// BodyLen is the checksummed part of a frame.
	BodyLen = Size - 1

	// CodeLiveEvent marks unsolicited event frames pushed by the panel.
	CodeLiveEvent uint8 = 0x0E
)

var (
	ErrShortFrame    = errors.New("frame: short frame")
	ErrBodyTooLarge  = errors.New("frame: body too large")
	ErrBadChecksum   = errors.New("frame: checksum mismatch")
	ErrInvalidLength = errors.New("frame: invalid frame length")
)

// Frame is one fixed-size panel message without its trailing checksum.
type Frame struct {
	Body [BodyLen]byte
}

// New builds a frame from body, zero padding up to BodyLen.
func New(body []byte) (Frame, error) {
	if len(body) > BodyLen {
		return Frame{}, ErrBodyTooLarge
	}
	var f Frame
	copy(f.Body[:], body)
	return f, nil
}

// Code is the high nibble of the first byte: the command or reply type.
func (f Frame) Code() uint8 {
	return f.Body[0] >> 4
}

// Status is the low nibble of the first byte.
func (f Frame) Status() uint8 {
	return f.Body[0] & 0x0F
}

func (f Frame) IsLiveEvent() bool {
	return f.Code() == CodeLiveEvent
}

// Bytes returns the wire encoding, checksum appended.
func (f Frame) Bytes() []byte {
	buf := make([]byte, Size)
	copy(buf, f.Body[:])
	buf[BodyLen] = Checksum(f.Body[:])
	return buf
}

func (f Frame) String() string {
	return fmt.Sprintf("code=0x%X status=0x%X body=%s", f.Code(), f.Status(), hex.EncodeToString(f.Body[:]))
}

// Checksum is the byte sum of b modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Parse validates one complete wire frame.
func Parse(b []byte) (Frame, error) {
	if len(b) != Size {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLength, len(b))
	}
	if Checksum(b[:BodyLen]) != b[BodyLen] {
		return Frame{}, ErrBadChecksum
	}
	var f Frame
	copy(f.Body[:], b[:BodyLen])
	return f, nil
}

func ReadFrame(r io.Reader) (Frame, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}
	return Parse(buf[:])
}

func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(f.Bytes())
	return err
}
