package api

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed frame payload (50MB).
const MaxMessageSize = 50 * 1024 * 1024

// ErrMessageTooLarge is returned when a frame exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")

// ReadMessage reads one length-prefixed frame.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes one length-prefixed frame.
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 || len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	// one write so a frame is never split across concurrent writers
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data))) // #nosec G115 - bounds checked above
	copy(buf[4:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
