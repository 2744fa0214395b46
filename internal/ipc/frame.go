package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single frame's payload size. The Outcome Reader
// treats a frame that declares a larger length as malformed framing
// (spec.md §4.3: "oversized or malformed frames terminate the read and
// produce ProtocolError").
const MaxFrameBytes = 1 << 20

// Writer writes length-delimited Message frames to an io.Writer. Checkers
// use it to write to their own stdout.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage serializes msg to JSON and writes it as one frame: a
// 4-byte big-endian length prefix followed by the JSON payload.
func (w *Writer) WriteMessage(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: marshal message: %w", err)
	}
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("ipc: frame of %d bytes exceeds max %d", len(payload), MaxFrameBytes)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("ipc: write frame length: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

// Reader reads length-delimited Message frames from an io.Reader. The
// Outcome Reader uses it against a Checker subprocess's stdout pipe.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadMessage reads one frame and decodes it. It returns io.EOF exactly
// when the underlying stream ends cleanly between frames (the Checker
// exited after writing zero or more complete frames); any other error
// indicates malformed framing.
func (r *Reader) ReadMessage() (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Message{}, fmt.Errorf("ipc: truncated frame length prefix: %w", io.ErrUnexpectedEOF)
		}
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameBytes {
		return Message{}, fmt.Errorf("ipc: frame of %d bytes exceeds max %d", n, MaxFrameBytes)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return Message{}, fmt.Errorf("ipc: truncated frame payload: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("ipc: decode frame payload: %w", err)
	}
	return msg, nil
}
