// Package protocol defines the chat wire messages and their framing.
//
// Every request and response is one JSON object with a mandatory "type"
// field. On a byte stream each object is terminated by a newline; on a
// WebSocket each object is one text message.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the maximum size of one JSON document (64KB).
const MaxFrameSize = 65536

var (
	// ErrFrameTooLarge is returned by ReadFrame when a line exceeds the limit.
	// The oversized line has been consumed and the reader can continue.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrMissingType is returned by DecodeRequest for documents without "type".
	ErrMissingType = errors.New("protocol: missing type")
)

// FrameReader splits a byte stream into newline-terminated frames.
type FrameReader struct {
	r   *bufio.Reader
	max int
}

// NewFrameReader wraps r. max <= 0 selects MaxFrameSize.
func NewFrameReader(r io.Reader, max int) *FrameReader {
	if max <= 0 {
		max = MaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 4096), max: max}
}

// ReadFrame returns the next non-blank frame with surrounding whitespace
// removed. A final frame without a trailing newline is returned before io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		line, err := fr.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (fr *FrameReader) readLine() ([]byte, error) {
	var buf []byte
	tooLarge := false
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if !tooLarge {
			if len(buf)+len(chunk) > fr.max+1 {
				tooLarge = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLarge {
				return nil, ErrFrameTooLarge
			}
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !tooLarge:
			return buf, nil
		default:
			return nil, err
		}
	}
}

// Encode marshals a message and appends the frame terminator.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("protocol: message too large: %d bytes", len(data))
	}
	return append(data, '\n'), nil
}

// WriteFrame encodes msg and writes it with a single Write call.
func WriteFrame(w io.Writer, msg any) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// DecodeRequest parses one request document.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	if req.Type == "" {
		return nil, ErrMissingType
	}
	return req, nil
}
