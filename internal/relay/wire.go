package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

const (
	DoneSentinel = "[DONE]"
	ErrorPrefix  = "[ERROR]"
)

var ErrNoSentinel = errors.New("stream ended without a terminal marker")

// StreamError is the in-band failure a consumer sees after an [ERROR] frame.
type StreamError struct {
	Reason string
}

func (e *StreamError) Error() string { return "stream error: " + e.Reason }

// EncodeChunk percent-encodes an increment so newlines and surrounding
// whitespace survive the data: framing.
func EncodeChunk(chunk string) string {
	return url.PathEscape(chunk)
}

func DecodeChunk(encoded string) (string, error) {
	return url.PathUnescape(encoded)
}

func WriteChunk(w io.Writer, chunk string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", EncodeChunk(chunk))
	return err
}

func WriteDone(w io.Writer) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", DoneSentinel)
	return err
}

func WriteError(w io.Writer, reason string) error {
	reason = strings.Join(strings.Fields(reason), " ")
	if reason == "" {
		reason = "unknown error"
	}
	_, err := fmt.Fprintf(w, "data: %s %s\n\n", ErrorPrefix, reason)
	return err
}

type Result struct {
	Outcome string
	Text    string
	Reason  string
}

// Forward writes every event to w, flushing after each frame. A write failure
// means the client is gone; the caller must cancel the run context.
func Forward(w io.Writer, flush func(), events <-chan Event) (Result, error) {
	if flush == nil {
		flush = func() {}
	}
	for ev := range events {
		var err error
		switch ev.Kind {
		case KindChunk:
			err = WriteChunk(w, ev.Text)
		case KindDone:
			err = WriteDone(w)
		case KindError:
			err = WriteError(w, ev.Text)
		}
		if err != nil {
			return Result{Outcome: OutcomeDisconnected}, err
		}
		flush()
		switch ev.Kind {
		case KindDone:
			return Result{Outcome: OutcomeDone, Text: ev.Text}, nil
		case KindError:
			return Result{Outcome: OutcomeError, Reason: ev.Text}, nil
		}
	}
	return Result{Outcome: OutcomeDisconnected}, nil
}

// Consume reads a relay stream and hands onBuffer the cumulative text after
// every increment. It returns the final text on [DONE], a *StreamError on
// [ERROR], and ErrNoSentinel when the stream just stops.
func Consume(r io.Reader, onBuffer func(buffer string)) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var buf strings.Builder
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		switch {
		case payload == DoneSentinel:
			return buf.String(), nil
		case strings.HasPrefix(payload, ErrorPrefix):
			return buf.String(), &StreamError{Reason: strings.TrimSpace(strings.TrimPrefix(payload, ErrorPrefix))}
		}
		chunk, err := DecodeChunk(payload)
		if err != nil {
			return buf.String(), fmt.Errorf("decode chunk: %w", err)
		}
		buf.WriteString(chunk)
		if onBuffer != nil {
			onBuffer(buf.String())
		}
	}
	if err := sc.Err(); err != nil {
		return buf.String(), err
	}
	return buf.String(), ErrNoSentinel
}
