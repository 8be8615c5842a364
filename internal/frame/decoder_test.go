package frame

import (
	"bytes"
	"testing"
)

func TestDecoder_SingleChunk(t *testing.T) {
	d := NewDecoder()
	wire := append(Encode([]byte(`{"a":1}`)), Encode([]byte(`{"b":2}`))...)

	frames, err := d.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0]) != `{"a":1}` || string(frames[1]) != `{"b":2}` {
		t.Fatalf("unexpected frame contents: %q", frames)
	}
}

func TestDecoder_ArbitraryChunkBoundaries(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"type":"SUBSCRIBED"}`),
		[]byte(`{"type":"HEARTBEAT"}`),
		[]byte(`{"type":"TASK_ADDED","task_added":{"task":{}}}`),
	}

	var wire []byte
	for _, p := range payloads {
		wire = append(wire, Encode(p)...)
	}

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		d := NewDecoder()
		var got [][]byte
		for i := 0; i < len(wire); i += chunkSize {
			end := i + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			frames, err := d.Feed(wire[i:end])
			if err != nil {
				t.Fatalf("chunkSize=%d: Feed: %v", chunkSize, err)
			}
			got = append(got, frames...)
		}

		if len(got) != len(payloads) {
			t.Fatalf("chunkSize=%d: expected %d frames, got %d", chunkSize, len(payloads), len(got))
		}
		for i, p := range payloads {
			if !bytes.Equal(got[i], p) {
				t.Fatalf("chunkSize=%d: frame %d mismatch: got %q want %q", chunkSize, i, got[i], p)
			}
		}
	}
}

func TestDecoder_BadFormatLongPrefix(t *testing.T) {
	d := NewDecoder()
	_, err := d.Feed([]byte("123456789012345")) // 15 digits, no newline
	if err != ErrBadFormat {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestDecoder_NonDecimalPrefix(t *testing.T) {
	d := NewDecoder()
	_, err := d.Feed([]byte("abc\n"))
	if err != ErrBadFormat {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
}

func TestDecoder_WaitsForMoreData(t *testing.T) {
	d := NewDecoder()
	frames, err := d.Feed([]byte("9\nhello"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames yet, got %d", len(frames))
	}

	frames, err = d.Feed([]byte("worl"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if string(frames[0]) != "helloworl" {
		t.Fatalf("unexpected frame: %q", frames[0])
	}
}
