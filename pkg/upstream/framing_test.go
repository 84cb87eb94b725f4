package upstream

import (
	"reflect"
	"testing"
)

// feedAll feeds every chunk and collects all emitted frames plus the
// flushed tail.
func feedAll(t *testing.T, chunks []string) []string {
	t.Helper()
	var r Reassembler
	var frames []string
	for _, c := range chunks {
		frames = append(frames, r.Feed([]byte(c))...)
	}
	if tail, ok := r.Flush(); ok {
		frames = append(frames, tail)
	}
	return frames
}

func TestReassemblerSingleChunk(t *testing.T) {
	frames := feedAll(t, []string{"data: one\n\ndata: two\n\ndata: three\n\n"})
	want := []string{"data: one", "data: two", "data: three"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %q, want %q", frames, want)
	}
}

// TestReassemblerSplitInvariance verifies the central framing property:
// any chunk-boundary split of the same byte stream yields the identical
// ordered frame sequence.
func TestReassemblerSplitInvariance(t *testing.T) {
	stream := "data: {\"a\":1}\n\ndata: {\"b\":\"x\\ny\"}\n\ndata: [DONE]\n\n"

	want := feedAll(t, []string{stream})
	if len(want) != 3 {
		t.Fatalf("reference parse produced %d frames, want 3: %q", len(want), want)
	}

	// Every single split point.
	for i := 0; i <= len(stream); i++ {
		got := feedAll(t, []string{stream[:i], stream[i:]})
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: frames = %q, want %q", i, got, want)
		}
	}

	// Byte-at-a-time delivery.
	var chunks []string
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	got := feedAll(t, chunks)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("byte-at-a-time: frames = %q, want %q", got, want)
	}
}

func TestReassemblerSeparatorSplitAcrossChunks(t *testing.T) {
	var r Reassembler

	if frames := r.Feed([]byte("data: hello\n")); frames != nil {
		t.Fatalf("unexpected frames before separator completed: %q", frames)
	}
	frames := r.Feed([]byte("\ndata: tail"))
	if len(frames) != 1 || frames[0] != "data: hello" {
		t.Fatalf("frames = %q, want [\"data: hello\"]", frames)
	}

	tail, ok := r.Flush()
	if !ok || tail != "data: tail" {
		t.Errorf("Flush() = %q, %v, want \"data: tail\", true", tail, ok)
	}
}

func TestReassemblerDiscardsBlankSegments(t *testing.T) {
	frames := feedAll(t, []string{"\n\n   \n\ndata: one\n\n\n\n"})
	want := []string{"data: one"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %q, want %q", frames, want)
	}
}

func TestReassemblerFlushEmpty(t *testing.T) {
	var r Reassembler
	r.Feed([]byte("data: complete\n\n"))

	if tail, ok := r.Flush(); ok {
		t.Errorf("Flush() returned %q after fully consumed stream", tail)
	}

	// Flush resets state; the reassembler is reusable.
	frames := r.Feed([]byte("data: next\n\n"))
	if len(frames) != 1 || frames[0] != "data: next" {
		t.Errorf("frames after reuse = %q", frames)
	}
}

func TestReassemblerMultilineFrame(t *testing.T) {
	frames := feedAll(t, []string{"event: ping\ndata: {\"x\":1}\n\n"})
	want := []string{"event: ping\ndata: {\"x\":1}"}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %q, want %q", frames, want)
	}
}
