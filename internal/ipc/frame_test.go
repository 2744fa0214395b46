package ipc

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	msgs := []Message{
		NewPeerMessage("peer-a.test"),
		NewPeerMessage("peer-b.test"),
		NewStateMessage(State{Tag: StateAlive, SoftwareName: "mastodon"}),
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range msgs {
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() #%d error = %v", i, err)
		}
		if got.Kind != want.Kind {
			t.Errorf("ReadMessage() #%d Kind = %v, want %v", i, got.Kind, want.Kind)
		}
		if got.Kind == KindPeer && got.Peer != want.Peer {
			t.Errorf("ReadMessage() #%d Peer = %v, want %v", i, got.Peer, want.Peer)
		}
	}

	if _, err := r.ReadMessage(); err != io.EOF {
		t.Errorf("ReadMessage() after last frame = %v, want io.EOF", err)
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	prefix[0] = 0xFF // declares a length far beyond MaxFrameBytes
	buf.Write(prefix[:])

	r := NewReader(&buf)
	if _, err := r.ReadMessage(); err == nil {
		t.Errorf("ReadMessage() with oversized length prefix = nil error, want error")
	}
}

func TestReadMessageRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteMessage(NewStateMessage(State{Tag: StateAlive})); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]

	r := NewReader(bytes.NewReader(truncated))
	if _, err := r.ReadMessage(); err == nil {
		t.Errorf("ReadMessage() on truncated payload = nil error, want error")
	}
}
