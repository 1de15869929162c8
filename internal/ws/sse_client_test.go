package ws

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEClientFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	c := NewSSEClient(rec, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := c.Send([]byte(`{"type":"a"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := c.Send([]byte(`{"type":"b"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "id: 1\ndata: {\"type\":\"a\"}\n\n: ping\n\nid: 2\ndata: {\"type\":\"b\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n%q\nwant\n%q", got, want)
	}
	if !rec.Flushed {
		t.Fatalf("expected writes to be flushed")
	}

	c.Close()
	if err := c.Send([]byte("x")); err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
	if strings.Count(rec.Body.String(), "data:") != 2 {
		t.Fatalf("closed client must not write")
	}
}
