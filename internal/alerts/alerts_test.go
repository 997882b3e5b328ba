package alerts

import (
	"errors"
	"testing"
	"time"
)

func TestCooldownSuppressesRepeats(t *testing.T) {
	var sent []string
	a := New(func(msg string) { sent = append(sent, msg) }, time.Hour)

	a.Warn("embedder", "probe failed", errors.New("connection refused"))
	a.Warn("embedder", "probe failed", errors.New("connection refused"))
	a.Critical("reflection", "generation failed", nil)

	if len(sent) != 2 {
		t.Fatalf("expected 2 alerts (one suppressed), got %d", len(sent))
	}
	if sent[0] != "[warning] embedder: probe failed (connection refused)" {
		t.Errorf("unexpected alert text: %q", sent[0])
	}
	if sent[1] != "[critical] reflection: generation failed" {
		t.Errorf("unexpected alert text: %q", sent[1])
	}
}

func TestNilNotifyIsSafe(t *testing.T) {
	a := New(nil, time.Minute)
	a.Info("maintenance", "reindex complete")
}
