package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string {
	return s.name
}

var _ Sender = (*recordingSender)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	tests := []struct {
		name      string
		allowed   []string
		event     Event
		wantSends int
	}{
		{"allowed event delivered", []string{"sync_critical"}, EventSyncCritical, 1},
		{"filtered event dropped", []string{"sync_critical"}, EventSyncFailed, 0},
		{"empty filter forwards all", nil, EventSyncFailed, 1},
		{"whitespace in config trimmed", []string{" sync_failed "}, EventSyncFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{name: "test"}
			n := NewNotifier([]Sender{sender}, tt.allowed, quietLogger())

			if err := n.Notify(context.Background(), tt.event, "title", "body"); err != nil {
				t.Fatalf("notify: %v", err)
			}
			if len(sender.titles) != tt.wantSends {
				t.Errorf("sends = %d, want %d", len(sender.titles), tt.wantSends)
			}
		})
	}
}

func TestNotifySenderIsolation(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("webhook down")}
	working := &recordingSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, quietLogger())

	err := n.Notify(context.Background(), EventSyncFailed, "title", "body")
	if err == nil {
		t.Fatal("expected an error reporting the broken sender")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %v, want the failing sender named", err)
	}
	if len(working.titles) != 1 {
		t.Errorf("working sender got %d sends, want 1 despite the other failing", len(working.titles))
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	if err := n.Notify(context.Background(), EventSyncCritical, "title", "body"); err != nil {
		t.Fatalf("notify with no senders: %v", err)
	}
}
