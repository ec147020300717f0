package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radiowatch/tetra-monitor/internal/engine"
	"github.com/radiowatch/tetra-monitor/internal/model"
	"github.com/radiowatch/tetra-monitor/internal/storage"
)

type staticResolver map[string]string

func (s staticResolver) Resolve(ssi string) string { return s[ssi] }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	logger := discardLogger()

	repo, err := storage.New(ctx, dbPath, logger)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	svc := New(engine.Config{}, staticResolver{}, repo, logger)
	svc.ProcessLine(`{"MESSAGE":"GROUP_TX src=3020760 dst=91"}`)
	svc.ProcessLine(`{"MESSAGE":"BrewEntity: voice frame #1 uuid=x len=36 bytes ts=2"}`)
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	repo, err = storage.New(ctx, dbPath, logger)
	if err != nil {
		t.Fatalf("storage reopen: %v", err)
	}
	defer repo.Close()

	restarted := New(engine.Config{}, staticResolver{}, repo, logger)
	if err := restarted.LoadPersisted(ctx); err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}

	view, ok := restarted.Terminal("3020760")
	if !ok {
		t.Fatal("terminal lost across restart")
	}
	if view.Status != model.StatusExternal || view.SelectedTG != "TG 91" {
		t.Fatalf("unexpected restored terminal %+v", view)
	}
	// Transient activity must not survive.
	if view.Activity != nil || view.TimeSlot != nil {
		t.Fatalf("activity restored: %+v", view)
	}

	history := restarted.History(false)
	if len(history) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(history))
	}
	if history[0].TimeSlot == nil || *history[0].TimeSlot != 2 {
		t.Fatalf("slot patch lost: %+v", history[0])
	}

	// New entries continue past the restored ids.
	restarted.ProcessLine(`{"MESSAGE":"GROUP_TX src=3020760 dst=91"}`)
	if got := restarted.History(false)[0].ID; got != "2" {
		t.Fatalf("entry id after restart = %s", got)
	}
}

func TestSyncMessages(t *testing.T) {
	svc := New(engine.Config{}, staticResolver{}, nil, discardLogger())
	svc.SetMode(ModeJournal)

	msgs := svc.SyncMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 sync messages, got %d", len(msgs))
	}
	if msgs[0].Type != model.NotifyStatus {
		t.Fatalf("first sync message = %s", msgs[0].Type)
	}
	if msgs[0].Payload.(model.StatusPayload).Mode != ModeJournal {
		t.Fatalf("unexpected status payload %+v", msgs[0].Payload)
	}
	if msgs[1].Type != model.NotifyFullState {
		t.Fatalf("second sync message = %s", msgs[1].Type)
	}
}

func TestStreamNotifierWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	svc := New(engine.Config{}, staticResolver{}, nil, discardLogger())
	svc.AddSink(NewStreamNotifier(&buf))

	svc.ProcessLine(`{"MESSAGE":"GROUP_TX src=3020760 dst=91"}`)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var first model.Notification
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if first.Type != model.NotifyNewCall {
		t.Fatalf("first line type = %s", first.Type)
	}
}
