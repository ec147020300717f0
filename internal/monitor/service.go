package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/radiowatch/tetra-monitor/internal/engine"
	"github.com/radiowatch/tetra-monitor/internal/model"
	"github.com/radiowatch/tetra-monitor/internal/storage"
)

const (
	ModeJournal = "journal"
	ModeDemo    = "demo"
)

// Service owns the engine. All line processing and snapshot reads go
// through its mutex, so the engine itself stays single-threaded. Engine
// notifications are persisted and fanned out to the registered sinks in
// emission order.
type Service struct {
	mu     sync.Mutex
	engine *engine.Engine
	repo   *storage.Repository
	sinks  []engine.Notifier
	logger *slog.Logger

	mode         string
	historyLimit int
	startedAt    time.Time
}

func New(cfg engine.Config, resolver engine.CallsignResolver, repo *storage.Repository, logger *slog.Logger) *Service {
	s := &Service{
		repo:         repo,
		logger:       logger,
		historyLimit: cfg.HistoryLimit,
		startedAt:    time.Now(),
	}
	s.engine = engine.New(cfg, resolver, s, logger)
	return s
}

// AddSink registers a notification consumer. Not safe to call once line
// processing has started.
func (s *Service) AddSink(sink engine.Notifier) {
	s.sinks = append(s.sinks, sink)
}

func (s *Service) SetMode(mode string) { s.mode = mode }
func (s *Service) Mode() string        { return s.mode }
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Notify implements engine.Notifier; the engine calls it mid-mutation while
// the service mutex is held.
func (s *Service) Notify(n model.Notification) {
	s.persist(n)
	for _, sink := range s.sinks {
		sink.Notify(n)
	}
}

func (s *Service) persist(n model.Notification) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	switch payload := n.Payload.(type) {
	case model.TerminalView:
		if n.Type == model.NotifyUpdateTerminal {
			err = s.repo.UpsertTerminal(ctx, payload)
		}
	case model.CallEntry:
		switch n.Type {
		case model.NotifyNewCall:
			err = s.repo.AppendCall(ctx, payload, s.historyLimit)
		case model.NotifyUpdateCall:
			err = s.repo.UpdateCallSlot(ctx, payload.ID, derefSlot(payload.TimeSlot))
		}
	}
	if err != nil {
		s.logger.Warn("persist failed", "type", n.Type, "err", err)
	}
}

// ProcessLine feeds one raw journal record through the engine.
func (s *Service) ProcessLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ProcessLine(line)
}

// Restore seeds the engine, either from the repository or from synthetic
// demo state.
func (s *Service) Restore(terminals []model.Terminal, local, external []model.CallEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Restore(terminals, local, external)
}

// LoadPersisted restores the last known network picture from the store.
func (s *Service) LoadPersisted(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	terminals, err := s.repo.LoadTerminals(ctx)
	if err != nil {
		return err
	}
	local, err := s.repo.LoadHistory(ctx, true, s.historyLimit)
	if err != nil {
		return err
	}
	external, err := s.repo.LoadHistory(ctx, false, s.historyLimit)
	if err != nil {
		return err
	}
	s.Restore(terminals, local, external)
	s.logger.Info("state restored", "terminals", len(terminals), "local_calls", len(local), "external_calls", len(external))
	return nil
}

// EmitStatus announces the run mode, once at start.
func (s *Service) EmitStatus() {
	s.Notify(model.Notification{Type: model.NotifyStatus, Payload: model.StatusPayload{Mode: s.mode}})
}

// EmitFullState pushes a snapshot through every sink.
func (s *Service) EmitFullState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.EmitFullState()
}

// Snapshot returns the full current state.
func (s *Service) Snapshot() model.FullState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// SyncMessages builds the messages a freshly connected consumer needs.
func (s *Service) SyncMessages() []model.Notification {
	return []model.Notification{
		{Type: model.NotifyStatus, Payload: model.StatusPayload{Mode: s.mode}},
		{Type: model.NotifyFullState, Payload: s.Snapshot()},
	}
}

// Terminals lists all terminal projections sorted by id.
func (s *Service) Terminals() []model.TerminalView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Terminals()
}

// Terminal returns one terminal's projection.
func (s *Service) Terminal(id string) (model.TerminalView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Terminal(id)
}

// History returns one origin's call log, newest first.
func (s *Service) History(local bool) []model.CallEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.History(local)
}

func derefSlot(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
