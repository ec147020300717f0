package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/radiowatch/tetra-monitor/internal/model"
)

const timeFormat = "15:04:05"

// CallsignResolver maps a subscriber id to a callsign. Implementations must
// bound their own latency and never fail; an unknown id resolves to "".
type CallsignResolver interface {
	Resolve(ssi string) string
}

// Notifier receives every state-change notification the engine produces.
type Notifier interface {
	Notify(n model.Notification)
}

type Config struct {
	// HistoryLimit caps each of the two call-history logs.
	HistoryLimit int
	// RetuneThreshold feeds ScanListAction.
	RetuneThreshold int
	// Now supplies the fallback timestamp for records without one.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.RetuneThreshold <= 0 {
		c.RetuneThreshold = 2
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine reconstructs terminal state from the log stream. It is not safe
// for concurrent use; a single goroutine must own it.
type Engine struct {
	cfg       Config
	extractor *Extractor
	resolver  CallsignResolver
	notifier  Notifier
	logger    *slog.Logger

	terminals  map[string]*model.Terminal
	histLocal  []model.CallEntry
	histExt    []model.CallEntry
	lastActive string
	counter    int
}

func New(cfg Config, resolver CallsignResolver, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		extractor: NewExtractor(),
		resolver:  resolver,
		notifier:  notifier,
		logger:    logger,
		terminals: map[string]*model.Terminal{},
	}
}

// ProcessLine runs one raw journal record through the full pipeline.
func (e *Engine) ProcessLine(line string) {
	rec, ok := NormalizeRecord(line, e.cfg.Now)
	if !ok {
		return
	}
	e.ProcessRecord(rec)
}

// ProcessRecord extracts and applies at most one event from rec.
func (e *Engine) ProcessRecord(rec Record) {
	ev := e.extractor.Extract(rec.Message)
	if ev == nil {
		return
	}
	ts := rec.Time.Format(timeFormat)
	e.logger.Debug("event extracted", "kind", Kind(ev), "at", ts)

	switch v := ev.(type) {
	case CallStart:
		e.applyCallStart(v, ts)
	case VoiceFrame:
		e.applyTimeSlot(v.Slot)
	case SlotAssign:
		e.applySlotAssign(v.Slot)
	case SpeakerChange:
		e.applySpeakerChange(v, ts)
	case CallEnd:
		e.applyCallEnd()
	case Registration:
		e.applyRegistration(v, ts)
	case GroupChange:
		e.applyGroupChange(v, ts)
	case Deregister:
		e.applyDeregister(v.SSI)
	case BaseGroups:
		// Base station bookkeeping, no terminal state.
	}
}

func (e *Engine) applyCallStart(ev CallStart, ts string) {
	e.lastActive = ev.Source

	t, known := e.terminals[ev.Source]
	if !known {
		t = &model.Terminal{
			ID:         ev.Source,
			Status:     model.StatusExternal,
			SelectedTG: model.TalkgroupLabel(ev.Dest),
			Groups:     []string{ev.Dest},
			IsLocal:    false,
			LastSeen:   ts,
		}
		e.terminals[ev.Source] = t
	} else {
		t.SelectedTG = model.TalkgroupLabel(ev.Dest)
		t.LastSeen = ts
		if !containsGroup(t.Groups, ev.Dest) {
			t.Groups = append(t.Groups, ev.Dest)
			sort.Strings(t.Groups)
		}
	}

	callsign := e.resolver.Resolve(ev.Source)
	display := ev.Source
	if callsign != "" {
		display = fmt.Sprintf("%s (%s)", ev.Source, callsign)
	}
	entry := model.CallEntry{
		ID:             e.nextEntryID(),
		Timestamp:      ts,
		SourceID:       ev.Source,
		SourceCallsign: callsign,
		TargetTG:       ev.Dest,
		Display:        fmt.Sprintf("[%s] %s -> TG %s", ts, display, ev.Dest),
		IsLocal:        t.IsLocal,
		Activity:       string(model.ActivityTX),
		TimeSlot:       copyIntPtr(t.TimeSlot),
	}
	if t.IsLocal {
		e.histLocal = pushEntry(e.histLocal, entry, e.cfg.HistoryLimit)
	} else {
		e.histExt = pushEntry(e.histExt, entry, e.cfg.HistoryLimit)
	}

	cleared := e.clearActivitySilent()
	receivers := e.setActivity(ev.Source, ev.Dest)

	e.notify(model.NotifyNewCall, entry)
	e.emitTerminal(ev.Source)
	delete(cleared, ev.Source)
	for _, id := range receivers {
		e.emitTerminal(id)
		delete(cleared, id)
	}
	e.emitSorted(cleared)
}

func (e *Engine) applySpeakerChange(ev SpeakerChange, ts string) {
	cleared := e.clearActivitySilent()
	if t, known := e.terminals[ev.Speaker]; known {
		t.LastSeen = ts
		receivers := e.setActivity(ev.Speaker, ev.GSSI)
		e.emitTerminal(ev.Speaker)
		delete(cleared, ev.Speaker)
		for _, id := range receivers {
			e.emitTerminal(id)
			delete(cleared, id)
		}
	}
	e.emitSorted(cleared)
}

func (e *Engine) applyCallEnd() {
	e.emitSorted(e.clearActivitySilent())
}

func (e *Engine) applySlotAssign(slot int) {
	t, known := e.terminals[e.lastActive]
	if !known || t.Activity == "" {
		return
	}
	e.applyTimeSlot(slot)
}

func (e *Engine) applyTimeSlot(slot int) {
	t, known := e.terminals[e.lastActive]
	if !known || t.Activity == "" {
		return
	}
	if t.TimeSlot != nil && *t.TimeSlot == slot {
		return
	}
	t.TimeSlot = intPtr(slot)
	e.emitTerminal(e.lastActive)

	var receivers []string
	for id, other := range e.terminals {
		if id != e.lastActive && other.Activity == model.ActivityRX {
			if other.TimeSlot == nil || *other.TimeSlot != slot {
				other.TimeSlot = intPtr(slot)
				receivers = append(receivers, id)
			}
		}
	}
	sort.Strings(receivers)
	for _, id := range receivers {
		e.emitTerminal(id)
	}

	// The only in-place history mutation: patch the slot onto the entry the
	// active transmission created.
	for _, hist := range []*[]model.CallEntry{&e.histLocal, &e.histExt} {
		entries := *hist
		if len(entries) == 0 || entries[0].SourceID != e.lastActive {
			continue
		}
		if entries[0].TimeSlot != nil && *entries[0].TimeSlot == slot {
			continue
		}
		entries[0].TimeSlot = intPtr(slot)
		e.notify(model.NotifyUpdateCall, entries[0])
	}
}

func (e *Engine) applyRegistration(ev Registration, ts string) {
	if ev.SSI == "" {
		return
	}
	if ev.Detach {
		e.applyDeregister(ev.SSI)
		return
	}

	t, known := e.terminals[ev.SSI]
	if !known {
		t = newLocalTerminal(ev.SSI, ts)
		e.terminals[ev.SSI] = t
	}
	t.Status = model.StatusOnline
	t.IsLocal = true
	t.LastSeen = ts

	if ev.Replace {
		groups := make([]string, 0, len(ev.Groups))
		for _, op := range ev.Groups {
			if !containsGroup(groups, op.GSSI) {
				groups = append(groups, op.GSSI)
			}
		}
		sort.Strings(groups)
		t.Groups = groups
		if len(ev.Groups) > 0 {
			t.SelectedTG = model.TalkgroupLabel(ev.Groups[0].GSSI)
		}
	} else {
		for _, op := range ev.Groups {
			if op.Detach {
				t.Groups = removeGroup(t.Groups, op.GSSI)
				continue
			}
			if !containsGroup(t.Groups, op.GSSI) {
				t.Groups = append(t.Groups, op.GSSI)
			}
			if t.SelectedTG == model.SelectedNone {
				t.SelectedTG = model.TalkgroupLabel(op.GSSI)
			}
		}
		sort.Strings(t.Groups)
	}
	e.ensureSelectedInGroups(t)
	sort.Strings(t.Groups)
	e.emitTerminal(ev.SSI)
}

func (e *Engine) applyGroupChange(ev GroupChange, ts string) {
	if ev.SSI == "" {
		return
	}
	t, known := e.terminals[ev.SSI]
	if !known {
		t = newLocalTerminal(ev.SSI, ts)
		e.terminals[ev.SSI] = t
	}

	var attach, detach []string
	for _, op := range ev.Groups {
		if op.Detach {
			detach = append(detach, op.GSSI)
		} else {
			attach = append(attach, op.GSSI)
		}
	}

	preSize := len(t.Groups)
	for _, g := range detach {
		t.Groups = removeGroup(t.Groups, g)
	}
	for _, g := range attach {
		if !containsGroup(t.Groups, g) {
			t.Groups = append(t.Groups, g)
		}
	}

	if len(detach) > 0 && len(attach) == 0 && len(t.Groups) == 0 {
		t.Status = model.StatusOffline
		t.SelectedTG = model.SelectedNone
		t.Activity = ""
		t.ActivityTG = ""
		t.TimeSlot = nil
	} else {
		if len(attach) == 1 {
			if attach[0] != ev.SSI {
				t.SelectedTG = model.TalkgroupLabel(attach[0])
			}
			if ScanListAction(preSize, len(attach), len(detach), e.cfg.RetuneThreshold) == ReplaceGroups {
				t.Groups = []string{attach[0]}
			}
		}
		if len(attach) > 0 {
			t.Status = model.StatusOnline
		}
		// Selection is sticky: the tuned group is never silently dropped
		// from the terminal's own scan list.
		e.ensureSelectedInGroups(t)
	}
	t.LastSeen = ts
	sort.Strings(t.Groups)
	e.emitTerminal(ev.SSI)
}

func (e *Engine) applyDeregister(ssi string) {
	if ssi == "" {
		return
	}
	t, known := e.terminals[ssi]
	if !known {
		return
	}
	t.Status = model.StatusOffline
	t.SelectedTG = model.SelectedNone
	t.Groups = []string{}
	t.Activity = ""
	t.ActivityTG = ""
	t.TimeSlot = nil
	e.emitTerminal(ssi)
}

// clearActivitySilent wipes all TX/RX flags and returns the ids that
// changed, leaving emission order to the caller.
func (e *Engine) clearActivitySilent() map[string]struct{} {
	changed := map[string]struct{}{}
	for id, t := range e.terminals {
		if t.Activity != "" {
			t.Activity = ""
			t.ActivityTG = ""
			t.TimeSlot = nil
			changed[id] = struct{}{}
		}
	}
	return changed
}

// setActivity marks src as transmitting on gssi and every other terminal
// monitoring gssi as receiving. Returns the sorted receiver ids.
func (e *Engine) setActivity(src, gssi string) []string {
	if t, known := e.terminals[src]; known {
		t.Activity = model.ActivityTX
		t.ActivityTG = gssi
	}
	var receivers []string
	label := model.TalkgroupLabel(gssi)
	for id, t := range e.terminals {
		if id == src {
			continue
		}
		if containsGroup(t.Groups, gssi) || t.SelectedTG == label {
			t.Activity = model.ActivityRX
			t.ActivityTG = gssi
			receivers = append(receivers, id)
		}
	}
	sort.Strings(receivers)
	return receivers
}

func (e *Engine) ensureSelectedInGroups(t *model.Terminal) {
	if t.SelectedTG == model.SelectedNone {
		return
	}
	gssi := selectedGSSI(t.SelectedTG)
	if gssi != "" && !containsGroup(t.Groups, gssi) {
		t.Groups = append(t.Groups, gssi)
	}
}

// Snapshot returns the complete current projection for consumers that need
// to (re)synchronize.
func (e *Engine) Snapshot() model.FullState {
	terminals := make(map[string]model.TerminalView, len(e.terminals))
	for id := range e.terminals {
		terminals[id] = e.viewOf(id)
	}
	return model.FullState{
		Terminals:       terminals,
		LocalHistory:    cloneEntries(e.histLocal),
		ExternalHistory: cloneEntries(e.histExt),
	}
}

// EmitFullState sends the snapshot through the notifier.
func (e *Engine) EmitFullState() {
	e.notify(model.NotifyFullState, e.Snapshot())
}

// Restore seeds the engine from persisted or synthetic state. The entry
// counter resumes past the highest numeric history id so new entries never
// collide with restored ones.
func (e *Engine) Restore(terminals []model.Terminal, local, external []model.CallEntry) {
	for i := range terminals {
		t := terminals[i]
		if t.Groups == nil {
			t.Groups = []string{}
		}
		e.terminals[t.ID] = &t
	}
	e.histLocal = boundEntries(local, e.cfg.HistoryLimit)
	e.histExt = boundEntries(external, e.cfg.HistoryLimit)
	for _, entry := range append(cloneEntries(e.histLocal), e.histExt...) {
		if n, err := strconv.Atoi(entry.ID); err == nil && n > e.counter {
			e.counter = n
		}
	}
}

// Terminal returns the projection of one terminal.
func (e *Engine) Terminal(id string) (model.TerminalView, bool) {
	if _, known := e.terminals[id]; !known {
		return model.TerminalView{}, false
	}
	return e.viewOf(id), true
}

// Terminals returns all projections sorted by id.
func (e *Engine) Terminals() []model.TerminalView {
	views := make([]model.TerminalView, 0, len(e.terminals))
	for id := range e.terminals {
		views = append(views, e.viewOf(id))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// History returns a copy of one bounded history log, newest first.
func (e *Engine) History(local bool) []model.CallEntry {
	if local {
		return cloneEntries(e.histLocal)
	}
	return cloneEntries(e.histExt)
}

func (e *Engine) viewOf(id string) model.TerminalView {
	t := e.terminals[id]
	view := model.TerminalView{
		ID:         id,
		Callsign:   e.resolver.Resolve(id),
		Status:     t.Status,
		SelectedTG: t.SelectedTG,
		Groups:     append([]string{}, t.Groups...),
		LastSeen:   t.LastSeen,
		IsLocal:    t.IsLocal,
		IsActive:   id == e.lastActive && t.Status != model.StatusOffline,
		TimeSlot:   copyIntPtr(t.TimeSlot),
	}
	if t.Activity != "" {
		activity := string(t.Activity)
		view.Activity = &activity
		tg := t.ActivityTG
		view.ActivityTG = &tg
	}
	return view
}

func (e *Engine) emitTerminal(id string) {
	if _, known := e.terminals[id]; !known {
		return
	}
	e.notify(model.NotifyUpdateTerminal, e.viewOf(id))
}

func (e *Engine) emitSorted(ids map[string]struct{}) {
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	for _, id := range ordered {
		e.emitTerminal(id)
	}
}

func (e *Engine) notify(kind string, payload any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(model.Notification{Type: kind, Payload: payload})
}

func (e *Engine) nextEntryID() string {
	e.counter++
	return strconv.Itoa(e.counter)
}

func newLocalTerminal(ssi, ts string) *model.Terminal {
	return &model.Terminal{
		ID:         ssi,
		Status:     model.StatusOnline,
		SelectedTG: model.SelectedNone,
		Groups:     []string{},
		IsLocal:    true,
		LastSeen:   ts,
	}
}

func selectedGSSI(selected string) string {
	const prefix = "TG "
	if len(selected) > len(prefix) && selected[:len(prefix)] == prefix {
		return selected[len(prefix):]
	}
	return ""
}

func pushEntry(entries []model.CallEntry, entry model.CallEntry, limit int) []model.CallEntry {
	entries = append([]model.CallEntry{entry}, entries...)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func boundEntries(entries []model.CallEntry, limit int) []model.CallEntry {
	out := cloneEntries(entries)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneEntries(entries []model.CallEntry) []model.CallEntry {
	out := make([]model.CallEntry, len(entries))
	copy(out, entries)
	return out
}

func containsGroup(groups []string, gssi string) bool {
	for _, g := range groups {
		if g == gssi {
			return true
		}
	}
	return false
}

func removeGroup(groups []string, gssi string) []string {
	out := groups[:0]
	for _, g := range groups {
		if g != gssi {
			out = append(out, g)
		}
	}
	return out
}

func intPtr(v int) *int {
	return &v
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
