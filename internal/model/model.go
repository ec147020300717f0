package model

// SelectedNone is the sentinel for "no talkgroup selected".
const SelectedNone = "---"

// TalkgroupLabel renders a GSSI the way the wire format expects it.
func TalkgroupLabel(gssi string) string {
	return "TG " + gssi
}

type TerminalStatus string

const (
	StatusOnline   TerminalStatus = "Online"
	StatusOffline  TerminalStatus = "Offline"
	StatusExternal TerminalStatus = "External"
)

type Activity string

const (
	ActivityTX Activity = "TX"
	ActivityRX Activity = "RX"
)

// Terminal is the authoritative record for one subscriber unit. Records are
// created on first reference and never deleted, only marked Offline, so a
// reappearing id resumes its history.
type Terminal struct {
	ID         string
	Status     TerminalStatus
	SelectedTG string
	Groups     []string
	IsLocal    bool
	LastSeen   string
	Activity   Activity
	ActivityTG string
	TimeSlot   *int
}

// CallEntry is one observed transmission start. Entries are immutable after
// insertion except for a late time-slot correction on the head of a log.
type CallEntry struct {
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"`
	SourceID       string `json:"sourceId"`
	SourceCallsign string `json:"sourceCallsign"`
	TargetTG       string `json:"targetTg"`
	Display        string `json:"display"`
	IsLocal        bool   `json:"isLocal"`
	Activity       string `json:"activity"`
	TimeSlot       *int   `json:"timeSlot"`
}

// TerminalView is the outward projection of a Terminal.
type TerminalView struct {
	ID         string         `json:"id"`
	Callsign   string         `json:"callsign"`
	Status     TerminalStatus `json:"status"`
	SelectedTG string         `json:"selectedTg"`
	Groups     []string       `json:"groups"`
	LastSeen   string         `json:"lastSeen"`
	IsLocal    bool           `json:"isLocal"`
	IsActive   bool           `json:"isActive"`
	Activity   *string        `json:"activity"`
	ActivityTG *string        `json:"activityTg"`
	TimeSlot   *int           `json:"timeSlot"`
}

// Notification types emitted by the engine.
const (
	NotifyStatus         = "status"
	NotifyFullState      = "full_state"
	NotifyUpdateTerminal = "update_terminal"
	NotifyNewCall        = "new_call"
	NotifyUpdateCall     = "update_call"
)

type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// FullState is the snapshot sent to consumers on (re)synchronization.
type FullState struct {
	Terminals       map[string]TerminalView `json:"terminals"`
	LocalHistory    []CallEntry             `json:"localHistory"`
	ExternalHistory []CallEntry             `json:"externalHistory"`
}

type StatusPayload struct {
	Mode string `json:"mode"`
}
