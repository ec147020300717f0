package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Event is one semantic occurrence recognized in a normalized log line.
type Event interface {
	eventKind() string
}

// GroupOp is a single attach or detach of one talkgroup.
type GroupOp struct {
	GSSI   string
	Detach bool
}

type CallStart struct {
	Source string
	Dest   string
}

type VoiceFrame struct {
	Slot int
}

// SlotAssign is a channel-allocation slot announcement. It is only applied
// while a call is active; the reconciler gates that.
type SlotAssign struct {
	Slot int
}

type SpeakerChange struct {
	GSSI    string
	Speaker string
}

type CallEnd struct{}

// Registration covers location-update and affiliate lines. Replace marks
// the scan-mode affiliate form, which carries the complete scan list rather
// than a delta. SSI may be empty when neither the line nor the context pass
// recovered an id; such events are no-ops downstream.
type Registration struct {
	SSI     string
	Groups  []GroupOp
	Detach  bool
	Replace bool
}

type GroupChange struct {
	SSI    string
	Groups []GroupOp
}

type Deregister struct {
	SSI string
}

// BaseGroups is the base station's own affiliation announcement. It is
// recognized so the line does not fall through to looser matchers, but it
// carries no terminal state.
type BaseGroups struct{}

func (CallStart) eventKind() string     { return "call_start" }
func (VoiceFrame) eventKind() string    { return "voice_frame" }
func (SlotAssign) eventKind() string    { return "slot_assign" }
func (SpeakerChange) eventKind() string { return "speaker_change" }
func (CallEnd) eventKind() string       { return "call_end" }
func (Registration) eventKind() string  { return "registration" }
func (GroupChange) eventKind() string   { return "group_change" }
func (Deregister) eventKind() string    { return "deregister" }
func (BaseGroups) eventKind() string    { return "base_groups" }

// Kind reports the event's kind tag, mainly for logging and tests.
func Kind(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventKind()
}

var (
	// The ssi_type suffix restricts both patterns to subscriber ids. A
	// Gssi-typed address never matches, so a talkgroup number can not be
	// mistaken for a terminal.
	ssiReceivedPattern = regexp.MustCompile(`received_address:\s*TetraAddress\s*\{\s*ssi:\s*(\d+),\s*ssi_type:\s*Ssi`)
	ssiTypedPattern    = regexp.MustCompile(`\bssi:\s*(?:Some\()?(\d+)\)?,\s*ssi_type:\s*Ssi`)

	groupUplinkPattern = regexp.MustCompile(`GroupIdentityUplink\s*\{([^}]+)\}`)
	gssiSomePattern    = regexp.MustCompile(`\bgssi:\s*Some\((\d+)\)`)
	groupDetachPattern = regexp.MustCompile(`group_identity_detachment_uplink:\s*Some`)

	callTxPattern   = regexp.MustCompile(`GROUP_TX\s+.*?src=(\d+)\s+dst=(\d+)`)
	callFromPattern = regexp.MustCompile(`(?i)call from ISSI\s*(\d+).*?to GSSI\s*(\d+)`)

	voiceFramePattern = regexp.MustCompile(`voice frame\s+#\d+.*?\bts=(\d+)`)
	slotAssignPattern = regexp.MustCompile(`ts_assigned:\s*\[([^\]]+)\]`)
	speakerPattern    = regexp.MustCompile(`speaker change gssi=(\d+)\s+new_speaker=(\d+)`)

	locUpdateTypePattern = regexp.MustCompile(`location_update_type:\s*(\w+)`)
	affiliatePattern     = regexp.MustCompile(`subscriber affiliate issi=(\d+)\s+groups=\[([^\]]*)\]`)
	baseGroupsPattern    = regexp.MustCompile(`affiliated to groups \[([^\]]*)\]`)

	deregAddrPattern  = regexp.MustCompile(`received_address:\s*TetraAddress\s*\{[^}]*ssi:\s*(\d+)`)
	deregLoosePattern = regexp.MustCompile(`(?i)\b(?:issi|ssi)[:\s=]+(?:Some\()?(\d+)`)
)

type recognizer struct {
	name  string
	match func(x *Extractor, msg string) Event
}

// Extractor turns normalized messages into events. Recognizers run in a
// fixed priority order; the first match wins. Before the table runs, an
// unconditional pass recovers a subscriber id into the process-wide context
// id, the fallback for later identifier-less lines of a multi-line log
// sequence. Single writer, single reader, last value wins; the context id
// never leaks into terminal records.
type Extractor struct {
	contextID   string
	recognizers []recognizer
}

func NewExtractor() *Extractor {
	return &Extractor{
		recognizers: []recognizer{
			{"call_start", matchCallStart},
			{"voice_frame", matchVoiceFrame},
			{"slot_assign", matchSlotAssign},
			{"speaker_change", matchSpeakerChange},
			{"call_end", matchCallEnd},
			{"registration", matchRegistration},
			{"affiliate", matchAffiliate},
			{"group_change", matchGroupChange},
			{"deregister", matchDeregister},
			{"base_groups", matchBaseGroups},
		},
	}
}

// Extract returns the first recognized event for msg, or nil.
func (x *Extractor) Extract(msg string) Event {
	if ssi := extractSSI(msg); ssi != "" {
		x.contextID = ssi
	}
	for _, r := range x.recognizers {
		if ev := r.match(x, msg); ev != nil {
			return ev
		}
	}
	return nil
}

// ContextID exposes the current fallback id for tests.
func (x *Extractor) ContextID() string {
	return x.contextID
}

func extractSSI(msg string) string {
	if m := ssiReceivedPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := ssiTypedPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

func extractGroupOps(msg string) []GroupOp {
	var ops []GroupOp
	for _, block := range groupUplinkPattern.FindAllStringSubmatch(msg, -1) {
		g := gssiSomePattern.FindStringSubmatch(block[1])
		if g == nil {
			continue
		}
		ops = append(ops, GroupOp{GSSI: g[1], Detach: groupDetachPattern.MatchString(block[1])})
	}
	return ops
}

func matchCallStart(_ *Extractor, msg string) Event {
	m := callTxPattern.FindStringSubmatch(msg)
	if m == nil {
		m = callFromPattern.FindStringSubmatch(msg)
	}
	if m == nil {
		return nil
	}
	return CallStart{Source: m[1], Dest: m[2]}
}

func matchVoiceFrame(_ *Extractor, msg string) Event {
	m := voiceFramePattern.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	slot, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return VoiceFrame{Slot: slot}
}

func matchSlotAssign(_ *Extractor, msg string) Event {
	m := slotAssignPattern.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	for idx, field := range strings.Split(m[1], ",") {
		if strings.EqualFold(strings.TrimSpace(field), "true") {
			return SlotAssign{Slot: idx + 1}
		}
	}
	return nil
}

func matchSpeakerChange(_ *Extractor, msg string) Event {
	m := speakerPattern.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	return SpeakerChange{GSSI: m[1], Speaker: m[2]}
}

func matchCallEnd(_ *Extractor, msg string) Event {
	if strings.Contains(msg, "GROUP_IDLE") ||
		strings.Contains(msg, "D-TX CEASED") ||
		strings.Contains(msg, "network call ended") {
		return CallEnd{}
	}
	return nil
}

func matchRegistration(x *Extractor, msg string) Event {
	if !strings.Contains(msg, "ULocationUpdateDemand") {
		return nil
	}
	ssi := extractSSI(msg)
	if ssi == "" {
		ssi = x.contextID
	}
	locType := ""
	if m := locUpdateTypePattern.FindStringSubmatch(msg); m != nil {
		locType = m[1]
	}
	return Registration{
		SSI:    ssi,
		Groups: extractGroupOps(msg),
		Detach: strings.Contains(locType, "Detach"),
	}
}

func matchAffiliate(_ *Extractor, msg string) Event {
	m := affiliatePattern.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	var ops []GroupOp
	for _, raw := range strings.Split(m[2], ",") {
		if g := strings.TrimSpace(raw); g != "" {
			ops = append(ops, GroupOp{GSSI: g})
		}
	}
	return Registration{SSI: m[1], Groups: ops, Replace: true}
}

func matchGroupChange(x *Extractor, msg string) Event {
	if !strings.Contains(msg, "UAttachDetachGroupIdentity") {
		return nil
	}
	ssi := extractSSI(msg)
	if ssi == "" {
		ssi = x.contextID
	}
	return GroupChange{SSI: ssi, Groups: extractGroupOps(msg)}
}

func matchDeregister(x *Extractor, msg string) Event {
	if !strings.Contains(msg, "UItsiDetach") &&
		!strings.Contains(msg, "ItsiDetach") &&
		!strings.Contains(strings.ToLower(msg), "deregister") {
		return nil
	}
	ssi := extractSSI(msg)
	if ssi == "" {
		if m := deregAddrPattern.FindStringSubmatch(msg); m != nil {
			ssi = m[1]
		} else if m := deregLoosePattern.FindStringSubmatch(msg); m != nil {
			ssi = m[1]
		}
	}
	if ssi == "" {
		ssi = x.contextID
	}
	return Deregister{SSI: ssi}
}

func matchBaseGroups(_ *Extractor, msg string) Event {
	if baseGroupsPattern.MatchString(msg) {
		return BaseGroups{}
	}
	return nil
}
