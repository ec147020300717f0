package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCallStart(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("cell state GROUP_TX call=7 src=2145007 dst=91")
	require.IsType(t, CallStart{}, ev)
	cs := ev.(CallStart)
	assert.Equal(t, "2145007", cs.Source)
	assert.Equal(t, "91", cs.Dest)

	ev = x.Extract("incoming call from ISSI 3020760 to GSSI 262")
	require.IsType(t, CallStart{}, ev)
	cs = ev.(CallStart)
	assert.Equal(t, "3020760", cs.Source)
	assert.Equal(t, "262", cs.Dest)
}

func TestExtractVoiceFrameAndSlotAssign(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("BrewEntity: voice frame #12 uuid=ab01 len=36 bytes ts=3")
	require.IsType(t, VoiceFrame{}, ev)
	assert.Equal(t, 3, ev.(VoiceFrame).Slot)

	ev = x.Extract("channel allocation ts_assigned: [false, true, false, false]")
	require.IsType(t, SlotAssign{}, ev)
	assert.Equal(t, 2, ev.(SlotAssign).Slot)

	assert.Nil(t, x.Extract("channel allocation ts_assigned: [false, false, false, false]"))
}

func TestExtractSpeakerAndCallEnd(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("speaker change gssi=91 new_speaker=3020760")
	require.IsType(t, SpeakerChange{}, ev)
	sc := ev.(SpeakerChange)
	assert.Equal(t, "91", sc.GSSI)
	assert.Equal(t, "3020760", sc.Speaker)

	assert.IsType(t, CallEnd{}, x.Extract("cell state GROUP_IDLE call=7"))
	assert.IsType(t, CallEnd{}, x.Extract("sending D-TX CEASED to all"))
	assert.IsType(t, CallEnd{}, x.Extract("network call ended after timeout"))
}

func TestExtractRegistration(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("ULocationUpdateDemand { received_address: TetraAddress { ssi: 2145007, ssi_type: Ssi }, location_update_type: ItsiAttach, gi: GroupIdentityUplink { gssi: Some(91), group_identity_detachment_uplink: None }")
	require.IsType(t, Registration{}, ev)
	reg := ev.(Registration)
	assert.Equal(t, "2145007", reg.SSI)
	assert.False(t, reg.Detach)
	assert.False(t, reg.Replace)
	require.Len(t, reg.Groups, 1)
	assert.Equal(t, GroupOp{GSSI: "91"}, reg.Groups[0])
}

func TestExtractRegistrationDetach(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("ULocationUpdateDemand { ssi: Some(2145007), ssi_type: Ssi, location_update_type: ItsiDetachUplink }")
	require.IsType(t, Registration{}, ev)
	assert.True(t, ev.(Registration).Detach)
}

func TestExtractAffiliateReplacesList(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("subscriber affiliate issi=2145007 groups=[91, 262]")
	require.IsType(t, Registration{}, ev)
	reg := ev.(Registration)
	assert.True(t, reg.Replace)
	assert.Equal(t, []GroupOp{{GSSI: "91"}, {GSSI: "262"}}, reg.Groups)
}

func TestExtractGroupChange(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("UAttachDetachGroupIdentity { received_address: TetraAddress { ssi: 2145007, ssi_type: Ssi }, gi: GroupIdentityUplink { gssi: Some(7), group_identity_detachment_uplink: None }, gi2: GroupIdentityUplink { gssi: Some(91), group_identity_detachment_uplink: Some(Unknown) }")
	require.IsType(t, GroupChange{}, ev)
	gc := ev.(GroupChange)
	assert.Equal(t, "2145007", gc.SSI)
	assert.Equal(t, []GroupOp{{GSSI: "7"}, {GSSI: "91", Detach: true}}, gc.Groups)
}

func TestExtractDeregister(t *testing.T) {
	x := NewExtractor()

	ev := x.Extract("UItsiDetach { received_address: TetraAddress { ssi: 3020760, ssi_type: Ssi } }")
	require.IsType(t, Deregister{}, ev)
	assert.Equal(t, "3020760", ev.(Deregister).SSI)

	ev = x.Extract("deregister request issi=4100038")
	require.IsType(t, Deregister{}, ev)
	assert.Equal(t, "4100038", ev.(Deregister).SSI)
}

// A group-typed address must never be taken for a subscriber id.
func TestExtractIgnoresGroupTypedAddress(t *testing.T) {
	x := NewExtractor()

	x.Extract("received_address: TetraAddress { ssi: 91, ssi_type: Gssi }")
	assert.Empty(t, x.ContextID())

	ev := x.Extract("UAttachDetachGroupIdentity { received_address: TetraAddress { ssi: 91, ssi_type: Gssi }, gi: GroupIdentityUplink { gssi: Some(7), group_identity_detachment_uplink: None }")
	require.IsType(t, GroupChange{}, ev)
	assert.Empty(t, ev.(GroupChange).SSI)
}

// Identifier-less lines fall back to the most recent subscriber id seen on
// the stream.
func TestExtractContextFallback(t *testing.T) {
	x := NewExtractor()

	assert.Nil(t, x.Extract("MLE pdu received_address: TetraAddress { ssi: 2145007, ssi_type: Ssi }"))
	assert.Equal(t, "2145007", x.ContextID())

	ev := x.Extract("UAttachDetachGroupIdentity follow-up gi: GroupIdentityUplink { gssi: Some(262), group_identity_detachment_uplink: None }")
	require.IsType(t, GroupChange{}, ev)
	assert.Equal(t, "2145007", ev.(GroupChange).SSI)

	// Last id wins.
	x.Extract("MLE pdu received_address: TetraAddress { ssi: 3020760, ssi_type: Ssi }")
	assert.Equal(t, "3020760", x.ContextID())
}

// One line, one event: the recognizer order decides ambiguous lines.
func TestExtractPriority(t *testing.T) {
	x := NewExtractor()

	// Carries both a call start and a voice frame fragment; call start wins.
	ev := x.Extract("GROUP_TX src=1001 dst=91 while voice frame #1 ts=2")
	assert.IsType(t, CallStart{}, ev)

	// Base station affiliation must not fall through to looser matchers.
	ev = x.Extract("base affiliated to groups [91, 262]")
	assert.IsType(t, BaseGroups{}, ev)

	assert.Nil(t, x.Extract("unrelated chatter"))
}
