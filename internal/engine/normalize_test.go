package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func TestNormalizeRecordPlainMessage(t *testing.T) {
	rec, ok := NormalizeRecord(`{"MESSAGE":"cell state GROUP_IDLE","__REALTIME_TIMESTAMP":"1765700000000000"}`, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "cell state GROUP_IDLE", rec.Message)
	assert.Equal(t, time.UnixMicro(1765700000000000), rec.Time)
}

func TestNormalizeRecordCharCodeArray(t *testing.T) {
	// journald encodes messages with non-printable bytes as byte arrays.
	rec, ok := NormalizeRecord(`{"MESSAGE":[104,101,108,108,111]}`, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "hello", rec.Message)
	assert.Equal(t, fixedNow(), rec.Time)
}

func TestNormalizeRecordStripsANSI(t *testing.T) {
	rec, ok := NormalizeRecord(`{"MESSAGE":"\u001b[31mGROUP_TX\u001b[0m src=1 dst=2"}`, fixedNow)
	require.True(t, ok)
	assert.Equal(t, "GROUP_TX src=1 dst=2", rec.Message)
}

func TestNormalizeRecordRejectsMalformed(t *testing.T) {
	for _, line := range []string{"", "   ", "not json", `"just a string"`, `[1,2,3]`} {
		_, ok := NormalizeRecord(line, fixedNow)
		assert.False(t, ok, "line %q", line)
	}
}

func TestNormalizeRecordMissingTimestampFallsBack(t *testing.T) {
	rec, ok := NormalizeRecord(`{"MESSAGE":"x"}`, fixedNow)
	require.True(t, ok)
	assert.Equal(t, fixedNow(), rec.Time)
}
