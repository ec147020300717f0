package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Record is one normalized journal line: the plain message text plus the
// wall-clock instant it was logged at.
type Record struct {
	Message string
	Time    time.Time
}

// NormalizeRecord decodes a raw journald JSON record. MESSAGE may arrive as
// a plain string or as an array of character codes; __REALTIME_TIMESTAMP is
// a microsecond integer carried as a string. Malformed records return
// ok=false and are otherwise ignored.
func NormalizeRecord(line string, now func() time.Time) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return Record{}, false
	}
	parsed := gjson.Parse(line)
	if !parsed.IsObject() {
		return Record{}, false
	}

	msg := parsed.Get("MESSAGE")
	var text string
	if msg.IsArray() {
		var b strings.Builder
		for _, code := range msg.Array() {
			b.WriteRune(rune(code.Int()))
		}
		text = b.String()
	} else {
		text = msg.String()
	}
	text = ansiEscapes.ReplaceAllString(text, "")

	ts := now()
	if raw := parsed.Get("__REALTIME_TIMESTAMP"); raw.Exists() {
		if micros := raw.Int(); micros > 0 {
			ts = time.UnixMicro(micros)
		}
	}
	return Record{Message: text, Time: ts}, true
}
