package monitor

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/radiowatch/tetra-monitor/internal/model"
)

// StreamNotifier writes each notification as one newline-delimited JSON
// object, the wire format downstream relays consume on a pipe.
type StreamNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStreamNotifier(w io.Writer) *StreamNotifier {
	return &StreamNotifier{w: w}
}

func (s *StreamNotifier) Notify(n model.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(body, '\n'))
}
