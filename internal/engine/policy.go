package engine

// ListAction decides how an attach event updates a terminal's scan list.
type ListAction int

const (
	AppendGroups ListAction = iota
	ReplaceGroups
)

// ScanListAction separates a user retune from scan-mode accumulation. A
// retune shows up as a single attach with no accompanying detach while the
// scan list is still near-empty; anything else accumulates. The threshold is
// tuned against observed logs, not a protocol rule, so it stays
// configurable.
func ScanListAction(currentSize, attachCount, detachCount, retuneThreshold int) ListAction {
	if attachCount == 1 && detachCount == 0 && currentSize <= retuneThreshold {
		return ReplaceGroups
	}
	return AppendGroups
}
