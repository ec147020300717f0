package engine

import "testing"

func TestScanListAction(t *testing.T) {
	tests := []struct {
		name        string
		currentSize int
		attach      int
		detach      int
		want        ListAction
	}{
		{"retune on empty list", 0, 1, 0, ReplaceGroups},
		{"retune at threshold", 2, 1, 0, ReplaceGroups},
		{"accumulate above threshold", 3, 1, 0, AppendGroups},
		{"accompanying detach accumulates", 1, 1, 1, AppendGroups},
		{"multi attach accumulates", 0, 2, 0, AppendGroups},
		{"no attach accumulates", 1, 0, 1, AppendGroups},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScanListAction(tt.currentSize, tt.attach, tt.detach, 2); got != tt.want {
				t.Fatalf("ScanListAction(%d,%d,%d,2) = %v, want %v", tt.currentSize, tt.attach, tt.detach, got, tt.want)
			}
		})
	}
}
