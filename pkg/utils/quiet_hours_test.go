package utils

import "testing"

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		name  string
		hour  int
		start int
		end   int
		want  bool
	}{
		// Same-day window, 13..17.
		{name: "before same-day window", hour: 12, start: 13, end: 18, want: false},
		{name: "at same-day start", hour: 13, start: 13, end: 18, want: true},
		{name: "inside same-day window", hour: 15, start: 13, end: 18, want: true},
		{name: "at same-day end is outside", hour: 18, start: 13, end: 18, want: false},

		// Overnight window, 21..8.
		{name: "late evening inside wrap", hour: 22, start: 21, end: 8, want: true},
		{name: "midnight inside wrap", hour: 0, start: 21, end: 8, want: true},
		{name: "early morning inside wrap", hour: 5, start: 21, end: 8, want: true},
		{name: "at wrap end is outside", hour: 8, start: 21, end: 8, want: false},
		{name: "midday outside wrap", hour: 12, start: 21, end: 8, want: false},
		{name: "at wrap start", hour: 21, start: 21, end: 8, want: true},

		// Degenerate window.
		{name: "start equals end means no window", hour: 10, start: 10, end: 10, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.hour, tt.start, tt.end); got != tt.want {
				t.Errorf("InQuietHours(%d, %d, %d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}
