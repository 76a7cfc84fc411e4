package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinuteOfDay(t *testing.T) {
	tests := []struct {
		name string
		now  int64
		want uint16
	}{
		{name: "midnight", now: 0, want: 0},
		{name: "one minute in", now: 60, want: 1},
		{name: "just before next minute", now: 119, want: 1},
		{name: "nine am", now: 9 * 3600, want: 540},
		{name: "last minute of day", now: 86_399, want: 1439},
		{name: "day boundary wraps", now: 86_400, want: 0},
		{name: "multi-day offset", now: 3*86_400 + 17*3600 + 30*60, want: 1050},
		{name: "negative epoch", now: -60, want: 1439},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinuteOfDay(tt.now))
		})
	}
}

func TestWindowOpen(t *testing.T) {
	tests := []struct {
		name   string
		open   uint16
		close  uint16
		minute uint16
		want   bool
	}{
		{name: "normal window inside", open: 540, close: 1020, minute: 600, want: true},
		{name: "normal window at open", open: 540, close: 1020, minute: 540, want: true},
		{name: "normal window at close", open: 540, close: 1020, minute: 1020, want: false},
		{name: "normal window before open", open: 540, close: 1020, minute: 539, want: false},
		{name: "normal window after close", open: 540, close: 1020, minute: 1021, want: false},
		{name: "wrapping window late evening", open: 1320, close: 360, minute: 1400, want: true},
		{name: "wrapping window early morning", open: 1320, close: 360, minute: 120, want: true},
		{name: "wrapping window at open", open: 1320, close: 360, minute: 1320, want: true},
		{name: "wrapping window at close", open: 1320, close: 360, minute: 360, want: false},
		{name: "wrapping window midday gap", open: 1320, close: 360, minute: 720, want: false},
		{name: "degenerate equal window", open: 600, close: 600, minute: 600, want: false},
		{name: "degenerate equal window elsewhere", open: 600, close: 600, minute: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WindowOpen(tt.open, tt.close, tt.minute))
		})
	}
}
