package policy

const secondsPerDay = 86_400

// MinuteOfDay converts an epoch timestamp to the minute of its UTC day,
// an integer in [0,1440).
func MinuteOfDay(now int64) uint16 {
	sec := now % secondsPerDay
	if sec < 0 {
		sec += secondsPerDay
	}
	return uint16(sec / 60)
}

// WindowOpen reports whether minute falls inside the [open, close) trading
// window. A window with open > close wraps midnight. The degenerate
// open == close case is always closed.
func WindowOpen(open, close, minute uint16) bool {
	switch {
	case open < close:
		return minute >= open && minute < close
	case open > close:
		return minute >= open || minute < close
	default:
		return false
	}
}
