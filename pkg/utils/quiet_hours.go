package utils

// InQuietHours reports whether the given hour (0-23) falls inside a quiet
// window. A window with start < end covers [start, end) on the same day; a
// window with start > end wraps past midnight (e.g. 21 to 8 covers 21:00
// through 07:59). start == end means no quiet window.
func InQuietHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
