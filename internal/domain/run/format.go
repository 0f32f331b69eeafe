package run

import "fmt"

// FormatClock renders milliseconds using only the largest non-zero unit
// chain: H:MM:SS.mmm, M:SS.mmm, S.mmm or 0.mmm. The sign is dropped.
func FormatClock(ms int64) string {
	return formatClock(ms, false)
}

// FormatDelta is FormatClock with an explicit sign; zero renders as "+".
func FormatDelta(ms int64) string {
	return formatClock(ms, true)
}

func formatClock(ms int64, signed bool) string {
	sign := ""
	if signed {
		sign = "+"
		if ms < 0 {
			sign = "-"
		}
	}

	abs := uint64(ms)
	if ms < 0 {
		abs = uint64(-(ms + 1)) + 1
	}

	millis := abs % 1000
	totalSeconds := abs / 1000
	seconds := totalSeconds % 60
	minutes := (totalSeconds / 60) % 60
	hours := totalSeconds / 3600

	switch {
	case hours != 0:
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, hours, minutes, seconds, millis)
	case minutes != 0:
		return fmt.Sprintf("%s%d:%02d.%03d", sign, minutes, seconds, millis)
	default:
		return fmt.Sprintf("%s%d.%03d", sign, seconds, millis)
	}
}
