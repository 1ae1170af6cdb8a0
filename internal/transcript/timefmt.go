package transcript

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseTime converts an HH:MM:SS.ff transcript time to seconds.
func ParseTime(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid transcript time %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in transcript time %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in transcript time %q: %w", s, err)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in transcript time %q: %w", s, err)
	}
	return float64(hours*3600+minutes*60) + seconds, nil
}

// FormatTime converts seconds to HH:MM:SS.ff, rounding to the nearest
// hundredth of a second.
func FormatTime(t float64) (string, error) {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return "", fmt.Errorf("cannot format transcript time %v", t)
	}
	// Round half a hundredth up, resolve to microseconds, then truncate.
	us := int64(math.RoundToEven((t + 0.005) * 1e6))
	h := us / 3_600_000_000
	m := us / 60_000_000 % 60
	s := us / 1_000_000 % 60
	cs := us % 1_000_000 / 10_000
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, s, cs), nil
}
