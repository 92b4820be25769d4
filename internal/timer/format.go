package timer

import (
	"fmt"
	"strings"
	"time"
)

// Band classifies how close an attempt is to its deadline.
type Band string

const (
	BandNominal  Band = "nominal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Thresholds are the elapsed percentages at which the band changes.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds: below 50% nominal, 50-80% warning, above 80% critical.
var DefaultThresholds = Thresholds{Warning: 50, Critical: 80}

// BandFor maps an elapsed percentage to a band.
func BandFor(percent float64, th Thresholds) Band {
	switch {
	case percent < th.Warning:
		return BandNominal
	case percent <= th.Critical:
		return BandWarning
	default:
		return BandCritical
	}
}

// wholeSeconds rounds up so a countdown shows 0:00 only when time is out.
func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// FormatClock renders a countdown as M:SS.
func FormatClock(d time.Duration) string {
	s := wholeSeconds(d)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// FormatLong renders a duration as "Xh Ym Zs", omitting zero leading units.
func FormatLong(d time.Duration) string {
	s := wholeSeconds(d)
	h, m, sec := s/3600, (s%3600)/60, s%60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if h > 0 || m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", sec))
	return strings.Join(parts, " ")
}
