package atom

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Calendar components have no exact duration; the parser uses the same
// approximations the admin clients tolerate.
const (
	daysPerYear  = 365
	daysPerMonth = 30
)

// FormatDuration renders a duration in ISO-8601 form, e.g. "PT60S",
// "P14D", "P1DT2H30M". Zero renders as "PT0S".
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	sb.WriteByte('P')

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&sb, "%dD", days)
	}

	if d == 0 {
		return sb.String()
	}
	sb.WriteByte('T')

	hours := d / time.Hour
	d -= hours * time.Hour
	if hours > 0 {
		fmt.Fprintf(&sb, "%dH", hours)
	}

	minutes := d / time.Minute
	d -= minutes * time.Minute
	if minutes > 0 {
		fmt.Fprintf(&sb, "%dM", minutes)
	}

	if d > 0 {
		secs := float64(d) / float64(time.Second)
		sb.WriteString(strconv.FormatFloat(secs, 'f', -1, 64))
		sb.WriteByte('S')
	}

	return sb.String()
}

// ParseDuration parses an ISO-8601 duration. Composite forms with
// years, months, days, hours, minutes, and fractional seconds are
// accepted; years and months use calendar approximations.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid duration %q: must start with P", orig)
	}
	s = s[1:]
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q: no components", orig)
	}

	var total time.Duration
	inTime := false
	sawComponent := false

	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid duration %q: repeated T", orig)
			}
			inTime = true
			s = s[1:]
			continue
		}

		// Scan the numeric part, fractional only for seconds.
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid duration %q: malformed component", orig)
		}
		value, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", orig, err)
		}
		unit := s[i]
		s = s[i+1:]
		sawComponent = true

		switch {
		case !inTime && unit == 'Y':
			total += time.Duration(value * daysPerYear * 24 * float64(time.Hour))
		case !inTime && unit == 'M':
			total += time.Duration(value * daysPerMonth * 24 * float64(time.Hour))
		case !inTime && unit == 'W':
			total += time.Duration(value * 7 * 24 * float64(time.Hour))
		case !inTime && unit == 'D':
			total += time.Duration(value * 24 * float64(time.Hour))
		case inTime && unit == 'H':
			total += time.Duration(value * float64(time.Hour))
		case inTime && unit == 'M':
			total += time.Duration(value * float64(time.Minute))
		case inTime && unit == 'S':
			total += time.Duration(value * float64(time.Second))
		default:
			return 0, fmt.Errorf("invalid duration %q: unexpected unit %q", orig, string(unit))
		}
	}

	if !sawComponent {
		return 0, fmt.Errorf("invalid duration %q: no components", orig)
	}
	if neg {
		total = -total
	}
	return total, nil
}
