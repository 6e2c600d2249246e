package ics

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDuration decodes an RFC 5545 DURATION value such as "PT1H30M",
// "-P1D" or "P2W". Days and weeks are exact multiples of 24 hours.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	seen, timeSeen := false, false
	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			inTime = true
			s = s[1:]
			continue
		}

		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid duration %q", orig)
		}
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", orig, err)
		}

		var unit time.Duration
		switch d := s[i]; {
		case d == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case d == 'D' && !inTime:
			unit = 24 * time.Hour
		case d == 'H' && inTime:
			unit = time.Hour
		case d == 'M' && inTime:
			unit = time.Minute
		case d == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", orig)
		}
		total += time.Duration(n) * unit
		seen = true
		timeSeen = inTime
		s = s[i+1:]
	}
	if !seen || (inTime && !timeSeen) {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	return sign * total, nil
}
