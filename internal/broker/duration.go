package broker

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var isoDurationPattern = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses an ISO 8601 duration such as P1D or PT2H30M.
// Years and months are approximated as 365 and 30 days; booking windows in
// practice use days and hours.
func ParseISODuration(s string) (time.Duration, error) {
	if s == "" || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}

	var total time.Duration
	units := []struct {
		match string
		unit  time.Duration
	}{
		{m[1], 365 * 24 * time.Hour},
		{m[2], 30 * 24 * time.Hour},
		{m[3], 7 * 24 * time.Hour},
		{m[4], 24 * time.Hour},
		{m[5], time.Hour},
		{m[6], time.Minute},
		{m[7], time.Second},
	}
	for _, u := range units {
		if u.match == "" {
			continue
		}
		value, err := strconv.ParseFloat(u.match, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", s, err)
		}
		total += time.Duration(value * float64(u.unit))
	}
	return total, nil
}
