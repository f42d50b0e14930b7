package xapi

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var durationPattern = regexp.MustCompile(`^(-)?P` +
	`(?:(\d+(?:\.\d+)?)Y)?` +
	`(?:(\d+(?:\.\d+)?)M)?` +
	`(?:(\d+(?:\.\d+)?)W)?` +
	`(?:(\d+(?:\.\d+)?)D)?` +
	`(?:T` +
	`(?:(\d+(?:\.\d+)?)H)?` +
	`(?:(\d+(?:\.\d+)?)M)?` +
	`(?:(\d+(?:\.\d+)?)S)?` +
	`)?$`)

var durationUnits = []time.Duration{year, month, week, day, time.Hour, time.Minute, time.Second}

// FormatDuration renders d as an ISO-8601 duration such as PT1H2M3.5S.
// Whole days are emitted as a day component; larger calendar units are not used.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')
	if days := d / day; days > 0 {
		fmt.Fprintf(&b, "%dD", days)
		d -= days * day
	}
	if d == 0 {
		return b.String()
	}
	b.WriteByte('T')
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if d > 0 {
		secs := d / time.Second
		frac := d - secs*time.Second
		if frac == 0 {
			fmt.Fprintf(&b, "%dS", secs)
		} else {
			digits := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
			fmt.Fprintf(&b, "%d.%sS", secs, digits)
		}
	}
	return b.String()
}

// ParseDuration parses an ISO-8601 duration. Years count as 365 days and
// months as 30 days.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || strings.HasSuffix(s, "T") {
		return 0, &InvalidDurationError{Value: s}
	}
	total := new(big.Rat)
	seen := false
	for i, unit := range durationUnits {
		raw := m[i+2]
		if raw == "" {
			continue
		}
		seen = true
		v, ok := new(big.Rat).SetString(raw)
		if !ok {
			return 0, &InvalidDurationError{Value: s}
		}
		total.Add(total, v.Mul(v, new(big.Rat).SetInt64(int64(unit))))
	}
	if !seen {
		return 0, &InvalidDurationError{Value: s}
	}
	// round half up to whole nanoseconds: (2n + d) / 2d
	num := new(big.Int).Lsh(total.Num(), 1)
	num.Add(num, total.Denom())
	ns := num.Quo(num, new(big.Int).Lsh(total.Denom(), 1))
	if !ns.IsInt64() {
		return 0, &InvalidDurationError{Value: s}
	}
	d := time.Duration(ns.Int64())
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}
