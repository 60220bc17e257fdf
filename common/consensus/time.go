// Package consensus handles ledger consensus timestamps of the form "<seconds>.<nanoseconds>".
//
// The fractional part is optional and is interpreted as a decimal fraction of a second, so "5.5" is
// five and a half seconds, the same instant as "5.500000000".
package consensus

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const nanoDigits = 9

// Timestamp is a parsed consensus timestamp.
type Timestamp struct {
	Seconds int64
	Nanos   int64
}

// Parse splits a consensus timestamp into whole seconds and nanoseconds. Empty, signed or partially
// numeric input is rejected.
func Parse(ts string) (Timestamp, bool) {
	if len(ts) == 0 {
		return Timestamp{}, false
	}
	secPart, nanoPart, hasFraction := strings.Cut(ts, ".")
	if !isDigits(secPart) || (hasFraction && !isDigits(nanoPart)) {
		return Timestamp{}, false
	}
	seconds, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return Timestamp{}, false
	}
	var nanos int64
	if hasFraction {
		// Digits past nanosecond precision carry no ordering information the ledger can produce.
		if len(nanoPart) > nanoDigits {
			nanoPart = nanoPart[:nanoDigits]
		}
		nanoPart += strings.Repeat("0", nanoDigits-len(nanoPart))
		if nanos, err = strconv.ParseInt(nanoPart, 10, 64); err != nil {
			return Timestamp{}, false
		}
	}
	return Timestamp{seconds, nanos}, true
}

// ToMillis truncates a consensus timestamp to Unix milliseconds. The boolean is false for input that
// does not parse.
func ToMillis(ts string) (int64, bool) {
	parsed, ok := Parse(ts)
	if !ok {
		return 0, false
	}
	return parsed.Millis(), true
}

// Compare orders two consensus timestamps at full nanosecond precision. Unparseable values sort before
// every valid value and are ordered among themselves lexically, so sorting never panics on bad data.
func Compare(a, b string) int {
	pa, okA := Parse(a)
	pb, okB := Parse(b)
	switch {
	case !okA && !okB:
		return strings.Compare(a, b)
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return pa.Compare(pb)
}

// Max returns the later of two timestamps. An empty or invalid value never wins over a valid one.
func Max(a, b string) string {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Now synthesizes a consensus timestamp from the wall clock for locally originated events.
func Now() string {
	return FromTime(time.Now())
}

func FromTime(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

func (t Timestamp) Millis() int64 {
	return t.Seconds*1000 + t.Nanos/int64(time.Millisecond)
}

func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Nanos < o.Nanos:
		return -1
	case t.Nanos > o.Nanos:
		return 1
	}
	return 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanos)
}

func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
