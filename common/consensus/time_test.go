package consensus

import (
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMillis(t *testing.T) {
	tests := map[string]struct {
		ts       string
		expected int64
		valid    bool
	}{
		"Full nanos":            {ts: "1697040093.500000000", expected: 1697040093500, valid: true},
		"Sub-millisecond nanos": {ts: "1697040093.123456789", expected: 1697040093123, valid: true},
		"Short fraction":        {ts: "1697040093.0", expected: 1697040093000, valid: true},
		"Padded fraction":       {ts: "1697040093.5", expected: 1697040093500, valid: true},
		"Seconds only":          {ts: "1697040093", expected: 1697040093000, valid: true},
		"Empty":                 {ts: "", valid: false},
		"Word":                  {ts: "invalid", valid: false},
		"Partially numeric":     {ts: "abc.def", valid: false},
		"Trailing garbage":      {ts: "1697040093.5x", valid: false},
		"Negative":              {ts: "-1.0", valid: false},
		"Dangling dot":          {ts: "1697040093.", valid: false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			millis, ok := ToMillis(test.ts)
			if ok != test.valid {
				t.Fatalf("incorrect validity for %q: expected %v, got %v", test.ts, test.valid, ok)
			}
			if millis != test.expected {
				t.Errorf("incorrect millis for %q: expected %d, got %d", test.ts, test.expected, millis)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, Compare("1697040093.500000000", "1697040093.500000000"))
	assert.Equal(t, 0, Compare("1697040093", "1697040093.000000000"))
	assert.Equal(t, 0, Compare("1697040093.5", "1697040093.500000000"))

	// Same millisecond, different nanos.
	assert.Negative(t, Compare("1697040093.123456789", "1697040093.123456790"))
	assert.Positive(t, Compare("1697040094.000000000", "1697040093.999999999"))

	// Invalid values sort first.
	assert.Negative(t, Compare("", "1.0"))
	assert.Positive(t, Compare("1.0", "abc.def"))
}

func TestCompareSortsWithinMillisecond(t *testing.T) {
	ts := []string{"10.000000003", "10.000000001", "9.999999999", "10.000000002"}
	sort.Slice(ts, func(i, j int) bool { return Compare(ts[i], ts[j]) < 0 })
	require.Equal(t, []string{"9.999999999", "10.000000001", "10.000000002", "10.000000003"}, ts)
}

func TestMax(t *testing.T) {
	assert.Equal(t, "2.0", Max("1.999999999", "2.0"))
	assert.Equal(t, "1.0", Max("", "1.0"))
	assert.Equal(t, "1.0", Max("1.0", "invalid"))
}

func TestNow(t *testing.T) {
	now := Now()
	require.Regexp(t, regexp.MustCompile(`^\d+\.\d{9}$`), now)

	millis, ok := ToMillis(now)
	require.True(t, ok)
	assert.InDelta(t, time.Now().UnixMilli(), millis, float64(time.Minute.Milliseconds()))
}

func TestFromTimeRoundTrip(t *testing.T) {
	instant := time.Unix(1697040095, 123456789)
	ts := FromTime(instant)
	require.Equal(t, "1697040095.123456789", ts)

	parsed, ok := Parse(ts)
	require.True(t, ok)
	assert.Equal(t, Timestamp{Seconds: 1697040095, Nanos: 123456789}, parsed)
	assert.Equal(t, ts, parsed.String())
}
