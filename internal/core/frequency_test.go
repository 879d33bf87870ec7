package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByFrequency(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		days float64
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			days: 1,
			want: []string{},
		},
		{
			name: "single",
			in:   []string{"20150101000000"},
			days: 30,
			want: []string{"20150101000000"},
		},
		{
			name: "noon capture within a day of the first is dropped",
			in:   []string{"20150101000000", "20150101120000", "20150103000000"},
			days: 1,
			want: []string{"20150101000000", "20150103000000"},
		},
		{
			name: "exactly the interval is kept",
			in:   []string{"20150101000000", "20150102000000"},
			days: 1,
			want: []string{"20150101000000", "20150102000000"},
		},
		{
			name: "skipped entries do not reset the clock",
			in:   []string{"20150101000000", "20150101180000", "20150102060000", "20150102120000"},
			days: 1,
			want: []string{"20150101000000", "20150102060000"},
		},
		{
			name: "fractional days",
			in:   []string{"20150101000000", "20150101060000", "20150101130000"},
			days: 0.5,
			want: []string{"20150101000000", "20150101130000"},
		},
		{
			name: "zero interval keeps everything",
			in:   []string{"20150101000000", "20150101000000", "20150101000001"},
			days: 0,
			want: []string{"20150101000000", "20150101000000", "20150101000001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterByFrequency(tt.in, tt.days)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The interval is a real parameter, not LegacyMinInterval. These cases pin
// down where a fixed one-day gap and --frequency diverge.
func TestFilterByFrequency_IntervalIsHonoured(t *testing.T) {
	in := []string{"20150101000000", "20150102000000", "20150103000000", "20150108000000"}

	weekly, err := FilterByFrequency(in, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"20150101000000", "20150108000000"}, weekly)

	legacy, err := filterByInterval(in, LegacyMinInterval)
	require.NoError(t, err)
	assert.Equal(t, in, legacy, "a fixed one-day gap keeps every daily capture")
	assert.NotEqual(t, legacy, weekly)

	daily, err := FilterByFrequency(in, 1)
	require.NoError(t, err)
	assert.Equal(t, legacy, daily, "with --frequency 1 both behaviours agree")
}

func TestFilterByFrequency_Properties(t *testing.T) {
	in := []string{
		"20140301101010", "20140301230000", "20140302090000", "20140305000000",
		"20140305000001", "20140310120000", "20140311110000", "20140401000000",
	}

	for _, days := range []float64{0.25, 1, 2, 5, 30} {
		out, err := FilterByFrequency(in, days)
		require.NoError(t, err)

		require.NotEmpty(t, out)
		assert.Equal(t, in[0], out[0], "first element is always kept")

		// Relative order is preserved: out is a subsequence of in.
		j := 0
		for _, s := range in {
			if j < len(out) && s == out[j] {
				j++
			}
		}
		assert.Equal(t, len(out), j, "output is an ordered subsequence (days=%v)", days)

		gap := DaysToDuration(days)
		for i := 1; i < len(out); i++ {
			a, _ := ParseTimestamp(out[i-1])
			b, _ := ParseTimestamp(out[i])
			assert.GreaterOrEqual(t, b.Sub(a), gap, "adjacent gap (days=%v)", days)
		}

		again, err := FilterByFrequency(out, days)
		require.NoError(t, err)
		assert.Equal(t, out, again, "idempotent (days=%v)", days)
	}
}

func TestFilterByFrequency_Malformed(t *testing.T) {
	for _, bad := range []string{"2015", "2015010100000x", "20151301000000", "201501010000000"} {
		_, err := FilterByFrequency([]string{"20150101000000", bad}, 1)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, "input %q", bad)
		assert.Equal(t, bad, pe.Input)
		assert.Contains(t, err.Error(), bad)
	}

	_, err := FilterByFrequency([]string{"garbage"}, 1)
	assert.Error(t, err, "the first element is validated too")
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("20150103041516")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 1, 3, 4, 15, 16, 0, time.UTC), ts)
}
