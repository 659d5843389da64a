package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadZone_Offsets(t *testing.T) {
	cases := []struct {
		spec    string
		seconds int
	}{
		{"+10:00", 10 * 3600},
		{"+1000", 10 * 3600},
		{"UTC+10", 10 * 3600},
		{"utc+9:30", 9*3600 + 30*60},
		{"-05:30", -(5*3600 + 30*60)},
		{"GMT-3", -3 * 3600},
	}
	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			loc, err := LoadZone(tc.spec)
			require.NoError(t, err)
			_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
			assert.Equal(t, tc.seconds, offset)
		})
	}
}

func TestLoadZone_Named(t *testing.T) {
	loc, err := LoadZone("")
	require.NoError(t, err)
	assert.Equal(t, DefaultZone, loc.String())

	loc, err = LoadZone("Australia/Brisbane")
	require.NoError(t, err)
	assert.Equal(t, "Australia/Brisbane", loc.String())
}

func TestLoadZone_Invalid(t *testing.T) {
	for _, spec := range []string{"Mars/Olympus", "+25:00", "+10:75"} {
		_, err := LoadZone(spec)
		assert.Error(t, err, spec)
	}
}

func TestToday_ZonePolicyChangesAttribution(t *testing.T) {
	// 13:30 UTC on Jan 15 is 00:30 Jan 16 in Sydney (AEDT, +11) but still
	// 23:30 Jan 15 under a fixed +10 offset
	now := time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)

	sydney, err := LoadZone("Australia/Sydney")
	require.NoError(t, err)
	fixed, err := LoadZone("+10:00")
	require.NoError(t, err)

	assert.Equal(t, "2024-01-16", Today(now, sydney).Format("2006-01-02"))
	assert.Equal(t, "2024-01-15", Today(now, fixed).Format("2006-01-02"))

	// In July Sydney is on standard time and the two agree
	winter := time.Date(2024, 7, 15, 13, 30, 0, 0, time.UTC)
	assert.Equal(t, Today(winter, sydney), Today(winter, fixed))
}

func TestToday_IsMidnightUTC(t *testing.T) {
	loc, err := LoadZone("+10:00")
	require.NoError(t, err)

	got := Today(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), got)
}
