package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(month time.Month, day int) time.Time {
	return time.Date(2025, month, day, 12, 0, 0, 0, time.Local)
}

func TestDetectSeason_Boundaries(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected Season
	}{
		{"Winter starts Dec 21", date(time.December, 21), SeasonWinter},
		{"Dec 20 is still autumn", date(time.December, 20), SeasonAutumn},
		{"Spring starts Mar 21", date(time.March, 21), SeasonSpring},
		{"Mar 20 is still winter", date(time.March, 20), SeasonWinter},
		{"Summer starts Jun 21", date(time.June, 21), SeasonSummer},
		{"Jun 20 is still spring", date(time.June, 20), SeasonSpring},
		{"Autumn starts Sep 21", date(time.September, 21), SeasonAutumn},
		{"Sep 20 is still summer", date(time.September, 20), SeasonSummer},
		{"New year is winter", date(time.January, 1), SeasonWinter},
		{"Leap day is winter", time.Date(2024, time.February, 29, 0, 0, 0, 0, time.Local), SeasonWinter},
		{"Midsummer month", date(time.July, 15), SeasonSummer},
		{"October is autumn", date(time.October, 31), SeasonAutumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectSeason(tt.now))
		})
	}
}

func TestDetectSeason_EveryDayHasExactlyOneSeason(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	counts := make(map[Season]int)

	for d := start; d.Year() == 2024; d = d.AddDate(0, 0, 1) {
		season := DetectSeason(d)
		require.NoError(t, season.Validate(), "day %s", d.Format("2006-01-02"))
		counts[season]++
	}

	assert.Len(t, counts, 4)
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 366, total)
}

func TestDetectSeason_UsesCallerLocation(t *testing.T) {
	// 2025-03-21 02:00 in Tokyo is still 2025-03-20 in UTC.
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2025, time.March, 21, 2, 0, 0, 0, tokyo)

	assert.Equal(t, SeasonSpring, DetectSeason(now))
	assert.Equal(t, SeasonWinter, DetectSeason(now.UTC()))
}

func TestParseSeason(t *testing.T) {
	t.Run("Concrete seasons", func(t *testing.T) {
		for _, s := range Seasons() {
			parsed, err := ParseSeason(string(s))
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
		}
	})

	t.Run("Auto and empty mean detect", func(t *testing.T) {
		for _, v := range []string{"", "auto"} {
			parsed, err := ParseSeason(v)
			require.NoError(t, err)
			assert.True(t, parsed.IsAuto())
		}
	})

	t.Run("Unknown season", func(t *testing.T) {
		_, err := ParseSeason("monsoon")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "season must be one of")
	})
}

func TestSeason_Resolve(t *testing.T) {
	now := date(time.August, 1)

	assert.Equal(t, SeasonSummer, SeasonAuto.Resolve(now))
	assert.Equal(t, SeasonSummer, Season("").Resolve(now))
	assert.Equal(t, SeasonWinter, SeasonWinter.Resolve(now))
}
