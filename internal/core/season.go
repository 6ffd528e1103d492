package core

import (
	"fmt"
	"time"
)

// Season is a Northern-Hemisphere calendar season
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"

	// SeasonAuto asks the caller to detect the season from the current date
	SeasonAuto Season = "auto"
)

// Seasons lists the four concrete seasons in calendar order starting at winter
func Seasons() []Season {
	return []Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn}
}

// Validate checks if Season is one of the four concrete seasons
func (s Season) Validate() error {
	switch s {
	case SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn:
		return nil
	}
	return fmt.Errorf("season must be one of winter, spring, summer, autumn, got: %q", string(s))
}

// IsAuto reports whether the season should be detected rather than used as given
func (s Season) IsAuto() bool {
	return s == "" || s == SeasonAuto
}

// Resolve returns s, or the season of now when s is auto
func (s Season) Resolve(now time.Time) Season {
	if s.IsAuto() {
		return DetectSeason(now)
	}
	return s
}

// ParseSeason accepts a concrete season name or "auto"
func ParseSeason(v string) (Season, error) {
	s := Season(v)
	if s.IsAuto() {
		return SeasonAuto, nil
	}
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// DetectSeason maps a calendar date to its season using the local date of now.
// The start day of each season belongs to the new season:
// winter Dec 21, spring Mar 21, summer Jun 21, autumn Sep 21.
func DetectSeason(now time.Time) Season {
	month, day := now.Month(), now.Day()

	switch {
	case month == time.December && day >= 21,
		month == time.January, month == time.February,
		month == time.March && day < 21:
		return SeasonWinter
	case month == time.March,
		month == time.April, month == time.May,
		month == time.June && day < 21:
		return SeasonSpring
	case month == time.June,
		month == time.July, month == time.August,
		month == time.September && day < 21:
		return SeasonSummer
	default:
		return SeasonAutumn
	}
}
