// Package biometrics defines the normalized daily health signals pulse works
// with and the statistics used to compare a day against its baseline.
package biometrics

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var ErrNoData = errors.New("biometrics: no data for day")

// Date is a calendar day in ISO 8601 form (YYYY-MM-DD), independent of zone.
type Date string

// ParseDate validates a calendar date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("biometrics: invalid date %q: %w", s, err)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// AddDays returns the day shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string { return string(d) }

// DailyHRV is one night of heart-rate variability, in milliseconds.
type DailyHRV struct {
	Date         Date    `json:"date"`
	OvernightAvg float64 `json:"overnightAvg"`
	WeeklyAvg    float64 `json:"weeklyAvg"`
	HighFiveMin  float64 `json:"highFiveMin"`
	Status       string  `json:"status"`
}

// DailySleep is one night of sleep, durations in minutes.
type DailySleep struct {
	Date         Date `json:"date"`
	TotalMinutes int  `json:"totalMinutes"`
	DeepMinutes  int  `json:"deepMinutes"`
	RemMinutes   int  `json:"remMinutes"`
	LightMinutes int  `json:"lightMinutes"`
	AwakeMinutes int  `json:"awakeMinutes"`
	Score        int  `json:"score"`
}

// Hours returns total sleep as fractional hours.
func (s DailySleep) Hours() float64 {
	return float64(s.TotalMinutes) / 60
}

// DailySteps is one day of step activity.
type DailySteps struct {
	Date           Date    `json:"date"`
	Steps          int     `json:"steps"`
	Goal           int     `json:"goal"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// DailyLoad aggregates training stress over all activities of a day.
type DailyLoad struct {
	Date            Date    `json:"date"`
	TrainingLoad    float64 `json:"trainingLoad"`
	ActivityCount   int     `json:"activityCount"`
	DurationMinutes float64 `json:"durationMinutes"`
}
