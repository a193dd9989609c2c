package biometrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/bernardmuller/pulse/internal/garmin"
)

// NormalizeHRV converts the hrv-service envelope to a daily record. A summary
// without a last-night average means the watch recorded nothing.
func NormalizeHRV(data garmin.HRVData) (DailyHRV, error) {
	s := data.HRVSummary
	if s.CalendarDate == "" || s.LastNightAvg <= 0 {
		return DailyHRV{}, fmt.Errorf("hrv: %w", ErrNoData)
	}
	date, err := ParseDate(s.CalendarDate)
	if err != nil {
		return DailyHRV{}, err
	}
	return DailyHRV{
		Date:         date,
		OvernightAvg: float64(s.LastNightAvg),
		WeeklyAvg:    float64(s.WeeklyAvg),
		HighFiveMin:  float64(s.LastNight5MinHigh),
		Status:       strings.ToLower(s.Status),
	}, nil
}

// NormalizeSleep converts a dailySleepData envelope to minutes-based stages.
func NormalizeSleep(data garmin.SleepData) (DailySleep, error) {
	dto := data.DailySleepDTO
	if dto.CalendarDate == "" || dto.SleepTimeSeconds <= 0 {
		return DailySleep{}, fmt.Errorf("sleep: %w", ErrNoData)
	}
	date, err := ParseDate(dto.CalendarDate)
	if err != nil {
		return DailySleep{}, err
	}
	return DailySleep{
		Date:         date,
		TotalMinutes: dto.SleepTimeSeconds / 60,
		DeepMinutes:  dto.DeepSleepSeconds / 60,
		RemMinutes:   dto.RemSleepSeconds / 60,
		LightMinutes: dto.LightSleepSeconds / 60,
		AwakeMinutes: dto.AwakeSleepSeconds / 60,
		Score:        dto.SleepScores.Overall.Value,
	}, nil
}

// NormalizeSteps converts one usersummary row. Zero steps is a valid day
// (watch not worn is indistinguishable from a rest day at this level).
func NormalizeSteps(entry garmin.DailyStepsEntry) (DailySteps, error) {
	if entry.CalendarDate == "" {
		return DailySteps{}, fmt.Errorf("steps: %w", ErrNoData)
	}
	date, err := ParseDate(entry.CalendarDate)
	if err != nil {
		return DailySteps{}, err
	}
	return DailySteps{
		Date:           date,
		Steps:          entry.TotalSteps,
		Goal:           entry.StepGoal,
		DistanceMeters: entry.TotalDistance,
	}, nil
}

// AggregateLoad sums the training load of all activities started on the given
// day. Days without activities yield a zero-load record, not an error.
func AggregateLoad(day Date, activities []garmin.Activity) DailyLoad {
	load := DailyLoad{Date: day}
	for _, a := range activities {
		start, err := time.Parse("2006-01-02 15:04:05", a.StartTimeLocal)
		if err != nil || DateOf(start) != day {
			continue
		}
		load.TrainingLoad += a.TrainingLoad
		load.DurationMinutes += a.DurationSeconds / 60
		load.ActivityCount++
	}
	return load
}
