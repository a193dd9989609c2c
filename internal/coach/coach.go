// Package coach turns a day of biometrics into a deterministic, explainable
// readiness assessment. Scoring starts at 100 and subtracts weighted
// penalties for HRV suppression, sleep debt and elevated training load;
// every deduction is reported as a human-readable factor.
package coach

import (
	"fmt"
	"math"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/metrics"
	"github.com/bernardmuller/pulse/internal/store"
)

// Grade buckets a readiness score.
type Grade string

const (
	GradePrime   Grade = "prime"   // score >= 80
	GradeReady   Grade = "ready"   // score >= 60
	GradeCaution Grade = "caution" // score >= 40
	GradeRecover Grade = "recover" // score < 40
	GradeUnknown Grade = "unknown" // not enough history for a baseline
)

// maxPenaltySDs caps how many standard deviations a single signal can
// contribute, so one outlier night cannot zero the score alone.
const maxPenaltySDs = 3.0

// Factor is one explainable deduction (or observation) in an assessment.
type Factor struct {
	Signal  string  `json:"signal"`
	Detail  string  `json:"detail"`
	Penalty float64 `json:"penalty"`
}

// Assessment is the coaching verdict for one day.
type Assessment struct {
	Date    biometrics.Date `json:"date"`
	Grade   Grade           `json:"grade"`
	Score   int             `json:"score"`
	Factors []Factor        `json:"factors"`
	Advice  string          `json:"advice"`

	HRVBaseline   biometrics.Baseline `json:"hrvBaseline"`
	SleepBaseline biometrics.Baseline `json:"sleepBaseline"`
	LoadBaseline  biometrics.Baseline `json:"loadBaseline"`
}

// Engine scores days against rolling baselines. The same inputs always
// produce the same assessment.
type Engine struct {
	cfg config.CoachConfig
}

// New creates an engine with the given tuning.
func New(cfg config.CoachConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Assess scores one day. The window slices hold the signal values of the
// preceding days (oldest first) and feed the baselines.
func (e *Engine) Assess(rec store.DayRecord, hrvWindow, sleepWindow, loadWindow []float64) Assessment {
	a := Assessment{
		Date:          rec.Date,
		HRVBaseline:   biometrics.ComputeBaseline(hrvWindow, e.cfg.MinBaselineSamples),
		SleepBaseline: biometrics.ComputeBaseline(sleepWindow, e.cfg.MinBaselineSamples),
		LoadBaseline:  biometrics.ComputeBaseline(loadWindow, e.cfg.MinBaselineSamples),
	}

	// HRV is the anchor signal: without a baseline for it there is no
	// meaningful comparison, only noise.
	if rec.HRV == nil || !a.HRVBaseline.Valid {
		a.Grade = GradeUnknown
		a.Advice = adviceFor(GradeUnknown)
		a.Factors = append(a.Factors, Factor{
			Signal: "hrv",
			Detail: fmt.Sprintf("need %d nights of HRV history, have %d", e.cfg.MinBaselineSamples, a.HRVBaseline.Samples),
		})
		metrics.IncAssessment(string(a.Grade))
		return a
	}

	score := 100.0
	score -= e.hrvPenalty(&a, rec.HRV)
	score -= e.sleepPenalty(&a, rec.Sleep)
	score -= e.loadPenalty(&a, rec.Load)

	a.Score = int(math.Round(math.Max(0, math.Min(100, score))))
	a.Grade = gradeFor(a.Score)
	a.Advice = adviceFor(a.Grade)

	metrics.SetReadinessScore(float64(a.Score))
	metrics.IncAssessment(string(a.Grade))
	logger := log.WithComponent("coach")
	logger.Debug().
		Str(log.FieldDay, string(a.Date)).
		Str(log.FieldGrade, string(a.Grade)).
		Int(log.FieldScore, a.Score).
		Msg("assessment computed")
	return a
}

func (e *Engine) hrvPenalty(a *Assessment, hrv *biometrics.DailyHRV) float64 {
	z := a.HRVBaseline.ZScore(hrv.OvernightAvg)
	if z >= 0 {
		a.Factors = append(a.Factors, Factor{
			Signal: "hrv",
			Detail: fmt.Sprintf("overnight HRV %.0f ms at or above your %.0f ms baseline", hrv.OvernightAvg, a.HRVBaseline.Mean),
		})
		return 0
	}

	deficit := math.Min(-z, maxPenaltySDs)
	penalty := deficit * e.cfg.HRVPenaltyWeight
	a.Factors = append(a.Factors, Factor{
		Signal:  "hrv",
		Detail:  fmt.Sprintf("overnight HRV %.0f ms is %.1f SD below your %.0f ms baseline", hrv.OvernightAvg, -z, a.HRVBaseline.Mean),
		Penalty: penalty,
	})
	return penalty
}

func (e *Engine) sleepPenalty(a *Assessment, sleep *biometrics.DailySleep) float64 {
	if sleep == nil {
		a.Factors = append(a.Factors, Factor{
			Signal: "sleep",
			Detail: "no sleep recorded for this night",
		})
		return 0
	}

	deficit := e.cfg.SleepTargetHours - sleep.Hours()
	if deficit <= 0 {
		a.Factors = append(a.Factors, Factor{
			Signal: "sleep",
			Detail: fmt.Sprintf("slept %.1f h, meeting the %.1f h target", sleep.Hours(), e.cfg.SleepTargetHours),
		})
		return 0
	}

	penalty := deficit * e.cfg.SleepPenaltyWeight
	a.Factors = append(a.Factors, Factor{
		Signal:  "sleep",
		Detail:  fmt.Sprintf("slept %.1f h, %.1f h short of the %.1f h target", sleep.Hours(), deficit, e.cfg.SleepTargetHours),
		Penalty: penalty,
	})
	return penalty
}

func (e *Engine) loadPenalty(a *Assessment, load *biometrics.DailyLoad) float64 {
	if load == nil || !a.LoadBaseline.Valid {
		return 0
	}

	z := a.LoadBaseline.ZScore(load.TrainingLoad)
	// Load only penalizes when clearly above the athlete's own norm.
	if z <= 1 {
		return 0
	}

	excess := math.Min(z-1, maxPenaltySDs)
	penalty := excess * e.cfg.LoadPenaltyWeight
	a.Factors = append(a.Factors, Factor{
		Signal:  "load",
		Detail:  fmt.Sprintf("training load %.0f is %.1f SD above your %.0f baseline", load.TrainingLoad, z, a.LoadBaseline.Mean),
		Penalty: penalty,
	})
	return penalty
}

func gradeFor(score int) Grade {
	switch {
	case score >= 80:
		return GradePrime
	case score >= 60:
		return GradeReady
	case score >= 40:
		return GradeCaution
	default:
		return GradeRecover
	}
}

func adviceFor(grade Grade) string {
	switch grade {
	case GradePrime:
		return "Fully recovered. A hard session or a key workout fits today."
	case GradeReady:
		return "Good to train. Keep intensity moderate and stop if form degrades."
	case GradeCaution:
		return "Recovery is lagging. Prefer an easy session and prioritize sleep tonight."
	case GradeRecover:
		return "Your body is asking for rest. Take a recovery day."
	default:
		return "Not enough history yet. Keep syncing; a baseline needs a few nights of data."
	}
}
