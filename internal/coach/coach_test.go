package coach

import (
	"strings"
	"testing"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/store"
)

func testEngine() *Engine {
	return New(config.CoachConfig{
		SleepTargetHours:   8.0,
		HRVPenaltyWeight:   12,
		SleepPenaltyWeight: 8,
		LoadPenaltyWeight:  6,
		MinBaselineSamples: 3,
	})
}

func dayWith(hrv float64, sleepMin int, load float64) store.DayRecord {
	d := biometrics.Date("2026-08-31")
	return store.DayRecord{
		Date:  d,
		HRV:   &biometrics.DailyHRV{Date: d, OvernightAvg: hrv},
		Sleep: &biometrics.DailySleep{Date: d, TotalMinutes: sleepMin},
		Load:  &biometrics.DailyLoad{Date: d, TrainingLoad: load},
	}
}

// Steady week: HRV around 50, 8h sleep, load around 100.
var (
	steadyHRV   = []float64{48, 50, 52, 49, 51, 50, 50}
	steadySleep = []float64{480, 475, 490, 480, 485, 480, 470}
	steadyLoad  = []float64{100, 110, 90, 105, 95, 100, 100}
)

func TestAssessPrimeDay(t *testing.T) {
	e := testEngine()

	a := e.Assess(dayWith(52, 8*60, 100), steadyHRV, steadySleep, steadyLoad)
	if a.Grade != GradePrime {
		t.Fatalf("grade = %s (score %d), want prime", a.Grade, a.Score)
	}
	if a.Score != 100 {
		t.Errorf("score = %d, want 100", a.Score)
	}
	for _, f := range a.Factors {
		if f.Penalty != 0 {
			t.Errorf("unexpected penalty: %+v", f)
		}
	}
}

func TestAssessSuppressedHRV(t *testing.T) {
	e := testEngine()

	// ~50 baseline with small variance; 40 is far below.
	a := e.Assess(dayWith(40, 8*60, 100), steadyHRV, steadySleep, steadyLoad)
	if a.Score >= 80 {
		t.Fatalf("score = %d, suppressed HRV should cost points", a.Score)
	}

	var hrvFactor *Factor
	for i := range a.Factors {
		if a.Factors[i].Signal == "hrv" {
			hrvFactor = &a.Factors[i]
		}
	}
	if hrvFactor == nil || hrvFactor.Penalty <= 0 {
		t.Fatalf("missing hrv penalty factor: %+v", a.Factors)
	}
	if !strings.Contains(hrvFactor.Detail, "below") {
		t.Errorf("detail should explain the deficit: %q", hrvFactor.Detail)
	}
}

func TestAssessSleepDebt(t *testing.T) {
	e := testEngine()

	// 5h sleep: 3h short of target at weight 8 = 24 points.
	a := e.Assess(dayWith(50, 5*60, 100), steadyHRV, steadySleep, steadyLoad)
	if a.Score != 76 {
		t.Errorf("score = %d, want 76", a.Score)
	}
	if a.Grade != GradeReady {
		t.Errorf("grade = %s, want ready", a.Grade)
	}
}

func TestAssessElevatedLoad(t *testing.T) {
	e := testEngine()

	// Load baseline mean 100 with small variance; 300 is several SDs up.
	a := e.Assess(dayWith(50, 8*60, 300), steadyHRV, steadySleep, steadyLoad)
	if a.Score >= 100 {
		t.Fatalf("score = %d, elevated load should cost points", a.Score)
	}
	found := false
	for _, f := range a.Factors {
		if f.Signal == "load" && f.Penalty > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("missing load factor: %+v", a.Factors)
	}
}

func TestAssessStackedPenaltiesFloorAtZero(t *testing.T) {
	e := testEngine()

	a := e.Assess(dayWith(20, 0, 500), steadyHRV, steadySleep, steadyLoad)
	if a.Score < 0 {
		t.Fatalf("score = %d, must not go negative", a.Score)
	}
	if a.Grade != GradeRecover {
		t.Errorf("grade = %s, want recover", a.Grade)
	}
}

func TestAssessUnknownWithoutBaseline(t *testing.T) {
	e := testEngine()

	a := e.Assess(dayWith(50, 8*60, 100), []float64{48, 50}, steadySleep, steadyLoad)
	if a.Grade != GradeUnknown {
		t.Fatalf("grade = %s, want unknown with 2 HRV samples", a.Grade)
	}
	if len(a.Factors) == 0 || !strings.Contains(a.Factors[0].Detail, "history") {
		t.Errorf("unknown grade should explain itself: %+v", a.Factors)
	}
}

func TestAssessUnknownWithoutHRVSignal(t *testing.T) {
	e := testEngine()

	rec := dayWith(50, 8*60, 100)
	rec.HRV = nil
	a := e.Assess(rec, steadyHRV, steadySleep, steadyLoad)
	if a.Grade != GradeUnknown {
		t.Fatalf("grade = %s, want unknown without HRV", a.Grade)
	}
}

func TestAssessMissingSleepIsObservedNotPenalized(t *testing.T) {
	e := testEngine()

	rec := dayWith(50, 0, 100)
	rec.Sleep = nil
	a := e.Assess(rec, steadyHRV, steadySleep, steadyLoad)
	if a.Score != 100 {
		t.Errorf("score = %d; absent data must not be punished", a.Score)
	}
	found := false
	for _, f := range a.Factors {
		if f.Signal == "sleep" && strings.Contains(f.Detail, "no sleep recorded") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing sleep should still be surfaced: %+v", a.Factors)
	}
}

func TestAssessDeterministic(t *testing.T) {
	e := testEngine()

	rec := dayWith(44, 6*60+30, 180)
	a1 := e.Assess(rec, steadyHRV, steadySleep, steadyLoad)
	a2 := e.Assess(rec, steadyHRV, steadySleep, steadyLoad)
	if a1.Score != a2.Score || a1.Grade != a2.Grade || len(a1.Factors) != len(a2.Factors) {
		t.Errorf("assessments differ: %+v vs %+v", a1, a2)
	}
}

func TestGradeBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Grade
	}{
		{100, GradePrime}, {80, GradePrime},
		{79, GradeReady}, {60, GradeReady},
		{59, GradeCaution}, {40, GradeCaution},
		{39, GradeRecover}, {0, GradeRecover},
	}
	for _, tc := range cases {
		if got := gradeFor(tc.score); got != tc.want {
			t.Errorf("gradeFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestAdviceCoversEveryGrade(t *testing.T) {
	for _, g := range []Grade{GradePrime, GradeReady, GradeCaution, GradeRecover, GradeUnknown} {
		if adviceFor(g) == "" {
			t.Errorf("no advice for %s", g)
		}
	}
}
