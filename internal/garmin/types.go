package garmin

import "time"

// Wire DTOs for the Connect API responses pulse consumes. Field sets are
// trimmed to what the normalization layer reads.

// SleepData is the dailySleepData envelope.
type SleepData struct {
	DailySleepDTO DailySleepDTO `json:"dailySleepDTO"`
}

// DailySleepDTO carries one night of sleep stages.
type DailySleepDTO struct {
	CalendarDate      string      `json:"calendarDate"`
	SleepTimeSeconds  int         `json:"sleepTimeSeconds"`
	DeepSleepSeconds  int         `json:"deepSleepSeconds"`
	RemSleepSeconds   int         `json:"remSleepSeconds"`
	LightSleepSeconds int         `json:"lightSleepSeconds"`
	AwakeSleepSeconds int         `json:"awakeSleepSeconds"`
	SleepScores       SleepScores `json:"sleepScores"`
}

// SleepScores holds the overall sleep quality score.
type SleepScores struct {
	Overall SleepScoreValue `json:"overall"`
}

type SleepScoreValue struct {
	Value int `json:"value"`
}

// HRVData is the hrv-service daily envelope.
type HRVData struct {
	HRVSummary HRVSummary `json:"hrvSummary"`
}

// HRVSummary carries overnight heart-rate variability in milliseconds.
type HRVSummary struct {
	CalendarDate      string `json:"calendarDate"`
	WeeklyAvg         int    `json:"weeklyAvg"`
	LastNightAvg      int    `json:"lastNightAvg"`
	LastNight5MinHigh int    `json:"lastNight5MinHigh"`
	Status            string `json:"status"`
}

// DailyStepsEntry is one row of the usersummary daily steps response.
type DailyStepsEntry struct {
	CalendarDate  string  `json:"calendarDate"`
	TotalSteps    int     `json:"totalSteps"`
	StepGoal      int     `json:"stepGoal"`
	TotalDistance float64 `json:"totalDistance"`
}

// Activity is one row of the activities search response.
type Activity struct {
	ActivityID      int64   `json:"activityId"`
	ActivityName    string  `json:"activityName"`
	StartTimeLocal  string  `json:"startTimeLocal"`
	DurationSeconds float64 `json:"duration"`
	TrainingLoad    float64 `json:"activityTrainingLoad"`
}

// SocialProfile is the connect user profile.
type SocialProfile struct {
	DisplayName string `json:"displayName"`
	FullName    string `json:"fullName"`
}

// oauth2Response is the token exchange wire format.
type oauth2Response struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
}

// TokenSet is the full credential material for a Connect session.
type TokenSet struct {
	OAuth1Token   string
	OAuth1Secret  string
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// AccessValid reports whether the OAuth2 access token is usable, with
// headroom so a token never expires mid-request.
func (t TokenSet) AccessValid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(5*time.Minute).Before(t.AccessExpiry)
}

// RefreshValid reports whether the OAuth1 pair can still mint access tokens.
func (t TokenSet) RefreshValid(now time.Time) bool {
	return t.OAuth1Token != "" && t.OAuth1Secret != "" &&
		(t.RefreshExpiry.IsZero() || now.Before(t.RefreshExpiry))
}

// TokenStore persists refreshed tokens. The vault implements this via an
// adapter in cmd/pulse.
type TokenStore interface {
	Tokens() (TokenSet, error)
	Persist(TokenSet) error
}
