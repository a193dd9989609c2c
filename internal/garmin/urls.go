// Package garmin is a Garmin Connect API client: SSO login, OAuth token
// exchange, and authenticated wellness-data fetches.
package garmin

import "fmt"

// Domain selects the Garmin Connect region.
type Domain string

const (
	DomainCom Domain = "garmin.com"
	DomainCn  Domain = "garmin.cn"
)

// ParseDomain maps a config string onto a Domain. Unknown values are kept
// verbatim so self-hosted test endpoints work.
func ParseDomain(s string) Domain {
	switch s {
	case "", string(DomainCom):
		return DomainCom
	case string(DomainCn):
		return DomainCn
	default:
		return Domain(s)
	}
}

// URLs provides every Garmin Connect endpoint pulse talks to. The three base
// hosts mirror the Connect system: the modern web frontend, the SSO origin
// and the connectapi gateway.
type URLs struct {
	domain    Domain
	gcModern  string
	ssoOrigin string
	gcAPI     string
}

// NewURLs creates the endpoint map for a domain.
func NewURLs(domain Domain) *URLs {
	d := string(domain)
	return &URLs{
		domain:    domain,
		gcModern:  fmt.Sprintf("https://connect.%s/modern", d),
		ssoOrigin: fmt.Sprintf("https://sso.%s", d),
		gcAPI:     fmt.Sprintf("https://connectapi.%s", d),
	}
}

// Domain returns the configured domain.
func (u *URLs) Domain() Domain { return u.domain }

// Base hosts.

func (u *URLs) GCModern() string  { return u.gcModern }
func (u *URLs) SSOOrigin() string { return u.ssoOrigin }
func (u *URLs) GCAPI() string     { return u.gcAPI }
func (u *URLs) SSO() string       { return u.ssoOrigin + "/sso" }

// SSO endpoints.

func (u *URLs) SSOEmbed() string { return u.ssoOrigin + "/sso/embed" }
func (u *URLs) Signin() string   { return u.SSO() + "/signin" }
func (u *URLs) Login() string    { return u.SSO() + "/login" }

// OAuth endpoints.

func (u *URLs) OAuth() string { return u.gcAPI + "/oauth-service/oauth" }

// OAuth1Preauthorized returns the preauthorized OAuth1 request-token endpoint
// used directly after SSO; ticket and login params are appended by the caller.
func (u *URLs) OAuth1Preauthorized() string {
	return u.OAuth() + "/preauthorized"
}

// OAuth2Exchange trades OAuth1 credentials for an OAuth2 token pair.
func (u *URLs) OAuth2Exchange() string {
	return u.OAuth() + "/exchange/user/2.0"
}

// Profile endpoints.

func (u *URLs) UserSettings() string {
	return u.gcAPI + "/userprofile-service/userprofile/user-settings/"
}

func (u *URLs) UserProfile() string {
	return u.gcAPI + "/userprofile-service/socialProfile"
}

// Wellness endpoints.

func (u *URLs) Activities() string {
	return u.gcAPI + "/activitylist-service/activities/search/activities"
}

func (u *URLs) Activity() string {
	return u.gcAPI + "/activity-service/activity/"
}

func (u *URLs) DailySteps() string {
	return u.gcAPI + "/usersummary-service/stats/steps/daily/"
}

func (u *URLs) DailySleep() string {
	return u.gcAPI + "/sleep-service/sleep/dailySleepData"
}

func (u *URLs) DailyHRV() string {
	return u.gcAPI + "/hrv-service/hrv"
}

func (u *URLs) DailyHeartRate() string {
	return u.gcAPI + "/wellness-service/wellness/dailyHeartRate"
}

// Workout endpoints.

// Workout returns the workout endpoint, optionally addressing a single
// workout by ID.
func (u *URLs) Workout(id string) string {
	if id == "" {
		return u.gcAPI + "/workout-service/workout"
	}
	return fmt.Sprintf("%s/workout-service/workout/%s", u.gcAPI, id)
}

func (u *URLs) Workouts() string {
	return u.gcAPI + "/workout-service/workouts"
}

// Download endpoints.

func (u *URLs) DownloadZip() string {
	return u.gcAPI + "/download-service/files/activity/"
}

func (u *URLs) DownloadGPX() string {
	return u.gcAPI + "/download-service/export/gpx/activity/"
}

func (u *URLs) DownloadTCX() string {
	return u.gcAPI + "/download-service/export/tcx/activity/"
}

func (u *URLs) DownloadKML() string {
	return u.gcAPI + "/download-service/export/kml/activity/"
}
