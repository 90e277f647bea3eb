package config

import (
	"time"

	"fyne.io/fyne/v2"
)

// Preference keys for application-wide settings
const (
	AppUpdateCheckEnabledKey = "app_update_check_enabled"
	AppUserAgentKey          = "app_user_agent"
	AppRequestTimeoutKey     = "app_request_timeout_seconds"
	AppHostRateKey           = "app_host_requests_per_second"
	AppFavoritesLimitKey     = "app_favorites_limit"
)

// Defaults for application-wide settings
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultHostRate        = 2.0
	DefaultFavoritesLimit  = 200
	minRequestTimeoutInSec = 5
)

// AppConfig holds the application-wide configuration
type AppConfig struct {
	prefs fyne.Preferences
}

// NewAppConfig creates a new AppConfig instance
func NewAppConfig(p fyne.Preferences) *AppConfig {
	return &AppConfig{prefs: p}
}

// GetUpdateCheckEnabled returns whether the application should check for updates
func (c *AppConfig) GetUpdateCheckEnabled() bool {
	return c.prefs.BoolWithFallback(AppUpdateCheckEnabledKey, true)
}

// SetUpdateCheckEnabled sets whether the application should check for updates
func (c *AppConfig) SetUpdateCheckEnabled(enabled bool) {
	c.prefs.SetBool(AppUpdateCheckEnabledKey, enabled)
}

// GetUserAgent returns the User-Agent sent with every outgoing request.
func (c *AppConfig) GetUserAgent() string {
	return c.prefs.StringWithFallback(AppUserAgentKey, AppName+"/"+AppVersion)
}

// SetUserAgent overrides the outgoing User-Agent.
func (c *AppConfig) SetUserAgent(ua string) {
	c.prefs.SetString(AppUserAgentKey, ua)
}

// GetRequestTimeout returns the total time limit for a single HTTP request.
// Values below five seconds fall back to the default.
func (c *AppConfig) GetRequestTimeout() time.Duration {
	secs := c.prefs.IntWithFallback(AppRequestTimeoutKey, int(DefaultRequestTimeout/time.Second))
	if secs < minRequestTimeoutInSec {
		return DefaultRequestTimeout
	}
	return time.Duration(secs) * time.Second
}

// SetRequestTimeout sets the request timeout, rounded down to whole seconds.
func (c *AppConfig) SetRequestTimeout(d time.Duration) {
	c.prefs.SetInt(AppRequestTimeoutKey, int(d/time.Second))
}

// GetHostRate returns the allowed requests per second against a single API host.
func (c *AppConfig) GetHostRate() float64 {
	r := c.prefs.FloatWithFallback(AppHostRateKey, DefaultHostRate)
	if r <= 0 {
		return DefaultHostRate
	}
	return r
}

// SetHostRate sets the allowed requests per second against a single API host.
func (c *AppConfig) SetHostRate(r float64) {
	c.prefs.SetFloat(AppHostRateKey, r)
}

// GetFavoritesLimit returns the maximum number of favorites kept; 0 means unlimited.
func (c *AppConfig) GetFavoritesLimit() int {
	n := c.prefs.IntWithFallback(AppFavoritesLimitKey, DefaultFavoritesLimit)
	if n < 0 {
		return 0
	}
	return n
}

// SetFavoritesLimit sets the maximum number of favorites kept.
func (c *AppConfig) SetFavoritesLimit(n int) {
	c.prefs.SetInt(AppFavoritesLimitKey, n)
}
