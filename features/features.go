// Package features exposes build-time switches. Binaries are built with
//
//	-ldflags "-X bookgate/features.BuildMode=demo -X bookgate/features.BuildFeatures=metrics,caching"
//
// and the rest of the tree asks this package instead of reading the variables.
package features

import (
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Build-time variables set via ldflags
var (
	// BuildMode is demo, production or development
	BuildMode = "production"

	// BuildFeatures is a comma-separated list of enabled features
	BuildFeatures = ""

	BuildVersion = "dev"
	BuildTime    = "unknown"
)

// Feature names
const (
	FeatureFullLogging   = "full-logging"
	FeatureMetrics       = "metrics"
	FeatureObservability = "observability"
	FeatureRateLimiting  = "rate-limiting"
	FeatureShortTimeouts = "short-timeouts"
	// FeatureCaching allows the trial slice cache to be configured
	FeatureCaching = "caching"
)

// Known lists every feature name this build understands
var Known = []string{
	FeatureFullLogging,
	FeatureMetrics,
	FeatureObservability,
	FeatureRateLimiting,
	FeatureShortTimeouts,
	FeatureCaching,
}

var (
	parsedFrom string
	enabledSet map[string]bool
	setMu      sync.RWMutex
)

// enabled parses BuildFeatures lazily and again whenever it changes
func enabled() map[string]bool {
	setMu.RLock()
	if enabledSet != nil && parsedFrom == BuildFeatures {
		s := enabledSet
		setMu.RUnlock()
		return s
	}
	setMu.RUnlock()

	setMu.Lock()
	defer setMu.Unlock()
	enabledSet = lo.SliceToMap(GetEnabledFeatures(), func(f string) (string, bool) {
		return f, true
	})
	parsedFrom = BuildFeatures
	return enabledSet
}

// IsEnabled checks if a feature is enabled based on build-time flags
func IsEnabled(feature string) bool {
	return enabled()[feature]
}

// IsDemoMode returns true if the build is in demo mode
func IsDemoMode() bool {
	return strings.EqualFold(BuildMode, "demo")
}

// IsProductionMode returns true if the build is in production mode
func IsProductionMode() bool {
	return strings.EqualFold(BuildMode, "production")
}

// IsDevelopmentMode returns true if the build is in development mode
func IsDevelopmentMode() bool {
	return strings.EqualFold(BuildMode, "development")
}

// GetEnabledFeatures returns the trimmed, de-duplicated feature list
func GetEnabledFeatures() []string {
	if BuildFeatures == "" {
		return []string{}
	}
	parts := lo.Map(strings.Split(BuildFeatures, ","), func(f string, _ int) string {
		return strings.TrimSpace(f)
	})
	return lo.Uniq(lo.Compact(parts))
}

// UnknownFeatures returns enabled names this build does not recognize
func UnknownFeatures() []string {
	return lo.Without(GetEnabledFeatures(), Known...)
}

// ShouldEnableFullLogging is true unless a demo build left full-logging off
func ShouldEnableFullLogging() bool {
	return IsEnabled(FeatureFullLogging) || !IsDemoMode()
}

func ShouldEnableMetrics() bool {
	return IsEnabled(FeatureMetrics)
}

func ShouldEnableObservability() bool {
	return IsEnabled(FeatureObservability)
}

func ShouldEnableRateLimiting() bool {
	return IsEnabled(FeatureRateLimiting)
}

// ShouldUseShortTimeouts is true for demo builds and when short-timeouts is set
func ShouldUseShortTimeouts() bool {
	return IsEnabled(FeatureShortTimeouts) || IsDemoMode()
}

func ShouldEnableCaching() bool {
	return IsEnabled(FeatureCaching)
}

// GetBuildInfo returns build information as a map
func GetBuildInfo() map[string]string {
	return map[string]string{
		"mode":      BuildMode,
		"version":   BuildVersion,
		"buildTime": BuildTime,
		"features":  BuildFeatures,
	}
}
