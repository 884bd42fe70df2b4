// Package metrics aggregates per-run metric observations into value histograms
// and emits them to a metrics backend in size-bounded batches.
package metrics

import "strings"

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs.
// The set of keys used with a metric name is fixed on first use.
type Dimension map[string]string

// Unit is the backend unit attached to every datum of a metric.
type Unit string

const (
	UnitCount        Unit = "Count"
	UnitMilliseconds Unit = "Milliseconds"
	UnitSeconds      Unit = "Seconds"
)

const (
	// SuffixWallclock marks a metric holding elapsed milliseconds.
	SuffixWallclock = ".wallclock"
	// SuffixRunningWallclock marks a metric holding elapsed seconds.
	SuffixRunningWallclock = ".runningWallclock"
)

// unitBySuffix resolves the unit of a metric from its name alone.
func unitBySuffix(name string) Unit {
	switch {
	case strings.HasSuffix(name, SuffixWallclock):
		return UnitMilliseconds
	case strings.HasSuffix(name, SuffixRunningWallclock):
		return UnitSeconds
	}
	return UnitCount
}

// Components, used as the middle part of the namespace.
const (
	ComponentScaleUp   = "scaleUp"
	ComponentScaleDown = "scaleDown"
)

// Dimension names, must be prefixed with Dim.
const (
	DimRepo       = "Repo"
	DimOwner      = "Owner"
	DimOrg        = "Org"
	DimRunnerType = "RunnerType"
)

// Run level metric names shared by every component.
const (
	// NameGHCallsTotal counts every GitHub API call, successful or not.
	NameGHCallsTotal = "gh.calls.total"
	// NameAWSCallsTotal counts every AWS API call, successful or not.
	NameAWSCallsTotal = "aws.calls.total"

	NameGetRunnerTypesSuccess = "run.getRunnerTypes.success"
	NameGetRunnerTypesFailure = "run.getRunnerTypes.failure"

	// NameRunTimeout is recorded once when the run is about to hit its deadline.
	NameRunTimeout = "run.timeout"
)
