package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Repo  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepo parses "owner/repo".
func ParseRepo(s string) (Repo, error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return Repo{}, fmt.Errorf("invalid repo %q, expected owner/repo", s)
	}
	return Repo{Owner: owner, Repo: repo}, nil
}

// RunnerInfo describes an EC2 runner seen by scale-down. Empty strings and
// the zero LaunchTime mean unknown.
type RunnerInfo struct {
	InstanceID string
	RunnerType string
	Org        string
	Repo       string
	LaunchTime time.Time
}

// RepoDim returns the {Repo, Owner} dimensions of r.
func RepoDim(r Repo) Dimension {
	return Dimension{DimRepo: r.Repo, DimOwner: r.Owner}
}

// OrgDim returns the {Org} dimension.
func OrgDim(org string) Dimension {
	return Dimension{DimOrg: org}
}

// RunnerTypeDim returns the {RunnerType} dimension.
func RunnerTypeDim(runnerType string) Dimension {
	return Dimension{DimRunnerType: runnerType}
}

// withRunnerType returns a copy of dims with the RunnerType dimension added.
func withRunnerType(dims Dimension, runnerType string) Dimension {
	out := make(Dimension, len(dims)+1)
	for k, v := range dims {
		out[k] = v
	}
	out[DimRunnerType] = runnerType
	return out
}
