package metrics

import "github.com/linchenxuan/runnermetrics/log"

// ScaleDownMetrics records the metrics of one scale-down run.
type ScaleDownMetrics struct {
	*Aggregator
}

// NewScaleDownMetrics creates the scale-down flavor of the aggregator.
func NewScaleDownMetrics(emitter *Emitter, cfg *AggregatorCfg) *ScaleDownMetrics {
	return &ScaleDownMetrics{Aggregator: NewAggregator(ComponentScaleDown, emitter, cfg)}
}

// Run counts a scale-down run.
func (m *ScaleDownMetrics) Run() {
	m.mustCount("run.count", 1, nil)
}

// Exception counts an unexpected error during the run.
func (m *ScaleDownMetrics) Exception() {
	m.mustCount("run.exceptions_count", 1, nil)
}

// RunnerLessMinimumTime counts a runner too young to be removed.
func (m *ScaleDownMetrics) RunnerLessMinimumTime(r RunnerInfo) {
	m.countGlobalAndType("run.ec2runners", ".notMinTime", r)
}

// RunnerIsRemovable counts a runner eligible for removal.
func (m *ScaleDownMetrics) RunnerIsRemovable(r RunnerInfo) {
	m.countGlobalAndType("run.ec2runners", ".removable", r)
}

// RunnerFound counts an EC2 runner and, when its launch time is known,
// records its age in seconds.
func (m *ScaleDownMetrics) RunnerFound(r RunnerInfo) {
	m.countGlobalAndType("run.ec2runners", ".total", r)
	if r.LaunchTime.IsZero() {
		return
	}
	m.mu.Lock()
	now := m.now()
	m.mu.Unlock()
	age := Value(now.Sub(r.LaunchTime).Seconds())
	m.mustAdd("run.ec2runners"+SuffixRunningWallclock, age, nil)
	if r.RunnerType != "" {
		m.mustAdd("run.ec2runners.perRunnerType"+SuffixRunningWallclock, age, RunnerTypeDim(r.RunnerType))
	}
}

func (m *ScaleDownMetrics) countGlobalAndType(prefix, suffix string, r RunnerInfo) {
	m.mustCount(prefix+suffix, 1, nil)
	if r.RunnerType != "" {
		m.mustCount(prefix+".perRunnerType"+suffix, 1, RunnerTypeDim(r.RunnerType))
	}
}

// RunnerGhFoundBusyRepo counts a repo runner that GitHub reports busy.
func (m *ScaleDownMetrics) RunnerGhFoundBusyRepo(repo Repo, r RunnerInfo) {
	m.ghLookup("perRepo", RepoDim(repo), r, ".found", ".busy")
}

// RunnerGhFoundNonBusyRepo counts a repo runner that GitHub reports idle.
func (m *ScaleDownMetrics) RunnerGhFoundNonBusyRepo(repo Repo, r RunnerInfo) {
	m.ghLookup("perRepo", RepoDim(repo), r, ".found", ".free")
}

// RunnerGhNotFoundRepo counts a repo runner unknown to GitHub.
func (m *ScaleDownMetrics) RunnerGhNotFoundRepo(repo Repo, r RunnerInfo) {
	m.ghLookup("perRepo", RepoDim(repo), r, ".notFound")
}

// RunnerGhFoundBusyOrg counts an org runner that GitHub reports busy.
func (m *ScaleDownMetrics) RunnerGhFoundBusyOrg(org string, r RunnerInfo) {
	m.ghLookup("perOrg", OrgDim(org), r, ".found", ".busy")
}

// RunnerGhFoundNonBusyOrg counts an org runner that GitHub reports idle.
func (m *ScaleDownMetrics) RunnerGhFoundNonBusyOrg(org string, r RunnerInfo) {
	m.ghLookup("perOrg", OrgDim(org), r, ".found", ".free")
}

// RunnerGhNotFoundOrg counts an org runner unknown to GitHub.
func (m *ScaleDownMetrics) RunnerGhNotFoundOrg(org string, r RunnerInfo) {
	m.ghLookup("perOrg", OrgDim(org), r, ".notFound")
}

// ghLookup counts run.ec2runners.<scope>.total plus each suffix with dims and,
// when the runner type is known, the same under <scope>.perRunnerType and
// run.ec2runners.perRunnerType.
func (m *ScaleDownMetrics) ghLookup(scope string, dims Dimension, r RunnerInfo, suffixes ...string) {
	m.countScoped("run.ec2runners", scope, ".total", dims, r.RunnerType, suffixes)
}

// RunnerGhTerminateSuccessOrg counts an org runner removed from GitHub.
func (m *ScaleDownMetrics) RunnerGhTerminateSuccessOrg(org string, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perOrg", ".total", OrgDim(org), r.RunnerType, []string{".terminate.success"})
}

// RunnerGhTerminateSuccessRepo counts a repo runner removed from GitHub.
func (m *ScaleDownMetrics) RunnerGhTerminateSuccessRepo(repo Repo, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perRepo", ".total", RepoDim(repo), r.RunnerType, []string{".terminate.success"})
}

// RunnerGhTerminateFailureOrg counts an org runner GitHub failed to remove.
func (m *ScaleDownMetrics) RunnerGhTerminateFailureOrg(org string, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perOrg", ".total", OrgDim(org), r.RunnerType, []string{".terminate.failure"})
}

// RunnerGhTerminateFailureRepo counts a repo runner GitHub failed to remove.
func (m *ScaleDownMetrics) RunnerGhTerminateFailureRepo(repo Repo, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perRepo", ".total", RepoDim(repo), r.RunnerType, []string{".terminate.failure"})
}

// RunnerGhTerminateNotFoundOrg counts an org runner already gone from GitHub.
func (m *ScaleDownMetrics) RunnerGhTerminateNotFoundOrg(org string, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perOrg", ".total", OrgDim(org), r.RunnerType, []string{".terminate.notfound"})
}

// RunnerGhTerminateNotFoundRepo counts a repo runner already gone from GitHub.
func (m *ScaleDownMetrics) RunnerGhTerminateNotFoundRepo(repo Repo, r RunnerInfo) {
	m.countScoped("run.ghRunner", "perRepo", ".total", RepoDim(repo), r.RunnerType, []string{".terminate.notfound"})
}

func (m *ScaleDownMetrics) countScoped(prefix, scope, total string, dims Dimension, runnerType string, suffixes []string) {
	base := prefix + "." + scope
	m.mustCount(base+total, 1, dims)
	for _, s := range suffixes {
		m.mustCount(base+s, 1, dims)
	}
	if runnerType == "" {
		return
	}

	typed := withRunnerType(dims, runnerType)
	m.mustCount(base+".perRunnerType"+total, 1, typed)
	for _, s := range suffixes {
		m.mustCount(base+".perRunnerType"+s, 1, typed)
	}

	typeOnly := RunnerTypeDim(runnerType)
	m.mustCount(prefix+".perRunnerType"+total, 1, typeOnly)
	for _, s := range suffixes {
		m.mustCount(prefix+".perRunnerType"+s, 1, typeOnly)
	}
}

// RunnerTerminateSuccess counts an EC2 runner terminated.
func (m *ScaleDownMetrics) RunnerTerminateSuccess(r RunnerInfo) {
	m.runnerTerminate(r, ".success")
}

// RunnerTerminateFailure counts an EC2 runner that failed to terminate.
func (m *ScaleDownMetrics) RunnerTerminateFailure(r RunnerInfo) {
	m.runnerTerminate(r, ".failure")
}

// RunnerTerminateSkipped counts an EC2 runner left running on purpose.
func (m *ScaleDownMetrics) RunnerTerminateSkipped(r RunnerInfo) {
	m.runnerTerminate(r, ".skipped")
}

func (m *ScaleDownMetrics) runnerTerminate(r RunnerInfo, outcome string) {
	m.mustCount("run.ec2Runners.terminate.total", 1, nil)
	m.mustCount("run.ec2Runners.terminate"+outcome, 1, nil)

	if r.RunnerType != "" {
		dims := RunnerTypeDim(r.RunnerType)
		m.mustCount("run.ec2runners.perRunnerType.terminate.total", 1, dims)
		m.mustCount("run.ec2runners.perRunnerType.terminate"+outcome, 1, dims)
	}
	if r.Org != "" {
		m.terminateScoped("perOrg", OrgDim(r.Org), r.RunnerType, outcome)
	}
	if r.Repo != "" {
		repo, err := ParseRepo(r.Repo)
		if err != nil {
			log.Warn().Err(err).Str("instance", r.InstanceID).Msg("skip per repo terminate metrics")
			return
		}
		m.terminateScoped("perRepo", RepoDim(repo), r.RunnerType, outcome)
	}
}

func (m *ScaleDownMetrics) terminateScoped(scope string, dims Dimension, runnerType, outcome string) {
	base := "run.ec2runners." + scope
	m.mustCount(base+".terminate.total", 1, dims)
	m.mustCount(base+".terminate"+outcome, 1, dims)
	if runnerType != "" {
		typed := withRunnerType(dims, runnerType)
		m.mustCount(base+".perRunnerType.terminate.total", 1, typed)
		m.mustCount(base+".perRunnerType.terminate"+outcome, 1, typed)
	}
}
