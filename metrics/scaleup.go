package metrics

// ScaleUpMetrics records the metrics of one scale-up run.
type ScaleUpMetrics struct {
	*Aggregator
}

// NewScaleUpMetrics creates the scale-up flavor of the aggregator.
func NewScaleUpMetrics(emitter *Emitter, cfg *AggregatorCfg) *ScaleUpMetrics {
	return &ScaleUpMetrics{Aggregator: NewAggregator(ComponentScaleUp, emitter, cfg)}
}

// RunRepo counts a repository processed by the run.
func (m *ScaleUpMetrics) RunRepo(repo Repo) {
	m.mustCount("run.process", 1, RepoDim(repo))
}

// SkipRepo counts a repository skipped by the run.
func (m *ScaleUpMetrics) SkipRepo(repo Repo) {
	m.mustCount("run.skip", 1, RepoDim(repo))
}

// GHRunnersRepoStats records the GitHub runner population of a repository.
func (m *ScaleUpMetrics) GHRunnersRepoStats(repo Repo, runnerType string, total, labeled, busy int) {
	m.ghRunnersStats("run.ghrunners.perRepo", RepoDim(repo), runnerType, total, labeled, busy)
}

// GHRunnersOrgStats records the GitHub runner population of an organization.
func (m *ScaleUpMetrics) GHRunnersOrgStats(org, runnerType string, total, labeled, busy int) {
	m.ghRunnersStats("run.ghrunners.perOrg", OrgDim(org), runnerType, total, labeled, busy)
}

func (m *ScaleUpMetrics) ghRunnersStats(prefix string, dims Dimension, runnerType string, total, labeled, busy int) {
	available := Value(labeled - busy)
	m.mustCount(prefix+".total", Value(total), dims)
	m.mustCount(prefix+".busy", Value(busy), dims)
	m.mustCount(prefix+".available", available, dims)

	typed := withRunnerType(dims, runnerType)
	m.mustAdd(prefix+".perRunnerType.total", Value(labeled), typed)
	m.mustAdd(prefix+".perRunnerType.busy", Value(busy), typed)
	m.mustAdd(prefix+".perRunnerType.available", available, typed)
}

// GHRunnersRepoMaxHit counts a repository that reached its runner maximum.
func (m *ScaleUpMetrics) GHRunnersRepoMaxHit(repo Repo, runnerType string) {
	m.countWithType("run.ghrunners.perRepo", ".maxHit", RepoDim(repo), runnerType)
}

// GHRunnersOrgMaxHit counts an organization that reached its runner maximum.
func (m *ScaleUpMetrics) GHRunnersOrgMaxHit(org, runnerType string) {
	m.countWithType("run.ghrunners.perOrg", ".maxHit", OrgDim(org), runnerType)
}

// RunnersRepoCreate counts a runner created for a repository.
func (m *ScaleUpMetrics) RunnersRepoCreate(repo Repo, runnerType string) {
	m.runnersCreate("run.runners.perRepo", RepoDim(repo), runnerType, ".create.success")
}

// RunnersOrgCreate counts a runner created for an organization.
func (m *ScaleUpMetrics) RunnersOrgCreate(org, runnerType string) {
	m.runnersCreate("run.runners.perOrg", OrgDim(org), runnerType, ".create.success")
}

// RunnersRepoCreateFail counts a failed runner creation for a repository.
func (m *ScaleUpMetrics) RunnersRepoCreateFail(repo Repo, runnerType string) {
	m.runnersCreate("run.runners.perRepo", RepoDim(repo), runnerType, ".create.fail")
}

// RunnersOrgCreateFail counts a failed runner creation for an organization.
func (m *ScaleUpMetrics) RunnersOrgCreateFail(org, runnerType string) {
	m.runnersCreate("run.runners.perOrg", OrgDim(org), runnerType, ".create.fail")
}

func (m *ScaleUpMetrics) runnersCreate(prefix string, dims Dimension, runnerType, outcome string) {
	typed := withRunnerType(dims, runnerType)
	m.mustCount(prefix+".create.total", 1, dims)
	m.mustCount(prefix+outcome, 1, dims)
	m.mustCount(prefix+".perRunnerType.create.total", 1, typed)
	m.mustCount(prefix+".perRunnerType"+outcome, 1, typed)
}

// countWithType counts prefix+suffix with dims, then prefix.perRunnerType+suffix
// with dims plus RunnerType.
func (m *ScaleUpMetrics) countWithType(prefix, suffix string, dims Dimension, runnerType string) {
	m.mustCount(prefix+suffix, 1, dims)
	m.mustCount(prefix+".perRunnerType"+suffix, 1, withRunnerType(dims, runnerType))
}
