package metrics

import "strings"

// GHOperation names a GitHub API call tracked under gh.calls.<op>.
type GHOperation string

const (
	GHCreateAppAuth                  GHOperation = "createAppAuth"
	GHIssuesAndPullRequests          GHOperation = "issuesAndPullRequests"
	GHGetRepoInstallation            GHOperation = "getRepoInstallation"
	GHGetOrgInstallation             GHOperation = "getOrgInstallation"
	GHDeleteSelfHostedRunnerFromRepo GHOperation = "deleteSelfHostedRunnerFromRepo"
	GHDeleteSelfHostedRunnerFromOrg  GHOperation = "deleteSelfHostedRunnerFromOrg"
	GHListSelfHostedRunnersForRepo   GHOperation = "listSelfHostedRunnersForRepo"
	GHListSelfHostedRunnersForOrg    GHOperation = "listSelfHostedRunnersForOrg"
	GHGetSelfHostedRunnerForRepo     GHOperation = "getSelfHostedRunnerForRepo"
	GHGetSelfHostedRunnerForOrg      GHOperation = "getSelfHostedRunnerForOrg"
	GHReposGetContent                GHOperation = "reposGetContent"
	GHCreateRegistrationTokenForRepo GHOperation = "createRegistrationTokenForRepo"
	GHCreateRegistrationTokenForOrg  GHOperation = "createRegistrationTokenForOrg"
)

// GHOperations lists every tracked GitHub operation.
var GHOperations = []GHOperation{
	GHCreateAppAuth, GHIssuesAndPullRequests, GHGetRepoInstallation, GHGetOrgInstallation,
	GHDeleteSelfHostedRunnerFromRepo, GHDeleteSelfHostedRunnerFromOrg,
	GHListSelfHostedRunnersForRepo, GHListSelfHostedRunnersForOrg,
	GHGetSelfHostedRunnerForRepo, GHGetSelfHostedRunnerForOrg, GHReposGetContent,
	GHCreateRegistrationTokenForRepo, GHCreateRegistrationTokenForOrg,
}

// AWSOperation names an AWS API call as "<service>.<operation>".
type AWSOperation string

const (
	AWSKMSDecrypt             AWSOperation = "kms.decrypt"
	AWSSMGetSecretValue       AWSOperation = "sm.getSecretValue"
	AWSSSMDescribeParameters  AWSOperation = "ssm.describeParameters"
	AWSSSMPutParameter        AWSOperation = "ssm.putParameter"
	AWSSSMDeleteParameter     AWSOperation = "ssm.deleteParameter"
	AWSEC2DescribeInstances   AWSOperation = "ec2.describeInstances"
	AWSEC2TerminateInstances  AWSOperation = "ec2.terminateInstances"
	AWSEC2RunInstances        AWSOperation = "ec2.runInstances"
)

// AWSOperations lists every tracked AWS operation.
var AWSOperations = []AWSOperation{
	AWSKMSDecrypt, AWSSMGetSecretValue, AWSSSMDescribeParameters, AWSSSMPutParameter,
	AWSSSMDeleteParameter, AWSEC2DescribeInstances, AWSEC2TerminateInstances, AWSEC2RunInstances,
}

// Service returns the service part of the operation, e.g. "ec2".
func (o AWSOperation) Service() string {
	svc, _, _ := strings.Cut(string(o), ".")
	return svc
}

// GHCallSuccess records a successful GitHub call that took ms milliseconds.
func (a *Aggregator) GHCallSuccess(op GHOperation, ms Value) {
	a.ghCall(op, "success", ms)
}

// GHCallFailure records a failed GitHub call that took ms milliseconds.
func (a *Aggregator) GHCallFailure(op GHOperation, ms Value) {
	a.ghCall(op, "failure", ms)
}

func (a *Aggregator) ghCall(op GHOperation, outcome string, ms Value) {
	prefix := "gh.calls." + string(op)
	a.mustCount(NameGHCallsTotal, 1, nil)
	a.mustCount(prefix+".count", 1, nil)
	a.mustCount(prefix+"."+outcome, 1, nil)
	a.mustAdd(prefix+SuffixWallclock, ms, nil)
}

// AWSCallSuccess records a successful AWS call that took ms milliseconds.
func (a *Aggregator) AWSCallSuccess(op AWSOperation, ms Value) {
	a.awsCall(op, "success", ms)
}

// AWSCallFailure records a failed AWS call that took ms milliseconds.
func (a *Aggregator) AWSCallFailure(op AWSOperation, ms Value) {
	a.awsCall(op, "failure", ms)
}

func (a *Aggregator) awsCall(op AWSOperation, outcome string, ms Value) {
	prefix := "aws." + string(op)
	a.mustCount(NameAWSCallsTotal, 1, nil)
	a.mustCount("aws."+op.Service()+".calls.total", 1, nil)
	a.mustCount(prefix+".count", 1, nil)
	a.mustCount(prefix+"."+outcome, 1, nil)
	a.mustAdd(prefix+SuffixWallclock, ms, nil)
}

// GetRunnerTypesSuccess counts a successful runner type lookup.
func (a *Aggregator) GetRunnerTypesSuccess() {
	a.mustCount(NameGetRunnerTypesSuccess, 1, nil)
}

// GetRunnerTypesFailure counts a failed runner type lookup.
func (a *Aggregator) GetRunnerTypesFailure() {
	a.mustCount(NameGetRunnerTypesFailure, 1, nil)
}

// RunTimeout counts a run that reached its deadline guard.
func (a *Aggregator) RunTimeout() {
	a.mustCount(NameRunTimeout, 1, nil)
}
