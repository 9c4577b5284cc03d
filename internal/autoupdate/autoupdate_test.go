package autoupdate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simplesurance/prupdater/internal/autoupdate/mocks"
	"github.com/simplesurance/prupdater/internal/githubclt"
)

const repo = "repo"
const repoOwner = "testman"
const baseBranchName = "main"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustNewBaseBranch(t *testing.T) *BaseBranch {
	t.Helper()

	bb, err := NewBaseBranch(repoOwner, repo, baseBranchName)
	require.NoError(t, err)

	return bb
}

func TestNewBaseBranchRejectsEmptyValues(t *testing.T) {
	_, err := NewBaseBranch("", repo, baseBranchName)
	assert.Error(t, err)

	_, err = NewBaseBranch(repoOwner, "", baseBranchName)
	assert.Error(t, err)

	_, err = NewBaseBranch(repoOwner, repo, "")
	assert.Error(t, err)

	bb := mustNewBaseBranch(t)
	assert.Equal(t, BranchID{RepositoryOwner: repoOwner, Repository: repo, Branch: baseBranchName}, bb.BranchID)
	assert.Len(t, bb.Logfields, 3)
}

func mockOpenPullRequestsCall(clt *mocks.MockGithubClient, prs []*githubclt.PullRequest, err error) *gomock.Call {
	return clt.
		EXPECT().
		OpenPullRequests(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(baseBranchName)).
		Return(prs, err).
		Times(1)
}

func mockAddLabelCall(clt *mocks.MockGithubClient, expectedPRNr int, err error) *gomock.Call {
	return clt.
		EXPECT().
		AddLabel(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(expectedPRNr), gomock.Eq(DefRebaseLabel)).
		Return(err).
		Times(1)
}

func mockUpdateBranchCall(clt *mocks.MockGithubClient, expectedPRNr int, err error) *gomock.Call {
	return clt.
		EXPECT().
		UpdateBranch(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(expectedPRNr)).
		Return(err).
		Times(1)
}

// observeLogs replaces the global logger with one that writes to the test
// log and records all Info messages.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), core)).Named(t.Name())
	t.Cleanup(zap.ReplaceGlobals(logger))

	return logs
}

func logMessages(logs *observer.ObservedLogs) []string {
	entries := logs.All()
	result := make([]string, 0, len(entries))

	for _, e := range entries {
		result = append(result, e.Message)
	}

	return result
}

func TestRunUpdatesBranchOfOldestNonBotPR(t *testing.T) {
	logs := observeLogs(t)

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	prs := []*githubclt.PullRequest{
		newEligiblePR(1, DefBotLogin),
		newEligiblePR(2, "alice"),
	}

	mockOpenPullRequestsCall(ghClient, prs, nil)
	mockUpdateBranchCall(ghClient, 2, nil)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBranchUpdated, outcome)
	msgs := logMessages(logs)
	assert.Contains(t, msgs, "Update branch of PR: 2")
	assert.Contains(t, msgs, "update run finished")
}

func TestRunLabelsOldestBotPR(t *testing.T) {
	logs := observeLogs(t)

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	prs := []*githubclt.PullRequest{
		newEligiblePR(4, DefBotLogin),
		newEligiblePR(5, DefBotLogin),
	}

	mockOpenPullRequestsCall(ghClient, prs, nil)
	mockAddLabelCall(ghClient, 4, nil)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLabeled, outcome)
	assert.Contains(t, logMessages(logs), "Rebase Renovate PR: 4")
}

func TestRunBotPRAlreadyLabeledDoesNotCallGithub(t *testing.T) {
	logs := observeLogs(t)

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	pr := newEligiblePR(4, DefBotLogin)
	pr.Labels = []string{DefRebaseLabel}

	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{pr}, nil)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLabelAlreadySet, outcome)

	msgs := logMessages(logs)
	assert.Contains(t, msgs, "Rebase Renovate PR: 4")
	assert.Contains(t, msgs, "This PR is already rebasing by Renovate")
	assert.NotContains(t, msgs, "update run finished")
}

func TestRunWithoutPRs(t *testing.T) {
	logs := observeLogs(t)

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	mockOpenPullRequestsCall(ghClient, nil, nil)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCandidates, outcome)
	assert.Contains(t, logMessages(logs), "No PRs to update")
}

func TestRunWaitsForRunningCI(t *testing.T) {
	logs := observeLogs(t)

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	pending := newEligiblePR(9, DefBotLogin)
	pending.CheckRollupState = githubclt.StatusCheckRollupStatePending
	pending.MergeStateStatus = githubclt.MergeStateStatusBlocked

	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(1, "alice"), pending}, nil)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaiting, outcome)
	assert.Contains(t, logMessages(logs), "There is a PR that is following the base branch and CI is running")
}

func TestRunFetchErrorIsReturnedUnmodified(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	fetchErr := errors.New("error mocked by TestRunFetchErrorIsReturnedUnmodified")
	mockOpenPullRequestsCall(ghClient, nil, fetchErr)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Same(t, fetchErr, err)
}

func TestRunUpdateBranchErrorIsReturned(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	updateErr := errors.New("error mocked by TestRunUpdateBranchErrorIsReturned")
	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(2, "alice")}, nil)
	mockUpdateBranchCall(ghClient, 2, updateErr)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Same(t, updateErr, err)
}

func TestRunAddLabelErrorIsReturned(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	labelErr := errors.New("error mocked by TestRunAddLabelErrorIsReturned")
	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(2, DefBotLogin)}, nil)
	mockAddLabelCall(ghClient, 2, labelErr)

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t)).Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Same(t, labelErr, err)
}

type filterFunc func(context.Context, []*githubclt.PullRequest) ([]*githubclt.PullRequest, error)

func (f filterFunc) Apply(ctx context.Context, prs []*githubclt.PullRequest) ([]*githubclt.PullRequest, error) {
	return f(ctx, prs)
}

func TestRunAppliesCandidateFilter(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	prs := []*githubclt.PullRequest{
		newEligiblePR(1, "alice"),
		newEligiblePR(2, "bob"),
	}

	mockOpenPullRequestsCall(ghClient, prs, nil)
	mockUpdateBranchCall(ghClient, 2, nil)

	skipAlice := filterFunc(func(_ context.Context, prs []*githubclt.PullRequest) ([]*githubclt.PullRequest, error) {
		var result []*githubclt.PullRequest
		for _, pr := range prs {
			if pr.AuthorLogin != "alice" {
				result = append(result, pr)
			}
		}
		return result, nil
	})

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t), WithCandidateFilter(skipAlice)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBranchUpdated, outcome)
}

func TestRunCandidateFilterErrorFails(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(1, "alice")}, nil)

	filterErr := errors.New("error mocked by TestRunCandidateFilterErrorFails")
	failing := filterFunc(func(context.Context, []*githubclt.PullRequest) ([]*githubclt.PullRequest, error) {
		return nil, filterErr
	})

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t), WithCandidateFilter(failing)).Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, filterErr)
}

func TestRunWithCustomBotLoginAndLabel(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(3, "dependabot")}, nil)
	ghClient.
		EXPECT().
		AddLabel(gomock.Any(), gomock.Eq(repoOwner), gomock.Eq(repo), gomock.Eq(3), gomock.Eq("bot/rebase")).
		Return(nil).
		Times(1)

	outcome, err := NewUpdater(
		ghClient,
		mustNewBaseBranch(t),
		WithBotLogin("dependabot"),
		WithRebaseLabel("bot/rebase"),
	).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLabeled, outcome)
}

func TestRunWithDryGithubClientDoesNotChangeAnything(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	mockOpenPullRequestsCall(ghClient, []*githubclt.PullRequest{newEligiblePR(2, "alice")}, nil).Times(2)

	dryClient := NewDryGithubClient(ghClient, zap.L())

	outcome, err := NewUpdater(dryClient, mustNewBaseBranch(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBranchUpdated, outcome)

	outcome, err = NewUpdater(dryClient, mustNewBaseBranch(t), WithBotLogin("alice")).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLabeled, outcome)
}

func TestRunRecordsMetrics(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	prs := []*githubclt.PullRequest{
		newEligiblePR(1, "alice"),
		newEligiblePR(2, "bob"),
		newEligiblePR(3, "carol"),
	}
	prs[2].IsDraft = true

	mockOpenPullRequestsCall(ghClient, prs, nil)
	mockUpdateBranchCall(ghClient, 1, nil)

	metrics := NewMetrics()

	outcome, err := NewUpdater(ghClient, mustNewBaseBranch(t), WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeBranchUpdated, outcome)

	repoLabel := repoOwner + "/" + repo
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.runs.WithLabelValues(repoLabel, baseBranchName, OutcomeBranchUpdated.String())))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.candidatePRs.WithLabelValues(repoLabel, baseBranchName)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.eligiblePRs.WithLabelValues(repoLabel, baseBranchName)))
}

func TestMetricsPush(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	var method, path string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(http.DefaultClient.CloseIdleConnections)

	metrics := NewMetrics()
	metrics.RunsInc(&mustNewBaseBranch(t).BranchID, OutcomeWaiting)

	err := metrics.Push(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/"+PushJobName, path)
	assert.NotEmpty(t, body)
}
