package autoupdate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/prupdater/internal/githubclt"
	"github.com/simplesurance/prupdater/internal/logfields"
)

const loggerName = "autoupdater"

const (
	DefBotLogin    = "renovate"
	DefRebaseLabel = "rebase"
)

//go:generate mockgen -destination mocks/githubclient.go -package mocks . GithubClient

type GithubClient interface {
	OpenPullRequests(ctx context.Context, owner, repo, baseBranch string) ([]*githubclt.PullRequest, error)
	AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) error
}

// CandidateFilter narrows down the retrieved pull requests before their
// eligibility is evaluated.
type CandidateFilter interface {
	Apply(context.Context, []*githubclt.PullRequest) ([]*githubclt.PullRequest, error)
}

// Updater advances one pull request of a base branch per run towards being
// merged, by updating its branch or by requesting a rebase from the
// dependency bot.
type Updater struct {
	ghClient   GithubClient
	baseBranch *BaseBranch

	botLogin    string
	rebaseLabel string
	filter      CandidateFilter
	metrics     *Metrics

	logger *zap.Logger
}

type Option func(*Updater)

// WithBotLogin sets the login of the dependency bot whose pull requests are
// rebased via the rebase label.
func WithBotLogin(login string) Option {
	return func(u *Updater) {
		u.botLogin = login
	}
}

func WithRebaseLabel(label string) Option {
	return func(u *Updater) {
		u.rebaseLabel = label
	}
}

// WithCandidateFilter sets a filter that is applied to the retrieved pull
// requests before selecting one.
func WithCandidateFilter(f CandidateFilter) Option {
	return func(u *Updater) {
		u.filter = f
	}
}

func WithMetrics(m *Metrics) Option {
	return func(u *Updater) {
		u.metrics = m
	}
}

func NewUpdater(ghClient GithubClient, baseBranch *BaseBranch, opts ...Option) *Updater {
	u := Updater{
		ghClient:    ghClient,
		baseBranch:  baseBranch,
		botLogin:    DefBotLogin,
		rebaseLabel: DefRebaseLabel,
		logger:      zap.L().Named(loggerName).With(baseBranch.Logfields...),
	}

	for _, opt := range opts {
		opt(&u)
	}

	return &u
}

// Run retrieves the open pull requests of the base branch, selects one and
// runs at most one action for it.
// An error is only returned together with OutcomeFailed, it is the
// unmodified error of the failed GitHub operation.
func (u *Updater) Run(ctx context.Context) (Outcome, error) {
	outcome, err := u.run(ctx)

	logger := u.logger.With(logfields.Outcome(outcome.String()))
	if err != nil {
		logger.Error(
			"update run failed",
			logEventRunFailed,
			zap.Error(err),
		)
	} else if outcome.IsNoOp() {
		logger.Debug("update run finished", logEventRunFinished)
	} else {
		logger.Info("update run finished", logEventRunFinished)
	}

	if u.metrics != nil {
		u.metrics.RunsInc(&u.baseBranch.BranchID, outcome)
	}

	return outcome, err
}

func (u *Updater) run(ctx context.Context) (Outcome, error) {
	bb := u.baseBranch

	prs, err := u.ghClient.OpenPullRequests(ctx, bb.RepositoryOwner, bb.Repository, bb.Branch)
	if err != nil {
		return OutcomeFailed, err
	}

	u.logger.Debug(
		"retrieved open pull requests",
		logEventPRsRetrieved,
		zap.Int("count", len(prs)),
	)

	candidates := prs
	if u.filter != nil {
		candidates, err = u.filter.Apply(ctx, prs)
		if err != nil {
			return OutcomeFailed, err
		}

		u.logger.Debug(
			"applied candidate filter",
			logEventFilterApplied,
			zap.Int("count", len(candidates)),
		)
	}

	d := Decide(candidates, u.botLogin, u.rebaseLabel)

	if u.metrics != nil {
		u.metrics.SetPRCounts(&bb.BranchID, len(prs), len(d.Eligible))
	}

	return u.act(ctx, d)
}

func (u *Updater) act(ctx context.Context, d *Decision) (Outcome, error) {
	bb := u.baseBranch

	switch d.Outcome {
	case OutcomeNoCandidates:
		u.logger.Info("No PRs to update", logEventNoEligiblePRs)
		return d.Outcome, nil

	case OutcomeWaiting:
		u.logger.Info(
			"There is a PR that is following the base branch and CI is running",
			logEventCIRunning,
			logfields.PullRequest(d.PendingPR.Number),
		)
		return d.Outcome, nil

	case OutcomeLabelAlreadySet, OutcomeLabeled:
		logger := u.logger.With(
			logfields.PullRequest(d.Target.Number),
			logfields.Author(d.Target.AuthorLogin),
			logfields.Label(u.rebaseLabel),
		)

		logger.Info(fmt.Sprintf("Rebase Renovate PR: %d", d.Target.Number), logEventRebasePR)

		if d.Outcome == OutcomeLabelAlreadySet {
			logger.Info("This PR is already rebasing by Renovate", logEventRebaseLabelSet)
			return d.Outcome, nil
		}

		if err := u.ghClient.AddLabel(ctx, bb.RepositoryOwner, bb.Repository, d.Target.Number, u.rebaseLabel); err != nil {
			return OutcomeFailed, err
		}

		return d.Outcome, nil

	case OutcomeBranchUpdated:
		u.logger.Info(
			fmt.Sprintf("Update branch of PR: %d", d.Target.Number),
			logEventUpdateBranch,
			logfields.PullRequest(d.Target.Number),
			logfields.Author(d.Target.AuthorLogin),
		)

		if err := u.ghClient.UpdateBranch(ctx, bb.RepositoryOwner, bb.Repository, d.Target.Number); err != nil {
			return OutcomeFailed, err
		}

		return d.Outcome, nil

	default:
		return OutcomeFailed, fmt.Errorf("BUG: decision has unsupported outcome %q", d.Outcome)
	}
}
