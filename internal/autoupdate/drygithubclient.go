package autoupdate

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/prupdater/internal/githubclt"
	"github.com/simplesurance/prupdater/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All all other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) OpenPullRequests(ctx context.Context, owner, repo, baseBranch string) ([]*githubclt.PullRequest, error) {
	return c.clt.OpenPullRequests(ctx, owner, repo, baseBranch)
}

func (c *DryGithubClient) AddLabel(_ context.Context, _, _ string, pullRequestOrIssueNumber int, label string) error {
	c.logger.Info(
		"simulated adding of github label, no label added on github",
		logfields.PullRequest(pullRequestOrIssueNumber),
		logfields.Label(label),
	)

	return nil
}

func (c *DryGithubClient) UpdateBranch(_ context.Context, _, _ string, pullRequestNumber int) error {
	c.logger.Info(
		"simulated updating of github branch, branch not changed on github",
		logfields.PullRequest(pullRequestNumber),
	)

	return nil
}
