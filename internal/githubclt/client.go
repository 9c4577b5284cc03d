// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/prupdater/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

// MaxPullRequests is the maximum number of pull requests and labels per pull
// request that are retrieved.
const MaxPullRequests = 100

const loggerName = "github_client"

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// Errors are returned as they are received, operations are never retried.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// OpenPullRequests returns up to MaxPullRequests open pull requests that have
// baseBranch as base, ordered by their creation time, oldest first.
func (clt *Client) OpenPullRequests(ctx context.Context, owner, repo, baseBranch string) ([]*PullRequest, error) {
	var q struct {
		Repository struct {
			PullRequests struct {
				Nodes []queryPullRequest
			} `graphql:"pullRequests(baseRefName: $baseRefName, first: $first, states: $states, orderBy: $orderBy)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner":       githubv4.String(owner),
		"name":        githubv4.String(repo),
		"baseRefName": githubv4.String(baseBranch),
		"first":       githubv4.Int(MaxPullRequests),
		"labelsFirst": githubv4.Int(MaxPullRequests),
		"states":      []githubv4.PullRequestState{githubv4.PullRequestStateOpen},
		"orderBy": githubv4.IssueOrder{
			Field:     githubv4.IssueOrderFieldCreatedAt,
			Direction: githubv4.OrderDirectionAsc,
		},
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return nil, err
	}

	result := make([]*PullRequest, 0, len(q.Repository.PullRequests.Nodes))
	for i := range q.Repository.PullRequests.Nodes {
		result = append(result, q.Repository.PullRequests.Nodes[i].toPullRequest())
	}

	clt.logger.Debug(
		"retrieved open pull requests",
		logfields.Event("github_pull_requests_retrieved"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.BaseBranch(baseBranch),
		zap.Int("count", len(result)),
	)

	return result, nil
}

// AddLabel adds a label to Pull-Request or Issue.
func (clt *Client) AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	if label == "" {
		// by default github removes all labels when none is provided,
		// we do not need this functionality, as safe guard fail if
		// because of a bug an empty label value is passed:
		return errors.New("provided label is empty")
	}

	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, []string{label})
	if err != nil {
		clt.logAPIError(err)
		return err
	}

	return nil
}

// UpdateBranch schedules merging the base-branch into a pull request branch.
// GitHub processes the update asynchronously, an accepted response is
// returned as success.
func (clt *Client) UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) error {
	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
	)

	_, _, err := clt.restClt.PullRequests.UpdateBranch(ctx, owner, repo, pullRequestNumber, &github.PullRequestBranchUpdateOptions{})
	if err != nil {
		var acceptedErr *github.AcceptedError
		if errors.As(err, &acceptedErr) {
			logger.Debug("updating branch with base branch scheduled",
				logfields.Event("github_branch_update_with_base_scheduled"))
			return nil
		}

		clt.logAPIError(err)
		return err
	}

	logger.Debug("branch was updated with base branch",
		logfields.Event("github_branch_update_with_base_triggered"))

	return nil
}

func (clt *Client) logAPIError(err error) {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		return
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		clt.logger.Debug(
			"github api returned an error response",
			logfields.Event("github_api_error_response"),
			zap.Int("http_status_code", respErr.Response.StatusCode),
			zap.String("github_error_message", respErr.Message),
		)
	}
}
