package autoupdate

import (
	"github.com/simplesurance/prupdater/internal/githubclt"
)

// IsEligible returns true if pr can be advanced towards being merged.
// A pull request is eligible when auto-merge is enabled, it is not a draft,
// its status check rollup is not failed and it is mergeable.
// Pull requests of botLogin are also eligible when they have conflicts, the
// bot resolves them when rebasing.
func IsEligible(pr *githubclt.PullRequest, botLogin string) bool {
	if !pr.HasAutoMergeEnabled {
		return false
	}

	mergeable := pr.Mergeable == githubclt.MergeableStateMergeable ||
		(pr.AuthorLogin == botLogin && pr.Mergeable == githubclt.MergeableStateConflicting)
	if !mergeable {
		return false
	}

	if pr.CheckRollupState == githubclt.StatusCheckRollupStateFailure {
		return false
	}

	return !pr.IsDraft
}

// EligiblePullRequests returns the eligible pull requests of prs, in the
// same order.
func EligiblePullRequests(prs []*githubclt.PullRequest, botLogin string) []*githubclt.PullRequest {
	result := make([]*githubclt.PullRequest, 0, len(prs))

	for _, pr := range prs {
		if IsEligible(pr, botLogin) {
			result = append(result, pr)
		}
	}

	return result
}

// isCIRunningOnUptodatePR returns true when CI is running for a pull request
// that is not behind its base branch.
func isCIRunningOnUptodatePR(pr *githubclt.PullRequest) bool {
	return pr.CheckRollupState == githubclt.StatusCheckRollupStatePending &&
		pr.MergeStateStatus != githubclt.MergeStateStatusBehind
}

// Decision is the result of evaluating a snapshot of pull requests.
type Decision struct {
	// Outcome is the state the run ends in, when running the action
	// for Target succeeds.
	Outcome Outcome
	// Target is the pull request the action is run for.
	// It is nil for OutcomeNoCandidates and OutcomeWaiting.
	Target *githubclt.PullRequest
	// PendingPR is the eligible pull request that caused
	// OutcomeWaiting.
	PendingPR *githubclt.PullRequest
	Eligible  []*githubclt.PullRequest
}

// Decide selects the pull request to act on.
//
// prs must be ordered by creation time, oldest first.
// When any eligible pull request has running CI and is not behind its base
// branch, nothing is done.
// Otherwise the oldest eligible pull request not authored by botLogin is
// chosen and its branch is updated. If all eligible pull requests are
// authored by botLogin, the oldest one is chosen and rebaseLabel is added,
// unless it already has it.
func Decide(prs []*githubclt.PullRequest, botLogin, rebaseLabel string) *Decision {
	eligible := EligiblePullRequests(prs, botLogin)
	if len(eligible) == 0 {
		return &Decision{Outcome: OutcomeNoCandidates, Eligible: eligible}
	}

	for _, pr := range eligible {
		if isCIRunningOnUptodatePR(pr) {
			return &Decision{
				Outcome:   OutcomeWaiting,
				PendingPR: pr,
				Eligible:  eligible,
			}
		}
	}

	target := eligible[0]
	for _, pr := range eligible {
		if pr.AuthorLogin != botLogin {
			target = pr
			break
		}
	}

	if target.AuthorLogin != botLogin {
		return &Decision{
			Outcome:  OutcomeBranchUpdated,
			Target:   target,
			Eligible: eligible,
		}
	}

	if target.HasLabel(rebaseLabel) {
		return &Decision{
			Outcome:  OutcomeLabelAlreadySet,
			Target:   target,
			Eligible: eligible,
		}
	}

	return &Decision{
		Outcome:  OutcomeLabeled,
		Target:   target,
		Eligible: eligible,
	}
}
