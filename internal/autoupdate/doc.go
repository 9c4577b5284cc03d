// Package autoupdate advances GitHub pull requests that have auto-merge
// enabled towards being merged, one pull request per run.
//
// It is meant to be run periodically by a CI scheduler, in combination with
// the GitHub auto-merge feature and branch protection rules that require
// branches to be uptodate before merging.
//
// A run retrieves the oldest open pull requests of a base branch and
// evaluates which of them are eligible: auto-merge is enabled, the pull
// request is not a draft, its status check rollup is not failed and it can be
// merged without conflicts. Pull requests of the dependency bot (renovate)
// are also eligible when they have conflicts, the bot resolves them when it
// rebases.
//
// When CI is running for any eligible pull request that is not behind its
// base branch, the run does nothing, to not race with the running checks.
// Otherwise the oldest eligible pull request not created by the bot is
// updated with its base branch. When only bot pull requests are eligible,
// the oldest one gets the rebase label, which makes the bot rebase it.
//
// At most one change is done on GitHub per run and its result is not
// awaited. Runs are stateless, running again when nothing changed leads to
// the same decision.
package autoupdate
