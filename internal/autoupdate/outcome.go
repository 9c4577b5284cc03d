package autoupdate

import "fmt"

// Outcome is the terminal state of an update run.
type Outcome uint8

const (
	OutcomeUndefined Outcome = iota
	// OutcomeNoCandidates is returned when no pull request is eligible.
	OutcomeNoCandidates
	// OutcomeWaiting is returned when CI is running for an eligible pull
	// request that is uptodate with its base branch.
	OutcomeWaiting
	// OutcomeLabelAlreadySet is returned when the target is a bot pull
	// request that already has the rebase label.
	OutcomeLabelAlreadySet
	// OutcomeLabeled is returned when the rebase label was added to the
	// target.
	OutcomeLabeled
	// OutcomeBranchUpdated is returned when updating the target branch
	// with its base branch was triggered.
	OutcomeBranchUpdated
	// OutcomeFailed is returned when retrieving pull requests or running
	// the action failed.
	OutcomeFailed
)

var outcomeStrings = [...]string{
	OutcomeUndefined:       "undefined",
	OutcomeNoCandidates:    "no_candidates",
	OutcomeWaiting:         "waiting",
	OutcomeLabelAlreadySet: "label_already_set",
	OutcomeLabeled:         "labeled",
	OutcomeBranchUpdated:   "branch_updated",
	OutcomeFailed:          "failed",
}

func (o Outcome) String() string {
	// it can not be <0 because it's type is uint8
	if int(o) > len(outcomeStrings)-1 {
		return fmt.Sprintf("unsupported Outcome value: %d", o)
	}

	return outcomeStrings[o]
}

// IsNoOp returns true if the outcome is a successful run that did not change
// anything on GitHub.
func (o Outcome) IsNoOp() bool {
	switch o {
	case OutcomeNoCandidates, OutcomeWaiting, OutcomeLabelAlreadySet:
		return true
	default:
		return false
	}
}
