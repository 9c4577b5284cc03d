package githubclt

import (
	"fmt"

	"github.com/shurcooL/githubv4"
)

// MergeStateStatus is GitHub's computed merge status of a pull request
// relative to its base branch.
type MergeStateStatus string

// MergeStateStatus values, the enum is a schema preview that githubv4 does
// not provide.
const (
	MergeStateStatusBehind   MergeStateStatus = "BEHIND"
	MergeStateStatusBlocked  MergeStateStatus = "BLOCKED"
	MergeStateStatusClean    MergeStateStatus = "CLEAN"
	MergeStateStatusDirty    MergeStateStatus = "DIRTY"
	MergeStateStatusDraft    MergeStateStatus = "DRAFT"
	MergeStateStatusHasHooks MergeStateStatus = "HAS_HOOKS"
	MergeStateStatusUnknown  MergeStateStatus = "UNKNOWN"
	MergeStateStatusUnstable MergeStateStatus = "UNSTABLE"
)

// MergeableState describes if a pull request can be merged without
// conflicts.
type MergeableState string

const (
	MergeableStateMergeable   = MergeableState(githubv4.MergeableStateMergeable)
	MergeableStateConflicting = MergeableState(githubv4.MergeableStateConflicting)
	MergeableStateUnknown     = MergeableState(githubv4.MergeableStateUnknown)
)

// StatusCheckRollupState is the aggregated state of all CI checks of the
// head commit of a pull request.
type StatusCheckRollupState string

const (
	// StatusCheckRollupStateAbsent is used when the head commit has no
	// status check rollup.
	StatusCheckRollupStateAbsent   StatusCheckRollupState = ""
	StatusCheckRollupStateSuccess                         = StatusCheckRollupState(githubv4.StatusStateSuccess)
	StatusCheckRollupStateFailure                         = StatusCheckRollupState(githubv4.StatusStateFailure)
	StatusCheckRollupStatePending                         = StatusCheckRollupState(githubv4.StatusStatePending)
	StatusCheckRollupStateError                           = StatusCheckRollupState(githubv4.StatusStateError)
	StatusCheckRollupStateExpected                        = StatusCheckRollupState(githubv4.StatusStateExpected)
)

// PullRequest is a read-only snapshot of an open pull request, taken when it
// was fetched.
type PullRequest struct {
	ID                  string                 `json:"id"`
	Number              int                    `json:"number"`
	Title               string                 `json:"title"`
	AuthorLogin         string                 `json:"author_login"`
	Labels              []string               `json:"labels"`
	IsDraft             bool                   `json:"is_draft"`
	MergeStateStatus    MergeStateStatus       `json:"merge_state_status"`
	Mergeable           MergeableState         `json:"mergeable"`
	HasAutoMergeEnabled bool                   `json:"has_auto_merge_enabled"`
	CheckRollupState    StatusCheckRollupState `json:"check_rollup_state"`
}

// HasLabel returns true if the pull request carries a label with the given
// name.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}

	return false
}

type queryPullRequest struct {
	ID     githubv4.ID
	Title  string
	Author struct {
		Login string
	}
	Labels struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: $labelsFirst)"`
	Number           int
	IsDraft          bool
	MergeStateStatus MergeStateStatus
	Mergeable        githubv4.MergeableState
	AutoMergeRequest *struct {
		EnabledAt githubv4.DateTime
	}
	StatusCheckRollup *struct {
		State githubv4.StatusState
	}
}

func (q *queryPullRequest) toPullRequest() *PullRequest {
	pr := PullRequest{
		ID:                  fmtID(q.ID),
		Number:              q.Number,
		Title:               q.Title,
		AuthorLogin:         q.Author.Login,
		Labels:              make([]string, 0, len(q.Labels.Nodes)),
		IsDraft:             q.IsDraft,
		MergeStateStatus:    q.MergeStateStatus,
		Mergeable:           MergeableState(q.Mergeable),
		HasAutoMergeEnabled: q.AutoMergeRequest != nil,
	}

	for _, l := range q.Labels.Nodes {
		pr.Labels = append(pr.Labels, l.Name)
	}

	if q.StatusCheckRollup != nil {
		pr.CheckRollupState = StatusCheckRollupState(q.StatusCheckRollup.State)
	}

	return &pr
}

func fmtID(id githubv4.ID) string {
	if s, ok := id.(string); ok {
		return s
	}

	if id == nil {
		return ""
	}

	return fmt.Sprint(id)
}
