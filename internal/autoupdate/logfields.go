package autoupdate

import (
	"github.com/simplesurance/prupdater/internal/logfields"
)

var (
	logEventNoEligiblePRs  = logfields.Event("no_eligible_pull_requests")
	logEventCIRunning      = logfields.Event("ci_running")
	logEventRebasePR       = logfields.Event("rebase_pull_request")
	logEventRebaseLabelSet = logfields.Event("rebase_label_already_set")
	logEventUpdateBranch   = logfields.Event("update_branch")
	logEventRunFailed      = logfields.Event("update_run_failed")
	logEventRunFinished    = logfields.Event("update_run_finished")
	logEventPRsRetrieved   = logfields.Event("pull_requests_retrieved")
	logEventFilterApplied  = logfields.Event("candidate_filter_applied")
)
