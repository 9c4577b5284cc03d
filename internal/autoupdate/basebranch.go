package autoupdate

import (
	"errors"

	"go.uber.org/zap"

	"github.com/simplesurance/prupdater/internal/logfields"
)

// BranchID identifies the base branch of a repository.
type BranchID struct {
	RepositoryOwner string
	Repository      string
	Branch          string
}

// BaseBranch is the branch that the updated pull requests target.
// Logfields are attached to every log message of an Updater.
type BaseBranch struct {
	BranchID
	Logfields []zap.Field
}

func NewBaseBranch(owner, repo, branch string) (*BaseBranch, error) {
	if owner == "" {
		return nil, errors.New("repository owner is empty")
	}

	if repo == "" {
		return nil, errors.New("repository is empty")
	}

	if branch == "" {
		return nil, errors.New("base branch is empty")
	}

	return &BaseBranch{
		BranchID: BranchID{
			RepositoryOwner: owner,
			Repository:      repo,
			Branch:          branch,
		},
		Logfields: []zap.Field{
			logfields.Repository(repo),
			logfields.RepositoryOwner(owner),
			logfields.BaseBranch(branch),
		},
	}, nil
}
