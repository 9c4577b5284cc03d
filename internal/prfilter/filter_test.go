package prfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/prupdater/internal/githubclt"
)

func testPRs() []*githubclt.PullRequest {
	return []*githubclt.PullRequest{
		{
			Number:      1,
			Title:       "WIP: refactor queue",
			AuthorLogin: "alice",
			Labels:      []string{"team-a"},
		},
		{
			Number:      2,
			Title:       "chore(deps): update zap",
			AuthorLogin: "renovate",
			Labels:      []string{"dependencies"},
		},
		{
			Number:      3,
			Title:       "fix logging",
			AuthorLogin: "bob",
			Labels:      []string{"team-a", "skip-update"},
		},
	}
}

func TestApplyKeepsOrderOfMatches(t *testing.T) {
	f, err := New(`any(.labels[]; . == "skip-update") | not`)
	require.NoError(t, err)

	res, err := f.Apply(context.Background(), testPRs())
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1, res[0].Number)
	assert.Equal(t, 2, res[1].Number)
}

func TestMatchOnFields(t *testing.T) {
	testcases := []struct {
		query  string
		pr     int
		result bool
	}{
		{query: `.author_login == "renovate"`, pr: 1, result: true},
		{query: `.author_login == "renovate"`, pr: 0, result: false},
		{query: `.title | startswith("WIP") | not`, pr: 0, result: false},
		{query: `.title | startswith("WIP") | not`, pr: 2, result: true},
		{query: `.number > 2`, pr: 2, result: true},
	}

	prs := testPRs()

	for _, tc := range testcases {
		t.Run(tc.query, func(t *testing.T) {
			f, err := New(tc.query)
			require.NoError(t, err)

			match, err := f.Match(context.Background(), prs[tc.pr])
			require.NoError(t, err)
			assert.Equal(t, tc.result, match)
		})
	}
}

func TestNewFailsOnInvalidQuery(t *testing.T) {
	_, err := New(`.title ==`)
	assert.Error(t, err)
}

func TestMatchFailsOnNonBoolResult(t *testing.T) {
	f, err := New(`.title`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), testPRs()[0])
	assert.Error(t, err)
}

func TestMatchFailsOnMultipleResults(t *testing.T) {
	f, err := New(`.labels[] | . == "team-a"`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), testPRs()[2])
	assert.Error(t, err)
}

func TestApplyFailsOnQueryError(t *testing.T) {
	f, err := New(`.title + 1`)
	require.NoError(t, err)

	res, err := f.Apply(context.Background(), testPRs())
	assert.Error(t, err)
	assert.Nil(t, res)
}
