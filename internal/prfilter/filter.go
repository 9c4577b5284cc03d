// Package prfilter evaluates jq expressions against pull request snapshots.
package prfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/simplesurance/prupdater/internal/githubclt"
)

// Filter is a jq query that must evaluate to exactly one boolean for the
// JSON representation of a githubclt.PullRequest.
type Filter struct {
	query *gojq.Query
}

// New parses jqQuery.
func New(jqQuery string) (*Filter, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing jq query %q failed: %w", jqQuery, err)
	}

	return &Filter{query: query}, nil
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// Match returns true if the query evaluates to true for pr.
func (f *Filter) Match(ctx context.Context, pr *githubclt.PullRequest) (bool, error) {
	var prUn any

	data, err := json.Marshal(pr)
	if err != nil {
		return false, fmt.Errorf("marshaling pull request failed: %w", err)
	}

	if err := json.Unmarshal(data, &prUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	result, errors := goJQIterToSlice(f.query.RunWithContext(ctx, prUn))
	if len(errors) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", f.query.String(), errString(errors))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), f.query.String())
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], f.query.String(),
		)
	}

	return val, nil
}

// Apply returns the pull requests in prs for which the query evaluates to
// true. The order of prs is kept.
func (f *Filter) Apply(ctx context.Context, prs []*githubclt.PullRequest) ([]*githubclt.PullRequest, error) {
	result := make([]*githubclt.PullRequest, 0, len(prs))

	for _, pr := range prs {
		match, err := f.Match(ctx, pr)
		if err != nil {
			return nil, fmt.Errorf("evaluating filter for pull request #%d failed: %w", pr.Number, err)
		}

		if match {
			result = append(result, pr)
		}
	}

	return result, nil
}

func (f *Filter) String() string {
	return f.query.String()
}
