package cfg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/sethvargo/go-githubactions"
)

const (
	DefBaseBranch  = "main"
	DefBotLogin    = "renovate"
	DefRebaseLabel = "rebase"
	DefLogFormat   = "console"
	DefLogTimeKey  = "time"
	DefLogLevel    = "info"
)

// GithubTokenInput is the name of the GitHub Actions input that contains the
// API token.
const GithubTokenInput = "github-token"

type Config struct {
	GithubAPIToken  string `toml:"github_api_token"`
	RepositoryOwner string `toml:"repository_owner"`
	Repository      string `toml:"repository"`
	BaseBranch      string `toml:"base_branch"`
	// BotLogin is the login of the dependency bot, its pull requests
	// are rebased via RebaseLabel instead of being updated.
	BotLogin       string `toml:"renovate_login"`
	RebaseLabel    string `toml:"rebase_label"`
	FilterQuery    string `toml:"filter_query"`
	DryRun         bool   `toml:"dry_run"`
	PushgatewayURL string `toml:"pushgateway_url"`
	LogFormat      string `toml:"log_format"`
	LogTimeKey     string `toml:"log_time_key"`
	LogLevel       string `toml:"log_level"`
}

// Default returns a configuration with all optional settings set to their
// default values.
func Default() *Config {
	var c Config
	c.setDefaults()
	return &c
}

func (c *Config) setDefaults() {
	setIfEmpty(&c.BaseBranch, DefBaseBranch)
	setIfEmpty(&c.BotLogin, DefBotLogin)
	setIfEmpty(&c.RebaseLabel, DefRebaseLabel)
	setIfEmpty(&c.LogFormat, DefLogFormat)
	setIfEmpty(&c.LogTimeKey, DefLogTimeKey)
	setIfEmpty(&c.LogLevel, DefLogLevel)
}

func setIfEmpty(field *string, val string) {
	if *field == "" {
		*field = val
	}
}

// Load reads a TOML configuration from reader.
// Settings that are missing are set to their default values.
func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	return &result, nil
}

// ApplyActionEnv overwrites the API token and repository settings with the
// values that GitHub Actions passes to the process, if they are set.
func (c *Config) ApplyActionEnv(action *githubactions.Action) error {
	if token := action.GetInput(GithubTokenInput); token != "" {
		c.GithubAPIToken = token
	}

	ghCtx, err := action.Context()
	if err != nil {
		return fmt.Errorf("reading github actions context failed: %w", err)
	}

	if ghCtx.Repository == "" {
		return nil
	}

	return c.SetRepository(ghCtx.Repository)
}

// SetRepository sets RepositoryOwner and Repository from a string in the
// format "OWNER/REPOSITORY".
func (c *Config) SetRepository(ownerAndRepo string) error {
	owner, repo, err := ParseRepository(ownerAndRepo)
	if err != nil {
		return err
	}

	c.RepositoryOwner = owner
	c.Repository = repo

	return nil
}

// ParseRepository splits a string in the format "OWNER/REPOSITORY" into its
// components.
func ParseRepository(ownerAndRepo string) (owner, repo string, err error) {
	owner, repo, found := strings.Cut(ownerAndRepo, "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expecting format OWNER/REPOSITORY", ownerAndRepo)
	}

	return owner, repo, nil
}

// Validate returns an error if a mandatory setting is missing.
func (c *Config) Validate() error {
	if c.GithubAPIToken == "" {
		return fmt.Errorf("%s is required", GithubTokenInput)
	}

	if c.RepositoryOwner == "" {
		return errors.New("repository owner is unset")
	}

	if c.Repository == "" {
		return errors.New("repository is unset")
	}

	if c.BaseBranch == "" {
		return errors.New("base branch is unset")
	}

	if c.BotLogin == "" {
		return errors.New("renovate login is unset")
	}

	if c.RebaseLabel == "" {
		return errors.New("rebase label is unset")
	}

	return nil
}
