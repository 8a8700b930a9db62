package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"gopkg.in/yaml.v3"
)

const (
	ActionRun          = "run"
	ActionListAccounts = "listAccounts"

	DefaultDataDir    = "/data"
	DefaultAPIVersion = "v17"
	DefaultDateRange  = "-1 day"
	DefaultRetries    = 5
)

// Config is the resolved component configuration.
type Config struct {
	Action          string
	DataDir         string
	CustomerIDs     []ads.CustomerID
	Name            string
	Query           string
	PrimaryKeys     []string
	Since           string
	Until           string
	DeveloperToken  string
	OnlyEnabled     bool
	IncludeChildren bool
	RetryAttempts   int
	APIVersion      string
	PageSize        int
	OAuth           OAuth
	Publish         Publish
	// Warnings are non-fatal issues found while parsing.
	Warnings []Issue
}

// OAuth holds the credentials used to mint access tokens.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Publish configures the optional post-run upload.
type Publish struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Topic   string `yaml:"topic"`
}

// Enabled reports whether a publish target is configured.
func (p Publish) Enabled() bool {
	return p.Bucket != ""
}

// IssueSeverity grades a configuration issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single configuration problem.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// ConfigError lists every error-level issue found while loading.
type ConfigError struct {
	Issues []Issue
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return strings.Join(msgs, "\n")
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// CustomerIDs accepts a single id, a number or a list of them.
type CustomerIDs []string

func (c *CustomerIDs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*c = nil
			return nil
		}
		*c = CustomerIDs{node.Value}
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return err
		}
		*c = ids
		return nil
	}
	return fmt.Errorf("line %d: customerId must be a string or a list", node.Line)
}

type rawConfig struct {
	Action     string `yaml:"action"`
	Parameters struct {
		CustomerID           CustomerIDs `yaml:"customerId"`
		Name                 string      `yaml:"name"`
		Query                string      `yaml:"query"`
		Primary              []string    `yaml:"primary"`
		Since                *string     `yaml:"since"`
		Until                *string     `yaml:"until"`
		DeveloperToken       string      `yaml:"#developerToken"`
		OnlyEnabledCustomers *bool       `yaml:"onlyEnabledCustomers"`
		GetAccountChildren   bool        `yaml:"getAccountChildren"`
		RetryAttempts        *int        `yaml:"retryAttempts"`
		APIVersion           string      `yaml:"apiVersion"`
		PageSize             int         `yaml:"pageSize"`
		Publish              Publish     `yaml:"publish"`
	} `yaml:"parameters"`
	ImageParameters struct {
		DeveloperToken string `yaml:"#developer_token"`
	} `yaml:"image_parameters"`
	Authorization struct {
		OAuthAPI struct {
			Credentials struct {
				AppKey    string `yaml:"appKey"`
				AppSecret string `yaml:"#appSecret"`
				Data      string `yaml:"#data"`
			} `yaml:"credentials"`
		} `yaml:"oauth_api"`
	} `yaml:"authorization"`
}

// Load reads <dataDir>/config.json.
func Load(dataDir string, now time.Time) (*Config, error) {
	path := filepath.Join(dataDir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}
	cfg, err := Parse(data, now)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

// DataDirFromEnv returns KBC_DATADIR or the default data directory.
func DataDirFromEnv() string {
	if dir := os.Getenv("KBC_DATADIR"); dir != "" {
		return dir
	}
	return DefaultDataDir
}

// Parse decodes and validates a configuration document. Relative dates are
// resolved against now.
func Parse(data []byte, now time.Time) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Issues: []Issue{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Configuration is not valid: %v", err),
		}}}
	}

	var issues, warnings []Issue
	addError := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	}

	p := raw.Parameters
	cfg := &Config{
		Action:          raw.Action,
		DataDir:         DefaultDataDir,
		Name:            p.Name,
		Query:           strings.TrimSpace(p.Query),
		PrimaryKeys:     p.Primary,
		OnlyEnabled:     true,
		IncludeChildren: p.GetAccountChildren,
		RetryAttempts:   DefaultRetries,
		APIVersion:      DefaultAPIVersion,
		PageSize:        p.PageSize,
		Publish:         p.Publish,
	}
	if cfg.Action == "" {
		cfg.Action = ActionRun
	}
	if p.OnlyEnabledCustomers != nil {
		cfg.OnlyEnabled = *p.OnlyEnabledCustomers
	}
	if p.RetryAttempts != nil {
		cfg.RetryAttempts = *p.RetryAttempts
	}
	if p.APIVersion != "" {
		cfg.APIVersion = p.APIVersion
	}

	if cfg.Action != ActionRun && cfg.Action != ActionListAccounts {
		addError("action", fmt.Sprintf("Action %q is not supported.", cfg.Action))
	}

	for _, value := range p.CustomerID {
		if strings.TrimSpace(value) == "" {
			continue
		}
		id, err := ads.ParseCustomerID(value)
		if err != nil {
			addError("parameters.customerId", fmt.Sprintf("Customer id %q is invalid.", value))
			continue
		}
		cfg.CustomerIDs = append(cfg.CustomerIDs, id)
	}

	if cfg.Action == ActionRun && len(cfg.CustomerIDs) == 0 {
		warnings = append(warnings, Issue{
			Severity: SeverityWarning,
			Path:     "parameters.customerId",
			Message:  "No customer id configured, every accessible account will be extracted.",
		})
	}

	if cfg.Action == ActionRun {
		if strings.TrimSpace(cfg.Name) == "" {
			addError("parameters.name", `The child node "name" at path "root.parameters" must be configured.`)
		}
		if cfg.Query == "" {
			addError("parameters.query", `The child node "query" at path "root.parameters" must be configured.`)
		}
	}
	if cfg.RetryAttempts < 1 {
		addError("parameters.retryAttempts", "Retry attempts must be at least 1.")
	}
	if cfg.PageSize < 0 {
		addError("parameters.pageSize", "Page size must not be negative.")
	}

	since, sinceOK := resolveDate("since", p.Since, now, addError)
	until, untilOK := resolveDate("until", p.Until, now, addError)
	cfg.Since, cfg.Until = since, until
	if sinceOK && untilOK && since != "" && until != "" && since > until {
		addError("parameters.since", fmt.Sprintf("Date since %s is after until %s.", since, until))
	}

	cfg.DeveloperToken = p.DeveloperToken
	if cfg.DeveloperToken == "" {
		cfg.DeveloperToken = raw.ImageParameters.DeveloperToken
	}
	if cfg.DeveloperToken == "" {
		addError("parameters.#developerToken", "Developer token doesn't set.")
	}

	creds := raw.Authorization.OAuthAPI.Credentials
	oauth, err := parseOAuth(creds.AppKey, creds.AppSecret, creds.Data)
	if err != nil {
		addError("authorization.oauth_api.credentials", "OAuth Credentials is not set.")
	}
	cfg.OAuth = oauth

	if len(issues) > 0 {
		return nil, &ConfigError{Issues: issues}
	}
	cfg.Warnings = warnings
	return cfg, nil
}

// resolveDate applies the default range to a missing value and treats an
// explicit empty string as no filter.
func resolveDate(field string, value *string, now time.Time, addError func(path, msg string)) (string, bool) {
	v := DefaultDateRange
	if value != nil {
		v = strings.TrimSpace(*value)
	}
	if v == "" {
		return "", true
	}
	d, err := ParseDate(v, now)
	if err != nil {
		addError("parameters."+field, fmt.Sprintf("Date %s in configuration is invalid.", field))
		return "", false
	}
	return d.String(), true
}

func parseOAuth(appKey, appSecret, data string) (OAuth, error) {
	if appKey == "" || appSecret == "" || data == "" {
		return OAuth{}, errors.New("parseOAuth: credentials missing")
	}
	var tokens struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		return OAuth{}, fmt.Errorf("parseOAuth: decoding token data: %w", err)
	}
	if tokens.RefreshToken == "" {
		return OAuth{}, errors.New("parseOAuth: refresh token missing")
	}
	return OAuth{ClientID: appKey, ClientSecret: appSecret, RefreshToken: tokens.RefreshToken}, nil
}

// CustomerIDList renders the customer ids for logging.
func (c *Config) CustomerIDList() string {
	parts := make([]string, len(c.CustomerIDs))
	for i, id := range c.CustomerIDs {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}
