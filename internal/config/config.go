package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yourorg/incident-jira/internal/credential"
	"github.com/yourorg/incident-jira/internal/policy"
)

type Jira struct {
	BaseURL    string        `mapstructure:"base-url"`
	UserEmail  string        `mapstructure:"user-email"`
	APIToken   string        `mapstructure:"api-token"`
	ProjectKey string        `mapstructure:"project-key"`
	Keyring    bool          `mapstructure:"keyring"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Server struct {
	// Transport is "stdio" or "http".
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
}

type Audit struct {
	// Store is "none", "fs" or "s3".
	Store    string `mapstructure:"store"`
	Path     string `mapstructure:"path"`
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Prefix string `mapstructure:"s3-prefix"`
}

type Slack struct {
	WebhookURL string `mapstructure:"webhook-url"`
}

type Watcher struct {
	Enabled            bool          `mapstructure:"enabled"`
	Mode               string        `mapstructure:"mode"`
	Namespaces         []string      `mapstructure:"namespaces"`
	ExcludedAnnotation string        `mapstructure:"excluded-annotation"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	Kubeconfig         string        `mapstructure:"kubeconfig"`
	LeaderElection     bool          `mapstructure:"leader-election"`
	LeaseNamespace     string        `mapstructure:"lease-namespace"`
	LeaseName          string        `mapstructure:"lease-name"`
}

type Config struct {
	Incident struct {
		Jira Jira `mapstructure:"jira"`
	} `mapstructure:"incident"`
	Server  Server  `mapstructure:"server"`
	Audit   Audit   `mapstructure:"audit"`
	Slack   Slack   `mapstructure:"slack"`
	Watcher Watcher `mapstructure:"watcher"`
}

func (c *Config) Jira() Jira { return c.Incident.Jira }

var defaults = map[string]any{
	"incident.jira.keyring":       false,
	"incident.jira.timeout":       "30s",
	"server.transport":            "stdio",
	"server.addr":                 ":8080",
	"audit.store":                 "none",
	"audit.path":                  "/var/log/incident-jira",
	"watcher.enabled":             false,
	"watcher.mode":                string(policy.File),
	"watcher.excluded-annotation": "incident-jira.io/ignore",
	"watcher.cooldown":            "30m",
	"watcher.leader-election":     true,
	"watcher.lease-namespace":     "kube-system",
	"watcher.lease-name":          "incident-jira-leader",
}

// extra environment names accepted besides the derived ones
// (incident.jira.base-url -> INCIDENT_JIRA_BASE_URL).
var aliases = map[string][]string{
	"incident.jira.base-url":    {"JIRA_INSTANCE_URL"},
	"incident.jira.user-email":  {"JIRA_USER_EMAIL"},
	"incident.jira.api-token":   {"JIRA_API_TOKEN"},
	"incident.jira.project-key": {"JIRA_PROJECT_KEY"},
	"watcher.kubeconfig":        {"KUBECONFIG"},
}

var keys = []string{
	"incident.jira.base-url", "incident.jira.user-email", "incident.jira.api-token", "incident.jira.project-key",
	"incident.jira.keyring", "incident.jira.timeout",
	"server.transport", "server.addr",
	"audit.store", "audit.path", "audit.s3-bucket", "audit.s3-prefix",
	"slack.webhook-url",
	"watcher.enabled", "watcher.mode", "watcher.namespaces", "watcher.excluded-annotation", "watcher.cooldown",
	"watcher.kubeconfig", "watcher.leader-election", "watcher.lease-namespace", "watcher.lease-name",
}

var envKey = strings.NewReplacer(".", "_", "-", "_")

// Load reads path (YAML, optional) and the environment. Environment wins.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		names := append([]string{strings.ToUpper(envKey.Replace(k))}, aliases[k]...)
		if err := v.BindEnv(append([]string{k}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pe *os.PathError
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &pe) && !errors.As(err, &nf) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Watcher.Namespaces = splitList(cfg.Watcher.Namespaces)
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport: unknown transport %q (want stdio or http)", c.Server.Transport)
	}
	switch c.Audit.Store {
	case "none", "fs":
	case "s3":
		if c.Audit.S3Bucket == "" {
			return errors.New("audit.s3-bucket is required when audit.store is s3")
		}
	default:
		return fmt.Errorf("audit.store: unknown store %q (want none, fs or s3)", c.Audit.Store)
	}
	if c.Watcher.Enabled {
		switch policy.Mode(c.Watcher.Mode) {
		case policy.Observe, policy.File:
		default:
			return fmt.Errorf("watcher.mode: unknown mode %q (want observe or file)", c.Watcher.Mode)
		}
		if c.Watcher.Cooldown < 0 {
			return errors.New("watcher.cooldown must not be negative")
		}
	}
	return nil
}

// ResolveToken fills the Jira API token from the keyring when it is not
// configured and keyring lookup is enabled.
func (c *Config) ResolveToken(get func(key string) (string, error)) error {
	j := &c.Incident.Jira
	if j.APIToken != "" || !j.Keyring {
		return nil
	}
	tok, err := get(credential.JiraTokenKey)
	if err != nil {
		return fmt.Errorf("resolving Jira API token from keyring: %w", err)
	}
	j.APIToken = tok
	return nil
}
