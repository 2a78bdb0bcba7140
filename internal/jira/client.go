package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/yourorg/incident-jira/internal/obs"
)

const (
	createIssuePath = "/rest/api/3/issue"
	summaryPrefix   = "[k8s incident] "
	DefaultSeverity = "MEDIUM"
	issueType       = "Task"
)

type Config struct {
	BaseURL    string
	UserEmail  string
	APIToken   string
	ProjectKey string
	// HTTPClient is used as is when set. Otherwise a client with Timeout
	// (zero meaning none) is created.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client files incident tickets in a single Jira project. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	baseURL    string
	projectKey string
	auth       string
	http       *http.Client
}

type IssueResult struct {
	Key string `json:"key" jsonschema:"Jira issue key, e.g. PROJ-123"`
	URL string `json:"url" jsonschema:"Browsable URL of the issue"`
}

type IssueRequest struct {
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Project     ProjectRef `json:"project"`
	Summary     string     `json:"summary"`
	Description Document   `json:"description"`
	IssueType   IssueType  `json:"issuetype"`
}

type ProjectRef struct {
	Key string `json:"key"`
}

type IssueType struct {
	Name string `json:"name"`
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	switch {
	case base == "":
		return nil, &ConfigError{Field: "base URL", Reason: "is required"}
	case strings.TrimSpace(cfg.UserEmail) == "":
		return nil, &ConfigError{Field: "user email", Reason: "is required"}
	case strings.TrimSpace(cfg.APIToken) == "":
		return nil, &ConfigError{Field: "API token", Reason: "is required"}
	case strings.TrimSpace(cfg.ProjectKey) == "":
		return nil, &ConfigError{Field: "project key", Reason: "is required"}
	}
	u, err := url.ParseRequestURI(base)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, &ConfigError{Field: "base URL", Reason: "must be an absolute http(s) URL"}
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		baseURL:    base,
		projectKey: cfg.ProjectKey,
		auth:       "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.UserEmail+":"+cfg.APIToken)),
		http:       hc,
	}
	klog.InfoS("Jira client initialized", "baseURL", base, "projectKey", cfg.ProjectKey, "user", maskEmail(cfg.UserEmail))
	return c, nil
}

func (c *Client) BaseURL() string    { return c.baseURL }
func (c *Client) ProjectKey() string { return c.projectKey }

// BuildIssueRequest returns the create issue payload for an incident. An
// empty severity means DefaultSeverity.
func BuildIssueRequest(projectKey, summary, description, severity string) IssueRequest {
	if severity == "" {
		severity = DefaultSeverity
	}
	return IssueRequest{Fields: IssueFields{
		Project:     ProjectRef{Key: projectKey},
		Summary:     summaryPrefix + summary,
		Description: TextDocument(description + "\n\nSeverity: " + severity),
		IssueType:   IssueType{Name: issueType},
	}}
}

// CreateIncidentTicket files one Task. Every call creates a new issue.
// Non-2xx answers come back as *RemoteError; transport errors are returned
// exactly as net/http produced them.
func (c *Client) CreateIncidentTicket(ctx context.Context, summary, description, severity string) (*IssueResult, error) {
	if strings.TrimSpace(summary) == "" || strings.TrimSpace(description) == "" {
		return nil, ErrMissingField
	}
	klog.InfoS("Creating Jira ticket", "summary", summary, "severity", severity)

	b, err := json.Marshal(BuildIssueRequest(c.projectKey, summary, description, severity))
	if err != nil {
		return nil, err
	}
	klog.V(4).InfoS("Jira request body", "body", string(b))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createIssuePath, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	obs.JiraRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		klog.ErrorS(err, "Unexpected error when calling Jira API")
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		klog.ErrorS(err, "Reading Jira response failed", "status", resp.StatusCode)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := &RemoteError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
		klog.ErrorS(rerr, "Jira API error", "status", resp.StatusCode, "body", string(body))
		return nil, rerr
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		merr := &MalformedResponseError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
		klog.ErrorS(merr, "Jira response is not JSON", "status", resp.StatusCode, "body", string(body))
		return nil, merr
	}
	if out.Key == "" {
		merr := &MalformedResponseError{StatusCode: resp.StatusCode, Body: string(body)}
		klog.ErrorS(merr, "Jira response has no key", "status", resp.StatusCode, "body", string(body))
		return nil, merr
	}

	klog.InfoS("Jira issue created", "key", out.Key, "response", string(body))
	return &IssueResult{Key: out.Key, URL: c.baseURL + "/browse/" + out.Key}, nil
}

// maskEmail keeps the first character and the domain: a***@example.com.
func maskEmail(s string) string {
	user, dom, ok := strings.Cut(s, "@")
	if !ok {
		return strings.Repeat("*", len(s))
	}
	if len(user) <= 1 {
		return "*@" + dom
	}
	return user[:1] + strings.Repeat("*", len(user)-1) + "@" + dom
}
