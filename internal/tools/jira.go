// Package tools registers the incident ticket tool on an MCP server.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"k8s.io/klog/v2"

	"github.com/yourorg/incident-jira/internal/incident"
	"github.com/yourorg/incident-jira/internal/jira"
	"github.com/yourorg/incident-jira/internal/obs"
)

const (
	ServerName       = "incident-jira"
	CreateTicket     = "createJiraTicket"
	createTicketDesc = "Create a Jira issue. Usually used to record an incident or an error."
)

type CreateTicketArgs struct {
	Summary     string `json:"summary" jsonschema:"Issue title"`
	Description string `json:"description" jsonschema:"Issue details; include the error message, service name and namespace where possible"`
	Severity    string `json:"severity,omitempty" jsonschema:"Severity such as LOW, MEDIUM or HIGH (optional, defaults to MEDIUM)"`
}

type Filer interface {
	File(ctx context.Context, t incident.Ticket) (*jira.IssueResult, error)
}

// NewServer returns an MCP server with every tool registered.
func NewServer(version string, f Filer) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	Register(s, f)
	return s
}

func Register(s *mcp.Server, f Filer) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        CreateTicket,
		Title:       "Create Jira Ticket",
		Description: createTicketDesc,
	}, createTicketHandler(f))
}

func createTicketHandler(f Filer) mcp.ToolHandlerFor[CreateTicketArgs, jira.IssueResult] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args CreateTicketArgs) (*mcp.CallToolResult, jira.IssueResult, error) {
		klog.InfoS("Tool call", "tool", CreateTicket, "summary", args.Summary, "severity", args.Severity)
		if strings.TrimSpace(args.Summary) == "" {
			obs.TicketsTotal.WithLabelValues(incident.SourceTool, obs.OutcomeInvalid).Inc()
			return nil, jira.IssueResult{}, fmt.Errorf("missing required argument: summary")
		}
		if strings.TrimSpace(args.Description) == "" {
			obs.TicketsTotal.WithLabelValues(incident.SourceTool, obs.OutcomeInvalid).Inc()
			return nil, jira.IssueResult{}, fmt.Errorf("missing required argument: description")
		}
		res, err := f.File(ctx, incident.Ticket{
			Summary:     args.Summary,
			Description: args.Description,
			Severity:    strings.TrimSpace(args.Severity),
			Source:      incident.SourceTool,
		})
		if err != nil {
			klog.V(2).InfoS("Tool call failed", "tool", CreateTicket, "err", err)
			return nil, jira.IssueResult{}, err
		}
		return nil, *res, nil
	}
}
