// Package incident files incident tickets and runs the best-effort actions
// that follow a successful filing (audit record, chat notification).
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/yourorg/incident-jira/internal/jira"
	"github.com/yourorg/incident-jira/internal/obs"
	"github.com/yourorg/incident-jira/internal/storage"
)

const (
	SourceTool    = "tool"
	SourceWatcher = "watcher"
)

// Ticket is one filing request. The Kubernetes fields are only set by the
// pod watcher and end up in the audit record.
type Ticket struct {
	Summary     string
	Description string
	Severity    string
	Source      string

	Namespace string
	Workload  string
	Pod       string
	Container string
	Node      string
	Reason    string
	LastLogs  string
	Events    []string
}

type TicketCreator interface {
	CreateIncidentTicket(ctx context.Context, summary, description, severity string) (*jira.IssueResult, error)
}

type Notifier interface {
	Post(ctx context.Context, text string) error
}

type Options struct {
	Sink     storage.Sink // optional
	Notifier Notifier     // optional
	Now      func() time.Time
}

type Filer struct {
	jira   TicketCreator
	sink   storage.Sink
	notify Notifier
	now    func() time.Time
}

func NewFiler(tc TicketCreator, opts Options) *Filer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Filer{jira: tc, sink: opts.Sink, notify: opts.Notifier, now: now}
}

// File creates the ticket. Errors from Jira are returned untouched; audit and
// notification failures are only logged.
func (f *Filer) File(ctx context.Context, t Ticket) (*jira.IssueResult, error) {
	src := t.Source
	if src == "" {
		src = SourceTool
	}
	res, err := f.jira.CreateIncidentTicket(ctx, t.Summary, t.Description, t.Severity)
	if err != nil {
		obs.TicketsTotal.WithLabelValues(src, outcome(err)).Inc()
		return nil, err
	}
	obs.TicketsTotal.WithLabelValues(src, obs.OutcomeCreated).Inc()

	f.audit(ctx, src, t, res)
	f.announce(ctx, t, res)
	return res, nil
}

func (f *Filer) audit(ctx context.Context, src string, t Ticket, res *jira.IssueResult) {
	if f.sink == nil {
		return
	}
	ts := f.now().UTC()
	sev := t.Severity
	if sev == "" {
		sev = jira.DefaultSeverity
	}
	rec := &storage.Record{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Source:    src,
		IssueKey:  res.Key,
		IssueURL:  res.URL,
		Summary:   t.Summary,
		Severity:  sev,
		Namespace: t.Namespace, Workload: t.Workload, Pod: t.Pod, Container: t.Container, Node: t.Node,
		Reason: t.Reason, LastLogs: t.LastLogs, Events: t.Events,
	}
	loc, err := f.sink.Save(ctx, storage.BuildKey(src, res.Key, ts), rec)
	if err != nil {
		obs.SideEffectFailures.WithLabelValues("audit").Inc()
		klog.ErrorS(err, "Saving audit record failed", "key", res.Key)
		return
	}
	klog.V(2).InfoS("Audit record saved", "key", res.Key, "location", loc)
}

func (f *Filer) announce(ctx context.Context, t Ticket, res *jira.IssueResult) {
	if f.notify == nil {
		return
	}
	msg := fmt.Sprintf("*Jira ticket filed* %s: %s (%s)", res.Key, t.Summary, res.URL)
	if err := f.notify.Post(ctx, msg); err != nil {
		obs.SideEffectFailures.WithLabelValues("slack").Inc()
		klog.ErrorS(err, "Slack notification failed", "key", res.Key)
	}
}

func outcome(err error) string {
	var rerr *jira.RemoteError
	switch {
	case errors.Is(err, jira.ErrMissingField):
		return obs.OutcomeInvalid
	case errors.As(err, &rerr), errors.Is(err, jira.ErrMalformedResponse):
		return obs.OutcomeRejected
	default:
		return obs.OutcomeTransportError
	}
}
