package kube

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"

	"github.com/yourorg/incident-jira/internal/incident"
	"github.com/yourorg/incident-jira/internal/jira"
	"github.com/yourorg/incident-jira/internal/obs"
	"github.com/yourorg/incident-jira/internal/policy"
)

const maxLogBytes = 4000

type Filer interface {
	File(ctx context.Context, t incident.Ticket) (*jira.IssueResult, error)
}

// Watcher turns failing pods into incident tickets.
type Watcher struct {
	kc       kubernetes.Interface
	pol      *policy.Policy
	filer    Filer
	isLeader func() bool
}

// NewWatcher builds a watcher. A nil isLeader means this replica always files.
func NewWatcher(kc kubernetes.Interface, pol *policy.Policy, f Filer, isLeader func() bool) *Watcher {
	if isLeader == nil {
		isLeader = func() bool { return true }
	}
	return &Watcher{kc: kc, pol: pol, filer: f, isLeader: isLeader}
}

type detection struct {
	Reason    string
	Severity  string
	Container string
	LogLines  int64
}

// Start runs the pod informer until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	f := informers.NewSharedInformerFactory(w.kc, 0)
	inf := f.Core().V1().Pods().Informer()

	inf.AddEventHandler(cache.ResourceEventHandlerFuncs{
		UpdateFunc: func(oldObj, newObj interface{}) {
			pod, ok := newObj.(*corev1.Pod)
			if !ok {
				return
			}
			if !w.pol.Allowed(pod.Namespace) || w.pol.Excluded(pod.Annotations) {
				return
			}
			if d, ok := detect(pod); ok {
				go w.handle(ctx, pod.DeepCopy(), d)
			}
		},
	})
	go inf.Run(ctx.Done())
	klog.InfoS("Pod watcher started", "mode", w.pol.Mode, "cooldown", w.pol.Cooldown)
}

func detect(pod *corev1.Pod) (detection, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			switch cs.State.Waiting.Reason {
			case "CrashLoopBackOff":
				return detection{Reason: "CrashLoopBackOff", Severity: "HIGH", Container: cs.Name, LogLines: 50}, true
			case "ImagePullBackOff", "ErrImagePull":
				return detection{Reason: "ImagePullBackOff", Severity: "MEDIUM", Container: cs.Name}, true
			}
		}
		if cs.LastTerminationState.Terminated != nil && cs.LastTerminationState.Terminated.Reason == "OOMKilled" {
			return detection{Reason: "OOMKilled", Severity: "HIGH", Container: cs.Name, LogLines: 20}, true
		}
	}
	return detection{}, false
}

func (w *Watcher) handle(ctx context.Context, pod *corev1.Pod, d detection) {
	ns, name := pod.Namespace, pod.Name
	if !w.isLeader() {
		klog.V(4).InfoS("Not leader, skipping detection", "pod", klog.KObj(pod), "reason", d.Reason)
		return
	}
	workload := ownerName(pod)
	key := ns + "/" + workload + "/" + d.Reason
	if !w.pol.Acquire(key) {
		klog.V(4).InfoS("Detection in cooldown", "key", key)
		return
	}
	obs.WatcherDetections.WithLabelValues(d.Reason, ns).Inc()

	if w.pol.Mode == policy.Observe {
		klog.InfoS("Pod failure detected (observe mode, not filing)", "pod", klog.KObj(pod), "container", d.Container, "reason", d.Reason)
		return
	}

	var logs string
	if d.LogLines > 0 {
		logs = getLastLogs(ctx, w.kc, ns, name, d.Container, d.LogLines)
	}
	events := collectEvents(ctx, w.kc, ns, name)

	t := incident.Ticket{
		Summary:     fmt.Sprintf("%s on %s/%s", d.Reason, ns, name),
		Description: describe(pod, workload, d, logs, events),
		Severity:    d.Severity,
		Source:      incident.SourceWatcher,
		Namespace:   ns,
		Workload:    workload,
		Pod:         name,
		Container:   d.Container,
		Node:        pod.Spec.NodeName,
		Reason:      d.Reason,
		LastLogs:    logs,
		Events:      events,
	}
	res, err := w.filer.File(ctx, t)
	if err != nil {
		klog.ErrorS(err, "Filing incident ticket failed", "pod", klog.KObj(pod), "reason", d.Reason)
		w.pol.Release(key)
		return
	}
	klog.InfoS("Incident ticket filed", "pod", klog.KObj(pod), "reason", d.Reason, "key", res.Key, "url", res.URL)
}

func describe(pod *corev1.Pod, workload string, d detection, logs string, events []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s detected by the pod watcher.\n\n", d.Reason)
	fmt.Fprintf(&b, "Namespace: %s\nWorkload: %s\nPod: %s\nContainer: %s\n", pod.Namespace, workload, pod.Name, d.Container)
	if pod.Spec.NodeName != "" {
		fmt.Fprintf(&b, "Node: %s\n", pod.Spec.NodeName)
	}
	if img := imageOf(pod, d.Container); img != "" {
		fmt.Fprintf(&b, "Image: %s\n", img)
	}
	if len(events) > 0 {
		b.WriteString("\nEvents:\n")
		for _, e := range events {
			b.WriteString(e + "\n")
		}
	}
	if logs != "" {
		if len(logs) > maxLogBytes {
			logs = "..." + logs[len(logs)-maxLogBytes:]
		}
		b.WriteString("\nLast logs:\n" + logs)
	}
	return strings.TrimRight(b.String(), "\n")
}

func getLastLogs(ctx context.Context, kc kubernetes.Interface, ns, pod, container string, lines int64) string {
	opts := &corev1.PodLogOptions{Container: container, TailLines: &lines}
	req := kc.CoreV1().Pods(ns).GetLogs(pod, opts)
	r, err := req.Stream(ctx)
	if err != nil {
		return fmt.Sprintf("log fetch error: %v", err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	return string(b)
}

func collectEvents(ctx context.Context, kc kubernetes.Interface, ns, pod string) []string {
	evs, err := kc.CoreV1().Events(ns).List(ctx, metav1.ListOptions{FieldSelector: fields.OneTermEqualSelector("involvedObject.name", pod).String()})
	if err != nil {
		klog.V(2).InfoS("Listing events failed", "namespace", ns, "pod", pod, "err", err)
		return nil
	}
	out := make([]string, 0, len(evs.Items))
	for _, e := range evs.Items {
		out = append(out, fmt.Sprintf("%s %s: %s", e.Type, e.Reason, e.Message))
	}
	return out
}

func ownerName(p *corev1.Pod) string {
	for _, o := range p.OwnerReferences {
		if o.Controller != nil && *o.Controller {
			return fmt.Sprintf("%s/%s", strings.ToLower(o.Kind), o.Name)
		}
	}
	return "pod/" + p.Name
}

func imageOf(p *corev1.Pod, cname string) string {
	for _, c := range p.Spec.Containers {
		if c.Name == cname {
			return c.Image
		}
	}
	return ""
}
