package kube

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/yourorg/incident-jira/internal/incident"
	"github.com/yourorg/incident-jira/internal/jira"
	"github.com/yourorg/incident-jira/internal/policy"
)

type recordingFiler struct {
	mu      sync.Mutex
	tickets []incident.Ticket
	err     error
}

func (f *recordingFiler) File(_ context.Context, t incident.Ticket) (*jira.IssueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets = append(f.tickets, t)
	if f.err != nil {
		return nil, f.err
	}
	return &jira.IssueResult{Key: "PROJ-1", URL: "https://j/browse/PROJ-1"}, nil
}

func (f *recordingFiler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func crashingPod() *corev1.Pod {
	ctrl := true
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "prod", Name: "payments-7d9f-abcde",
			OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "payments-7d9f", Controller: &ctrl}},
		},
		Spec: corev1.PodSpec{
			NodeName:   "node-1",
			Containers: []corev1.Container{{Name: "app", Image: "registry/payments:1.4.2"}},
		},
		Status: corev1.PodStatus{ContainerStatuses: []corev1.ContainerStatus{{
			Name:  "app",
			State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}},
		}}},
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name   string
		status corev1.ContainerStatus
		want   detection
		ok     bool
	}{
		{
			name:   "crash loop",
			status: corev1.ContainerStatus{Name: "a", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}}},
			want:   detection{Reason: "CrashLoopBackOff", Severity: "HIGH", Container: "a", LogLines: 50},
			ok:     true,
		},
		{
			name:   "err image pull",
			status: corev1.ContainerStatus{Name: "b", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "ErrImagePull"}}},
			want:   detection{Reason: "ImagePullBackOff", Severity: "MEDIUM", Container: "b"},
			ok:     true,
		},
		{
			name:   "oom killed",
			status: corev1.ContainerStatus{Name: "c", LastTerminationState: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "OOMKilled"}}},
			want:   detection{Reason: "OOMKilled", Severity: "HIGH", Container: "c", LogLines: 20},
			ok:     true,
		},
		{
			name:   "healthy",
			status: corev1.ContainerStatus{Name: "d", State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
		},
		{
			name:   "container creating",
			status: corev1.ContainerStatus{Name: "e", State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "ContainerCreating"}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pod := &corev1.Pod{Status: corev1.PodStatus{ContainerStatuses: []corev1.ContainerStatus{tc.status}}}
			got, ok := detect(pod)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHandle_FilesTicket(t *testing.T) {
	pod := crashingPod()
	kc := fake.NewSimpleClientset(pod, &corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Namespace: "prod", Name: "ev1"},
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Namespace: "prod", Name: pod.Name},
		Type:           "Warning", Reason: "BackOff", Message: "Back-off restarting failed container",
	})
	f := &recordingFiler{}
	w := NewWatcher(kc, policy.New(policy.File, nil, "", time.Hour), f, nil)

	d, ok := detect(pod)
	require.True(t, ok)
	w.handle(context.Background(), pod, d)

	require.Equal(t, 1, f.count())
	tk := f.tickets[0]
	assert.Equal(t, "CrashLoopBackOff on prod/payments-7d9f-abcde", tk.Summary)
	assert.Equal(t, "HIGH", tk.Severity)
	assert.Equal(t, incident.SourceWatcher, tk.Source)
	assert.Equal(t, "replicaset/payments-7d9f", tk.Workload)
	assert.Equal(t, "node-1", tk.Node)
	assert.Equal(t, []string{"Warning BackOff: Back-off restarting failed container"}, tk.Events)
	assert.Equal(t, "fake logs", tk.LastLogs)
	assert.Contains(t, tk.Description, "Image: registry/payments:1.4.2")
	assert.Contains(t, tk.Description, "Last logs:\nfake logs")
}

func TestHandle_Cooldown(t *testing.T) {
	pod := crashingPod()
	f := &recordingFiler{}
	w := NewWatcher(fake.NewSimpleClientset(pod), policy.New(policy.File, nil, "", time.Hour), f, nil)
	d, _ := detect(pod)

	w.handle(context.Background(), pod, d)
	w.handle(context.Background(), pod, d)
	assert.Equal(t, 1, f.count())
}

func TestHandle_FailureReleasesCooldown(t *testing.T) {
	pod := crashingPod()
	f := &recordingFiler{err: errors.New("jira down")}
	w := NewWatcher(fake.NewSimpleClientset(pod), policy.New(policy.File, nil, "", time.Hour), f, nil)
	d, _ := detect(pod)

	w.handle(context.Background(), pod, d)
	w.handle(context.Background(), pod, d)
	assert.Equal(t, 2, f.count())
}

func TestHandle_ObserveModeDoesNotFile(t *testing.T) {
	pod := crashingPod()
	f := &recordingFiler{}
	w := NewWatcher(fake.NewSimpleClientset(pod), policy.New(policy.Observe, nil, "", time.Hour), f, nil)
	d, _ := detect(pod)

	w.handle(context.Background(), pod, d)
	assert.Equal(t, 0, f.count())
}

func TestHandle_NotLeader(t *testing.T) {
	pod := crashingPod()
	f := &recordingFiler{}
	w := NewWatcher(fake.NewSimpleClientset(pod), policy.New(policy.File, nil, "", time.Hour), f, func() bool { return false })
	d, _ := detect(pod)

	w.handle(context.Background(), pod, d)
	assert.Equal(t, 0, f.count())
}

func TestDescribe_TruncatesLogs(t *testing.T) {
	pod := crashingPod()
	logs := strings.Repeat("x", maxLogBytes+100)
	out := describe(pod, "replicaset/payments-7d9f", detection{Reason: "OOMKilled", Container: "app"}, logs, nil)

	assert.True(t, strings.HasPrefix(out, "OOMKilled detected by the pod watcher."))
	assert.Contains(t, out, "Last logs:\n..."+strings.Repeat("x", maxLogBytes))
	assert.NotContains(t, out, "Events:")
}

func TestOwnerName(t *testing.T) {
	assert.Equal(t, "replicaset/payments-7d9f", ownerName(crashingPod()))
	assert.Equal(t, "pod/lonely", ownerName(&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "lonely"}}))
}
