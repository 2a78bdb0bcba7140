package leader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/klog/v2"
)

type Elector struct{ leader atomic.Bool }

func (e *Elector) IsLeader() bool { return e != nil && e.leader.Load() }

// Start campaigns for the Lease namespace/name until ctx is cancelled.
func Start(ctx context.Context, kc kubernetes.Interface, namespace, name, identity string) (*Elector, error) {
	e := &Elector{}
	lock, err := resourcelock.New(resourcelock.LeasesResourceLock, namespace, name,
		kc.CoreV1(), kc.CoordinationV1(), resourcelock.ResourceLockConfig{Identity: identity})
	if err != nil {
		return nil, fmt.Errorf("creating lease lock %s/%s: %w", namespace, name, err)
	}
	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock: lock, ReleaseOnCancel: true,
		LeaseDuration: 15 * time.Second, RenewDeadline: 10 * time.Second, RetryPeriod: 2 * time.Second,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(context.Context) {
				klog.InfoS("Acquired leadership", "lease", namespace+"/"+name, "identity", identity)
				e.leader.Store(true)
			},
			OnStoppedLeading: func() {
				klog.InfoS("Lost leadership", "lease", namespace+"/"+name, "identity", identity)
				e.leader.Store(false)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("leader election config: %w", err)
	}
	go le.Run(ctx)
	return e, nil
}
