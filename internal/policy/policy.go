package policy

import (
	"strings"
	"sync"
	"time"
)

type Mode string

const (
	Observe Mode = "observe"
	File    Mode = "file"
)

// Policy decides which pod failures the watcher turns into tickets.
type Policy struct {
	Mode               Mode
	NamespaceAllow     map[string]struct{}
	ExcludedAnnotation string
	Cooldown           time.Duration

	now  func() time.Time
	mu   sync.Mutex
	last map[string]time.Time
}

// New builds a policy. An empty namespace list allows every namespace.
func New(mode Mode, namespaces []string, excludedAnnotation string, cooldown time.Duration) *Policy {
	ns := map[string]struct{}{}
	for _, n := range namespaces {
		n = strings.TrimSpace(n)
		if n != "" {
			ns[n] = struct{}{}
		}
	}
	if mode == "" {
		mode = File
	}
	return &Policy{
		Mode:               mode,
		NamespaceAllow:     ns,
		ExcludedAnnotation: excludedAnnotation,
		Cooldown:           cooldown,
		now:                time.Now,
		last:               map[string]time.Time{},
	}
}

func (p *Policy) Allowed(ns string) bool {
	if len(p.NamespaceAllow) == 0 {
		return true
	}
	_, ok := p.NamespaceAllow[ns]
	return ok
}

func (p *Policy) Excluded(annotations map[string]string) bool {
	if p.ExcludedAnnotation == "" || annotations == nil {
		return false
	}
	_, ok := annotations[p.ExcludedAnnotation]
	return ok
}

// Acquire reports whether key is outside its cooldown and, if so, starts a
// new cooldown window for it.
func (p *Policy) Acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if t, ok := p.last[key]; ok && now.Sub(t) < p.Cooldown {
		return false
	}
	p.last[key] = now
	p.gc(now)
	return true
}

// Release forgets key so the next detection is not held back, used when
// filing failed.
func (p *Policy) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.last, key)
}

func (p *Policy) gc(now time.Time) {
	for k, t := range p.last {
		if now.Sub(t) >= p.Cooldown {
			delete(p.last, k)
		}
	}
}
