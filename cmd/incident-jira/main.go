package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/yourorg/incident-jira/internal/config"
	"github.com/yourorg/incident-jira/internal/credential"
	"github.com/yourorg/incident-jira/internal/httpapi"
	"github.com/yourorg/incident-jira/internal/incident"
	"github.com/yourorg/incident-jira/internal/jira"
	"github.com/yourorg/incident-jira/internal/kube"
	"github.com/yourorg/incident-jira/internal/leader"
	"github.com/yourorg/incident-jira/internal/policy"
	"github.com/yourorg/incident-jira/internal/slack"
	"github.com/yourorg/incident-jira/internal/storage"
	"github.com/yourorg/incident-jira/internal/tools"
)

var version = "dev"

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", os.Getenv("INCIDENT_JIRA_CONFIG"), "path to a YAML config file")
	flag.Parse()
	defer klog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("config: %v", err)
	}
	if err := cfg.ResolveToken(keyringLookup); err != nil {
		klog.Fatalf("config: %v", err)
	}

	jcfg := cfg.Jira()
	jc, err := jira.New(jira.Config{
		BaseURL:    jcfg.BaseURL,
		UserEmail:  jcfg.UserEmail,
		APIToken:   jcfg.APIToken,
		ProjectKey: jcfg.ProjectKey,
		Timeout:    jcfg.Timeout,
	})
	if err != nil {
		klog.Fatalf("jira client: %v", err)
	}

	sink, err := newSink(ctx, cfg.Audit)
	if err != nil {
		klog.Fatalf("audit sink: %v", err)
	}
	opts := incident.Options{Sink: sink}
	if cfg.Slack.WebhookURL != "" {
		opts.Notifier = slack.New(cfg.Slack.WebhookURL)
	}
	filer := incident.NewFiler(jc, opts)
	srv := tools.NewServer(version, filer)

	if cfg.Watcher.Enabled {
		if err := startWatcher(ctx, cfg.Watcher, filer); err != nil {
			klog.Fatalf("pod watcher: %v", err)
		}
	}

	klog.InfoS("Starting MCP server", "name", tools.ServerName, "version", version, "transport", cfg.Server.Transport)
	switch cfg.Server.Transport {
	case "http":
		err = serveHTTP(ctx, cfg.Server.Addr, srv)
	default:
		// stdout carries the MCP stream; klog writes to stderr
		err = srv.Run(ctx, &mcp.StdioTransport{})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		klog.ErrorS(err, "Server failed")
		klog.Flush()
		os.Exit(1)
	}
}

func keyringLookup(key string) (string, error) {
	st, err := credential.Open()
	if err != nil {
		return "", err
	}
	return st.Get(key)
}

func newSink(ctx context.Context, a config.Audit) (storage.Sink, error) {
	switch a.Store {
	case "fs":
		return storage.NewFS(a.Path), nil
	case "s3":
		return storage.NewS3(ctx, a.S3Bucket, a.S3Prefix)
	default:
		return nil, nil
	}
}

func serveHTTP(ctx context.Context, addr string, srv *mcp.Server) error {
	hs := httpapi.NewServer(addr, srv)
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	klog.InfoS("HTTP listening", "addr", addr, "paths", []string{"/mcp", "/healthz", "/metrics"})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func startWatcher(ctx context.Context, wc config.Watcher, filer *incident.Filer) error {
	rc, err := restConfig(wc.Kubeconfig)
	if err != nil {
		return err
	}
	kc, err := kubernetes.NewForConfig(rc)
	if err != nil {
		return err
	}

	var isLeader func() bool
	if wc.LeaderElection {
		id, err := os.Hostname()
		if err != nil {
			return err
		}
		le, err := leader.Start(ctx, kc, wc.LeaseNamespace, wc.LeaseName, id)
		if err != nil {
			return err
		}
		isLeader = le.IsLeader
	}

	pol := policy.New(policy.Mode(wc.Mode), wc.Namespaces, wc.ExcludedAnnotation, wc.Cooldown)
	kube.NewWatcher(kc, pol, filer, isLeader).Start(ctx)
	return nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return rest.InClusterConfig()
}
