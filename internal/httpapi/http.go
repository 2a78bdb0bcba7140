package httpapi

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux serves /healthz and /metrics, and /mcp when srv is not nil.
func NewMux(srv *mcp.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	mux.Handle("/metrics", promhttp.Handler())
	if srv != nil {
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return mux
}

func NewServer(addr string, srv *mcp.Server) *http.Server {
	return &http.Server{Addr: addr, Handler: NewMux(srv)}
}
