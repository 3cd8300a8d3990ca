package lghttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxRequestSize bounds how much of a request body a server reads.
const MaxRequestSize = 1 << 20

// Server serves a [lgtransport.Handler] until its context is cancelled.
type Server struct {
	done chan struct{}
}

type ServerConfig struct {
	Listener net.Listener

	Handler lgtransport.Handler
}

func NewServer(ctx context.Context, log *slog.Logger, cfg ServerConfig) *Server {
	srv := &http.Server{
		Handler: otelhttp.NewHandler(NewMux(log, cfg.Handler), "ledger"),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s := &Server{
		done: make(chan struct{}),
	}
	go s.serve(log, cfg.Listener, srv)
	go s.waitForShutdown(ctx, srv)

	return s
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *Server) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

// NewMux returns the router serving h on [LedgerPath].
func NewMux(log *slog.Logger, h lgtransport.Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc(LedgerPath, handleLedger(log, h)).Methods("POST")

	return r
}

func handleLedger(log *slog.Logger, h lgtransport.Handler) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, MaxRequestSize))
		if err != nil {
			http.Error(w, "failed to read request: "+err.Error(), http.StatusBadRequest)
			return
		}

		reply, err := h.HandleRequest(req.Context(), body)
		if err != nil {
			log.Debug("Handler failed", "remote", req.RemoteAddr, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(reply); err != nil {
			log.Warn("Failed to write reply", "remote", req.RemoteAddr, "err", err)
		}
	}
}
