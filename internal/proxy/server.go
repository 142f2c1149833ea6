package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miragesec/mirage/internal/audit"
	"github.com/miragesec/mirage/internal/config"
	"github.com/miragesec/mirage/internal/decision"
	"github.com/miragesec/mirage/internal/decoy"
	"github.com/miragesec/mirage/internal/logging"
	"github.com/miragesec/mirage/internal/metrics"
	"github.com/miragesec/mirage/internal/netutil"
	"github.com/miragesec/mirage/internal/notify"
	"github.com/miragesec/mirage/internal/state"
)

type ctxKey int

const requestIDKey ctxKey = iota

// Server is the deception reverse proxy: it accepts traffic on the listen
// port and, per request, either relays it to the target origin or answers
// with a registered decoy.
type Server struct {
	cfg     *config.Config
	target  *url.URL
	forward *httputil.ReverseProxy
	store   *state.Store
	audit   *audit.Logger
	metrics *metrics.Metrics
	notify  *notify.WebhookNotifier
	trusted map[string]bool
	httpSrv *http.Server
}

// NewServer builds the proxy. An unparseable target origin is a startup
// error; everything else degrades at request time.
func NewServer(cfg *config.Config, store *state.Store, auditLog *audit.Logger, m *metrics.Metrics) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := url.Parse(cfg.Server.TargetOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid target origin: %w", err)
	}

	trusted := make(map[string]bool, len(cfg.Policy.TrustedIPs))
	for _, ip := range cfg.Policy.TrustedIPs {
		trusted[netutil.CanonicalIP(ip)] = true
	}

	s := &Server{
		cfg:     cfg,
		target:  target,
		store:   store,
		audit:   auditLog,
		metrics: m,
		notify:  notify.NewWebhookNotifier(&cfg.Notify),
		trusted: trusted,
	}

	forward := httputil.NewSingleHostReverseProxy(target)
	forward.Transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseTimeoutSeconds) * time.Second,
		ForceAttemptHTTP2:     true,
	}
	forward.ErrorHandler = s.handleUpstreamError
	s.forward = forward

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.ListenPort),
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return s, nil
}

// Start binds the listener and serves until Shutdown. A bind failure is
// the one fatal startup condition.
func (s *Server) Start() error {
	logging.Info("[PROXY] Listening on :%d -> %s (aggressive=%v, trusted=%d)",
		s.cfg.Server.ListenPort, s.target, s.cfg.Policy.Aggressive, len(s.trusted))

	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey, reqID))

	// A failing request must never take the listener down; answer the one
	// affected connection and keep serving. The response is the same plain
	// 502 an upstream failure produces, so nothing internal leaks.
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Error("[PROXY] req=%s panic while handling %s %s: %v", reqID, r.Method, r.URL.Path, rec)
			writeBadGateway(w)
		}
	}()

	clientIP := netutil.ClientIP(r.RemoteAddr)

	// Decoys exist only for plain request/response exchanges. Upgrade
	// traffic (websockets and friends) is relayed as-is.
	if isUpgradeRequest(r) {
		logging.Debug("[PROXY] req=%s relaying %s upgrade for %s", reqID, r.Header.Get("Upgrade"), r.URL.Path)
		s.metrics.UpgradeRelayed()
		s.forward.ServeHTTP(w, r)
		return
	}

	registry := s.store.LoadDeceptions()
	rec, matched := decoy.Resolve(r.URL.Path, registry)

	outcome := decision.Evaluate(decision.Input{
		DecoyMatched: matched,
		ClientIP:     clientIP,
		TrustedIPs:   s.trusted,
		Suspicious:   s.store.LoadSuspiciousIPs(),
		Aggressive:   s.cfg.Policy.Aggressive,
	})

	if outcome == decision.ServeDecoy {
		s.serveDecoy(w, r, clientIP, rec)
		return
	}

	s.audit.Proxied(clientIP, r.Method, r.URL.RequestURI())
	s.metrics.Proxied()
	s.forward.ServeHTTP(w, r)
}

func (s *Server) serveDecoy(w http.ResponseWriter, r *http.Request, clientIP string, rec decoy.Record) {
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Response-Type", rec.ResponseType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(rec.Content)); err != nil {
		logging.Debug("[PROXY] Decoy write to %s aborted: %v", clientIP, err)
	}

	logging.Info("[PROXY] Served %s decoy for %s to %s", rec.ResponseType, r.URL.Path, clientIP)
	s.audit.DecoyServed(clientIP, r.Method, r.URL.RequestURI(), r.URL.Path, rec.ResponseType)
	s.metrics.DecoyServed(rec.ResponseType)
	s.notify.DecoyServed(netutil.CanonicalIP(clientIP), r.Method, r.URL.Path, rec.ResponseType)
}

// handleUpstreamError answers a failed forward with a plain 502. Failures
// are isolated to the connection being forwarded.
func (s *Server) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := r.Context().Value(requestIDKey).(string)
	logging.Error("[PROXY] req=%s upstream %s failed for %s %s: %v", reqID, s.target, r.Method, r.URL.Path, err)
	s.metrics.UpstreamError()
	writeBadGateway(w)
}

func writeBadGateway(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	fmt.Fprintln(w, "Bad Gateway")
}

func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}
