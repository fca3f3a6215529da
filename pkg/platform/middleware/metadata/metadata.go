// Package metadata resolves who is calling: the client address for logs and
// the authenticated participant address asserted by the upstream auth proxy.
package metadata

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"consent-ledger/internal/identity"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/requestcontext"
)

const (
	// MaxXFFHeaderLength bounds X-Forwarded-For before it is parsed.
	MaxXFFHeaderLength = 500

	// CallerHeader carries the address the auth proxy authenticated.
	CallerHeader = "X-Authenticated-Address"
)

type Config struct {
	// TrustedProxies may set X-Forwarded-For and the caller header. When
	// empty, forwarding headers are ignored and the caller header is
	// accepted from any peer, which suits a service only reachable through
	// the proxy.
	TrustedProxies []netip.Prefix
}

// ParseTrustedProxies parses a comma separated CIDR list.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

type Middleware struct {
	config Config
	logger *slog.Logger
}

func NewMiddleware(cfg Config, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{config: cfg, logger: logger}
}

// ClientIP stores the resolved client address in the context.
func (m *Middleware) ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), m.extractClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Caller attaches the asserted caller when present and well formed, without
// requiring one. Read routes use it so audit logs still name the caller.
func (m *Middleware) Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := m.callerFrom(r); ok {
			r = r.WithContext(requestcontext.WithCaller(r.Context(), addr))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCaller rejects requests without a trusted, well-formed caller header.
func (m *Middleware) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, ok := m.callerFrom(r)
		if !ok {
			ctx := r.Context()
			m.logger.WarnContext(ctx, "unauthenticated request",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid "+CallerHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(r.Context(), addr)))
	})
}

func (m *Middleware) callerFrom(r *http.Request) (identity.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return identity.Address{}, false
	}
	if len(m.config.TrustedProxies) > 0 && !m.isTrustedProxy(parseRemoteAddr(r.RemoteAddr)) {
		return identity.Address{}, false
	}
	addr, err := identity.Parse(raw)
	if err != nil || addr.IsZero() {
		return identity.Address{}, false
	}
	return addr, true
}

func (m *Middleware) extractClientIP(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}
	if !m.isTrustedProxy(remoteIP) {
		return remoteIP
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && len(xri) <= MaxXFFHeaderLength {
			return xri
		}
		return remoteIP
	}
	if len(xff) > MaxXFFHeaderLength {
		return remoteIP
	}

	// The first hop is the original client.
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if _, err := netip.ParseAddr(first); err != nil {
		return remoteIP
	}
	return first
}

func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr strips the port from RemoteAddr.
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if addrPort, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return addrPort.Addr().String()
	}
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 && !strings.Contains(remoteAddr[:idx], ":") {
		return remoteAddr[:idx]
	}
	return strings.Trim(remoteAddr, "[]")
}
