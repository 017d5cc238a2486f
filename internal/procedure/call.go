// Package procedure runs named calls through a fixed middleware chain and
// gates their input and output shapes.
package procedure

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

// CacheControlPrivate is set on every response that depends on the caller.
const CacheControlPrivate = "private, no-cache, no-store, must-revalidate"

// Identity is the authenticated caller, attached by the Authenticate step.
type Identity struct {
	UserID  string
	User    *domain.User
	Session *domain.Session
}

// Call carries the transport-independent parts of one request.
// ResponseHeader is written back to the client after the call returns.
type Call struct {
	Procedure      string
	RequestID      string
	Header         http.Header
	ResponseHeader http.Header
	RemoteAddr     string
	UserAgent      string
	// Input is the raw JSON argument. Empty means no input.
	Input    []byte
	Identity *Identity
}

// NewCall builds a Call from an HTTP request. The response header map is
// the caller's to flush.
func NewCall(r *http.Request, requestID string) *Call {
	return &Call{
		RequestID:      requestID,
		Header:         r.Header,
		ResponseHeader: make(http.Header),
		RemoteAddr:     r.RemoteAddr,
		UserAgent:      r.UserAgent(),
	}
}

// SessionToken returns the bearer token from the Authorization header, or
// else the value of the named session cookie.
func (c *Call) SessionToken(cookieName string) string {
	if auth := c.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	for _, line := range c.Header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, ck := range cookies {
			if ck.Name == cookieName {
				return ck.Value
			}
		}
	}
	return ""
}

// ClientIP is the remote address without its port.
func (c *Call) ClientIP() string {
	if host, _, err := net.SplitHostPort(c.RemoteAddr); err == nil {
		return host
	}
	return c.RemoteAddr
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller attached by Authenticate, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
