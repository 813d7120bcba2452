package access

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shipview/shipview/pkg/contextkeys"
	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/httputil"
	"github.com/shipview/shipview/pkg/observability"
)

// ResourceFunc builds the resource descriptor for a request, typically from
// mux path variables.
type ResourceFunc func(r *http.Request) (Resource, error)

// Middleware guards routes with the access boundary
type Middleware struct {
	boundary *Boundary
	loginURL string
	logger   *observability.Logger
}

// NewMiddleware creates the boundary middleware
func NewMiddleware(boundary *Boundary, loginURL string, logger *observability.Logger) *Middleware {
	return &Middleware{
		boundary: boundary,
		loginURL: loginURL,
		logger:   logger,
	}
}

// Protect wraps a handler so it only runs when the boundary allows the
// request. The decision lands in the request context for the handler.
func (m *Middleware) Protect(resourceOf ResourceFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithLogger(r.Context(), m.logger)
		ctx = contextkeys.WithRequestID(ctx, uuid.NewString())
		r = r.WithContext(ctx)

		res, err := resourceOf(r)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}

		decision, err := m.boundary.Authorize(r, res)
		if err != nil {
			if credential.IsUpstream(err) {
				m.logger.WithError(err).Error("upstream collaborator unavailable")
				httputil.WriteBadGateway(w, "upstream unavailable")
				return
			}
			m.logger.WithError(err).Error("authorization failed")
			httputil.WriteInternalError(w, err)
			return
		}

		if !decision.Allowed {
			m.deny(w, r, decision)
			return
		}

		if decision.Subject != "" {
			ctx = contextkeys.WithSubject(ctx, decision.Subject)
		}
		ctx = contextkeys.WithDecision(ctx, decision)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProtectFunc is Protect for plain handler functions
func (m *Middleware) ProtectFunc(resourceOf ResourceFunc, next http.HandlerFunc) http.Handler {
	return m.Protect(resourceOf, next)
}

// deny writes the denial. Browser navigations without any credential are
// redirected to the login flow; everything else gets a bare 401. The two
// outcomes must stay observably different so raw-resource fetches from a
// browser can recover, while API clients get a plain denial.
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, decision *Decision) {
	if decision.Reason == ReasonNoCredential && wantsHTML(r) {
		http.Redirect(w, r, m.loginURL, http.StatusFound)
		return
	}
	httputil.WriteUnauthorized(w, "unauthorized")
}

// wantsHTML reports whether the client is a browser navigation rather than
// an API call.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// DecisionFrom retrieves the boundary decision stored for the request, or
// nil when the route was not protected.
func DecisionFrom(r *http.Request) *Decision {
	if d, ok := contextkeys.Decision(r.Context()).(*Decision); ok {
		return d
	}
	return nil
}
