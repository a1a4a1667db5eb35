package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"collections/internal/authstate"
	"collections/internal/identity"
	"collections/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const stateContextKey contextKey = "auth-state"

// StateFromContext extracts the auth state resolved by the session middleware.
// The bool is false when the middleware did not run for this request.
func StateFromContext(ctx context.Context) (authstate.State, bool) {
	state, ok := ctx.Value(stateContextKey).(authstate.State)
	return state, ok
}

func withState(ctx context.Context, state authstate.State) context.Context {
	return context.WithValue(ctx, stateContextKey, state)
}

// sessionResolver turns the session cookies of a request into an auth state.
// Each call owns its own identity client and bootstrapper.
type sessionResolver struct {
	provider    identity.Provider
	provisioner authstate.Provisioner
	cookies     cookieJar
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// resolve bootstraps the session stored in the request cookies, falling back
// to implicit-flow tokens in fragment. Refreshed or newly adopted tokens are
// written back; a stored session the provider rejected is cleared.
func (s *sessionResolver) resolve(w http.ResponseWriter, r *http.Request, fragment string) authstate.Result {
	storedAccess := cookieValue(r, accessTokenCookieName)
	storedRefresh := cookieValue(r, refreshTokenCookieName)

	client := identity.NewClient(s.provider, identity.WithStoredSession(storedAccess, storedRefresh))

	// Listeners run on this goroutine, so latest needs no lock.
	var latest *identity.Session
	sub := client.OnAuthStateChange(func(event identity.ChangeEvent) {
		switch event.Kind {
		case identity.EventTokenRefreshed:
			s.metrics.RecordSessionRefreshed()
			latest = event.Session
		case identity.EventSignedIn:
			latest = event.Session
		case identity.EventSignedOut:
			latest = nil
		}
	})
	defer sub.Unsubscribe()

	bootstrapper := authstate.NewBootstrapper(client, s.provisioner, s.logger)
	defer bootstrapper.Close()

	result := bootstrapper.Run(r.Context(), fragment)

	switch {
	case latest != nil:
		if !s.cookies.setSession(w, latest) && result.FragmentConsumed {
			s.logger.Warn("fragment session not persisted", "reason", "missing refresh token")
			result.FragmentConsumed = false
			result.Err = errSessionNotPersisted
		}
	case (storedAccess != "" || storedRefresh != "") && isRejected(result.Err):
		s.logger.Info("clearing rejected session", "kind", identity.KindOf(result.Err))
		s.metrics.RecordSessionRejected()
		s.cookies.clearSession(w)
	}
	return result
}

// errSessionNotPersisted is reported for adopted sessions that cannot be kept
// in cookies.
var errSessionNotPersisted = &identity.Error{Kind: identity.ErrKindMalformed, Message: "session is missing a refresh token"}

// isRejected reports whether err means the stored tokens can never succeed.
// Network and provider outages keep the cookies for a later retry.
func isRejected(err error) bool {
	switch identity.KindOf(err) {
	case identity.ErrKindUnauthorized, identity.ErrKindInvalidGrant, identity.ErrKindMalformed:
		return true
	default:
		return false
	}
}

func newSessionMiddleware(resolver *sessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := resolver.resolve(w, r, "")
			next.ServeHTTP(w, r.WithContext(withState(r.Context(), result.State)))
		})
	}
}

// requireAuthenticated rejects requests without a signed-in user.
func requireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := StateFromContext(r.Context())
		if !authstate.AccessFrom(state).IsAuthenticated {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin enforces the admin gate. A decision that is still loading is
// reported as temporarily unavailable rather than as a denial.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := StateFromContext(r.Context())
		access := authstate.AccessFrom(state)
		decision := access.RequireAdmin()

		switch {
		case decision.Authorized:
			next.ServeHTTP(w, r)
		case decision.Loading:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "authorization pending")
		case !access.IsAuthenticated:
			unauthorized(w)
		default:
			writeError(w, http.StatusForbidden, "admin access required")
		}
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
