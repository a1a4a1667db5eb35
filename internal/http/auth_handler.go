package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"collections/internal/authstate"
	"collections/internal/identity"
	"collections/internal/metrics"
)

// exchangeFailedMessage is shown for every failed code exchange; provider
// details stay in the logs.
const exchangeFailedMessage = "Session creation failed"

// AuthHandlerConfig carries the settings the auth endpoints depend on.
type AuthHandlerConfig struct {
	// SiteURL prefixes every redirect back to the application.
	SiteURL string
	// OAuthProvider is used when /auth/login is called without ?provider.
	OAuthProvider string
	Environment   string
}

// AuthHandler serves the sign-in, callback and sign-out endpoints and owns
// the per-request session resolution used by the API.
type AuthHandler struct {
	provider      identity.Provider
	resolver      *sessionResolver
	cookies       cookieJar
	siteURL       string
	oauthProvider string
	metrics       metrics.Recorder
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. A nil recorder discards metrics.
func NewAuthHandler(provider identity.Provider, provisioner authstate.Provisioner, cfg AuthHandlerConfig, recorder metrics.Recorder, logger *slog.Logger) *AuthHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	cookies := newCookieJar(cfg.Environment)
	return &AuthHandler{
		provider: provider,
		resolver: &sessionResolver{
			provider:    provider,
			provisioner: provisioner,
			cookies:     cookies,
			metrics:     recorder,
			logger:      logger,
		},
		cookies:       cookies,
		siteURL:       strings.TrimSuffix(cfg.SiteURL, "/"),
		oauthProvider: cfg.OAuthProvider,
		metrics:       recorder,
		logger:        logger,
	}
}

// SessionMiddleware resolves the cookie session of every request and stores
// the auth state in the request context.
func (h *AuthHandler) SessionMiddleware() func(http.Handler) http.Handler {
	return newSessionMiddleware(h.resolver)
}

// Callback completes the authorization-code flow.
//
// A provider error wins over a code. A code is exchanged with the verifier
// persisted by Login; only a session carrying both tokens sets cookies. A
// panic while completing the flow still ends in a redirect home.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		h.logger.Error("oauth callback: unexpected failure", "panic", rec)
		h.metrics.RecordCallback(metrics.CallbackUnexpected)
		h.redirectWithError(w, r, "unexpected_error", "")
	}()

	query := r.URL.Query()

	if oauthErr := query.Get("error"); oauthErr != "" {
		message := query.Get("error_description")
		if message == "" {
			message = oauthErr
		}
		h.logger.Warn("oauth callback: provider error", "error", oauthErr, "description", query.Get("error_description"))
		h.metrics.RecordCallback(metrics.CallbackOAuthError)
		h.redirectWithError(w, r, "oauth_error", message)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.metrics.RecordCallback(metrics.CallbackNoCode)
		h.redirectWithError(w, r, "no_code", "")
		return
	}

	client := identity.NewClient(h.provider, identity.WithCodeVerifier(cookieValue(r, codeVerifierCookieName)))
	session, err := client.ExchangeCodeForSession(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: code exchange failed", "error", err, "kind", identity.KindOf(err))
		h.metrics.RecordCallback(metrics.CallbackExchangeFailed)
		h.redirectWithError(w, r, "exchange_failed", exchangeFailedMessage)
		return
	}
	if !session.HasTokens() {
		h.logger.Error("oauth callback: exchange returned incomplete session", "user_id", session.User.ID)
		h.metrics.RecordCallback(metrics.CallbackExchangeFailed)
		h.redirectWithError(w, r, "exchange_failed", exchangeFailedMessage)
		return
	}

	next := query.Get("next")
	if !isValidRedirectPath(next) {
		next = cookieValue(r, authNextCookieName)
	}
	if !isValidRedirectPath(next) {
		next = "/"
	}

	h.cookies.setSession(w, session)
	h.cookies.clearSignIn(w)
	h.metrics.RecordCallback(metrics.CallbackSuccess)
	h.logger.Info("oauth login successful", "user_id", session.User.ID)

	http.Redirect(w, r, h.siteURL+next, http.StatusFound)
}

// Login starts a PKCE sign-in and redirects to the provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	provider := strings.ToLower(strings.TrimSpace(query.Get("provider")))
	if provider == "" {
		provider = h.oauthProvider
	}
	if !isValidProviderName(provider) {
		writeError(w, http.StatusBadRequest, "invalid provider")
		return
	}

	next := query.Get("next")
	if !isValidRedirectPath(next) {
		next = ""
	}

	redirectTo := h.siteURL + "/auth/callback"
	if next != "" {
		redirectTo += "?next=" + url.QueryEscape(next)
	}

	client := identity.NewClient(h.provider)
	redirect, err := client.SignInWithOAuth(provider, redirectTo, map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	})
	if err != nil {
		h.logger.Error("oauth login: building authorize url failed", "provider", provider, "error", err)
		h.redirectWithError(w, r, "oauth_error", "Sign-in is unavailable")
		return
	}

	h.cookies.setSignIn(w, redirect.CodeVerifier, next)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// Logout revokes the session with the provider and clears the cookies. The
// cookies are cleared even when revocation fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	client := identity.NewClient(h.provider, identity.WithStoredSession(
		cookieValue(r, accessTokenCookieName),
		cookieValue(r, refreshTokenCookieName),
	))
	if err := client.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign out: provider revocation failed", "error", err, "kind", identity.KindOf(err))
	}

	h.cookies.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

type sessionRequest struct {
	URL      string `json:"url"`
	Fragment string `json:"fragment"`
}

type sessionRecoveryResponse struct {
	sessionResponse
	FragmentConsumed bool   `json:"fragmentConsumed"`
	CleanURL         string `json:"cleanUrl,omitempty"`
}

// Session completes an implicit-flow sign-in from URL fragment tokens. An
// existing cookie session takes precedence over the fragment.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	fragment := payload.Fragment
	if fragment == "" {
		fragment = identity.FragmentFromURL(payload.URL)
	}
	_, hasTokens := identity.ParseFragment(fragment)

	result := h.resolver.resolve(w, r, fragment)
	if hasTokens && !result.FragmentConsumed && result.Err != nil {
		writeError(w, http.StatusUnauthorized, "session rejected")
		return
	}

	response := sessionRecoveryResponse{
		sessionResponse:  newSessionResponse(result.State),
		FragmentConsumed: result.FragmentConsumed,
	}
	if payload.URL != "" {
		response.CleanURL = identity.StripFragment(payload.URL)
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message string) {
	target := h.siteURL + "/?error=" + encodeURIComponent(code)
	if message != "" {
		target += "&message=" + encodeURIComponent(message)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func isValidProviderName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return false
		}
	}
	return true
}
