package http

import (
	"net/http"
	"strings"
	"time"

	"collections/internal/identity"
)

const (
	accessTokenCookieName  = "access-token"
	refreshTokenCookieName = "refresh-token"
	codeVerifierCookieName = "code-verifier"
	authNextCookieName     = "auth-next"

	accessTokenCookieTTL  = 7 * 24 * time.Hour
	refreshTokenCookieTTL = 30 * 24 * time.Hour
	codeVerifierCookieTTL = 10 * time.Minute

	// authCookiePath scopes the sign-in cookies to the /auth endpoints.
	authCookiePath = "/auth"
)

// cookieJar writes the session and sign-in cookies with consistent attributes.
type cookieJar struct {
	secure bool
}

func newCookieJar(environment string) cookieJar {
	return cookieJar{secure: strings.EqualFold(strings.TrimSpace(environment), "production")}
}

// setSession persists both tokens. Sessions without a refresh token are not
// persisted and report false.
func (j cookieJar) setSession(w http.ResponseWriter, session *identity.Session) bool {
	if !session.HasTokens() {
		return false
	}
	j.set(w, accessTokenCookieName, session.AccessToken, "/", accessTokenCookieTTL)
	j.set(w, refreshTokenCookieName, session.RefreshToken, "/", refreshTokenCookieTTL)
	return true
}

func (j cookieJar) clearSession(w http.ResponseWriter) {
	j.clear(w, accessTokenCookieName, "/")
	j.clear(w, refreshTokenCookieName, "/")
}

func (j cookieJar) setSignIn(w http.ResponseWriter, verifier, next string) {
	j.set(w, codeVerifierCookieName, verifier, authCookiePath, codeVerifierCookieTTL)
	if next != "" {
		j.set(w, authNextCookieName, next, authCookiePath, codeVerifierCookieTTL)
	} else {
		j.clear(w, authNextCookieName, authCookiePath)
	}
}

func (j cookieJar) clearSignIn(w http.ResponseWriter) {
	j.clear(w, codeVerifierCookieName, authCookiePath)
	j.clear(w, authNextCookieName, authCookiePath)
}

func (j cookieJar) set(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (j cookieJar) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
