package http

import (
	"net/http"

	"collections/internal/authstate"
	"collections/internal/identity"
	"collections/internal/profiles"
)

// sessionResponse is the public view of an auth state. It never carries tokens.
type sessionResponse struct {
	Status         authstate.Status  `json:"status"`
	Loading        bool              `json:"loading"`
	User           *identity.User    `json:"user"`
	Profile        *profiles.Profile `json:"profile"`
	IsAdmin        bool              `json:"isAdmin"`
	HasAdminAccess bool              `json:"hasAdminAccess"`
}

func newSessionResponse(state authstate.State) sessionResponse {
	access := authstate.AccessFrom(state)
	return sessionResponse{
		Status:         state.Status,
		Loading:        access.Loading,
		User:           state.User,
		Profile:        state.Profile,
		IsAdmin:        access.IsAdmin,
		HasAdminAccess: access.HasAdminAccess,
	}
}

// SessionHandler reports the auth state resolved for the current request.
type SessionHandler struct{}

// NewSessionHandler returns a SessionHandler.
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Status returns the caller's auth state. Anonymous callers get 200 with
// status "anonymous" so the browser can render a sign-in prompt.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, ok := StateFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(state))
}
