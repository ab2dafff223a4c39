package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/service"
)

// AuthHandler serves registration, login, and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegisterForm / HandleRegister → create an account, then go to login
//   - HandleLoginForm / HandleLogin       → check credentials, start a session
//   - HandleLogout                        → end the session
//
// The AuthService checks credentials; this handler owns the session.
type AuthHandler struct {
	auth   *service.AuthService
	render *Renderer
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, render *Renderer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		render: render,
		logger: logger,
	}
}

// credentialsFromForm reads the username/password fields.
// Absent fields are empty strings; the service rejects them.
func credentialsFromForm(r *http.Request) service.Credentials {
	return service.Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
}

// HandleRegisterForm shows the registration form.
//
// HTTP: GET /auth/register
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render.Page(w, r, http.StatusOK, pageRegister, nil)
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
//
// On success the visitor is sent to the login page; registering does not
// log anyone in. A missing field or a taken username is flashed and the
// form shown again, empty.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.render.parseForm(w, r) {
		return
	}

	if _, err := h.auth.Register(r.Context(), credentialsFromForm(r)); err != nil {
		if flashRecoverable(r, err) {
			h.render.Page(w, r, http.StatusOK, pageRegister, nil)
			return
		}
		h.render.Error(w, r, err)
		return
	}

	http.Redirect(w, r, auth.LoginPath, http.StatusFound)
}

// HandleLoginForm shows the login form.
//
// HTTP: GET /auth/login
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render.Page(w, r, http.StatusOK, pageLogin, nil)
}

// HandleLogin starts a session.
//
// HTTP: POST /auth/login
//
// SESSION FIXATION:
// Whatever the session held before (another user's id, stale flashes) is
// cleared before the new user id goes in, so nothing carries over from a
// previous login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.render.parseForm(w, r) {
		return
	}

	user, err := h.auth.Authenticate(r.Context(), credentialsFromForm(r))
	if err != nil {
		if flashRecoverable(r, err) {
			h.render.Page(w, r, http.StatusOK, pageLogin, nil)
			return
		}
		h.render.Error(w, r, err)
		return
	}

	sess := auth.IdentityFromContext(r.Context()).Session
	sess.Clear()
	sess.SetUserID(user.ID)

	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout clears the session, whether or not anyone was logged in.
//
// HTTP: GET /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id.User != nil {
		h.logger.Info("user logged out", slog.Int64("userID", id.User.ID))
	}
	id.Session.Clear()

	http.Redirect(w, r, "/", http.StatusFound)
}
