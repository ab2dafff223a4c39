package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/blog/internal/model"
)

// LoginPath is where RequireLogin sends anonymous visitors.
const LoginPath = "/auth/login"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue accepts any key. A plain string key could be read or
// shadowed by any package that knows the string. Only this package can build
// a contextKey, so only this package can reach the identity.
type contextKey string

const identityKey contextKey = "identity"

// Identity is what LoadIdentity attaches to every request: the decoded
// session and, when it names an existing user, that user.
type Identity struct {
	Session *Session
	User    *model.User
}

// UserResolver turns the session's user id into a user.
// It returns (nil, nil) when the id names no user.
type UserResolver interface {
	ResolveCurrentUser(ctx context.Context, id int64) (*model.User, error)
}

// LoadIdentity is a middleware that runs before every handler.
//
// It decodes the session cookie, looks up the user it names, and stores the
// result in the request context. It never blocks a request: a visitor whose
// cookie is missing, invalid, or names a deleted user is simply anonymous.
//
// COOKIE WRITE-BACK:
// Handlers change the session (login, logout, flash) but the Set-Cookie
// header has to go out before the first byte of the body. The ResponseWriter
// is wrapped so the session is saved at the moment the handler first writes,
// which covers both redirects and rendered pages.
func LoadIdentity(store *SessionStore, users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := store.Load(r)
			id := &Identity{Session: sess}

			if userID, ok := sess.UserID(); ok {
				user, err := users.ResolveCurrentUser(r.Context(), userID)
				if err != nil {
					logger.Error("loading current user",
						slog.Int64("user_id", userID),
						slog.String("error", err.Error()),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				id.User = user
			}

			sw := &sessionWriter{
				ResponseWriter: w,
				store:          store,
				session:        sess,
				logger:         logger,
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(sw, r.WithContext(ctx))

			// A handler that wrote nothing still gets its session saved.
			sw.save()
		})
	}
}

// RequireLogin is a middleware for routes that need a logged-in user.
// Anonymous visitors are redirected to the login page and the wrapped
// handler does not run.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the identity LoadIdentity stored.
//
// Outside LoadIdentity it returns an anonymous identity with a fresh session,
// so callers never need a nil check.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok && id != nil {
		return id
	}
	return &Identity{Session: &Session{}}
}

// CurrentUser returns the logged-in user, or (nil, false) for an anonymous
// request.
func CurrentUser(ctx context.Context) (*model.User, bool) {
	u := IdentityFromContext(ctx).User
	return u, u != nil
}

// sessionWriter saves the session cookie just before the response header
// goes out.
type sessionWriter struct {
	http.ResponseWriter
	store   *SessionStore
	session *Session
	logger  *slog.Logger
	saved   bool
}

func (w *sessionWriter) WriteHeader(code int) {
	w.save()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *sessionWriter) save() {
	if w.saved {
		return
	}
	w.saved = true

	if !w.session.Modified() {
		return
	}
	if err := w.store.Save(w.ResponseWriter, w.session); err != nil {
		w.logger.Error("saving session", slog.String("error", err.Error()))
	}
}
