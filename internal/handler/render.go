package handler

// RENDERING AND ERROR PAGES:
// Every page goes through Renderer.Page so that all of them get the same
// layout data: the current user for the nav bar and the flash messages
// waiting in the session.
//
// TEMPLATE COMPOSITION:
// Each page file is parsed together with base.html:
//   - base.html defines "base", the whole document, with {{block "content" .}}
//   - blog/index.html defines {{define "content"}}...{{end}} to fill it in
//
// One template set per page, so two pages can both define "content".
//
// ERROR MAPPING:
// Services return apperror values; this file decides what the visitor sees.
//
//	ErrNotFound   → 404 page with the message ("Post id 7 doesn't exist.")
//	ErrForbidden  → 403 page, no detail
//	anything else → 500 page, logged with the request id
//
// Validation, login, and duplicate-user errors never get here: handlers
// flash them and re-render the form (see flashRecoverable).

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/blog/internal/apperror"
	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/model"
)

// Page template names, relative to the templates directory.
const (
	pageIndex    = "blog/index.html"
	pageDetail   = "blog/detail.html"
	pageCreate   = "blog/create.html"
	pageUpdate   = "blog/update.html"
	pageRegister = "auth/register.html"
	pageLogin    = "auth/login.html"
	pageError    = "error.html"
)

var pages = []string{
	pageIndex, pageDetail, pageCreate, pageUpdate,
	pageRegister, pageLogin, pageError,
}

// PageData is what every template receives.
// User and Flashes are filled in by Renderer.Page.
type PageData struct {
	User    *model.User
	Flashes []string

	Posts []model.PostView
	Post  *model.PostView

	// Error page only.
	Status  int
	Message string
}

// Renderer holds the parsed page templates.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses base.html together with every page from templates.
// Parsing happens once at startup; a broken template fails here, not on the
// first request.
func NewRenderer(templates fs.FS, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2006-01-02") },
	}

	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templates, "base.html", page)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s: %w", page, err)
		}
		parsed[page] = tmpl
	}

	return &Renderer{pages: parsed, logger: logger}, nil
}

// Page renders a page with the given status.
//
// The output is buffered first. A template error therefore becomes a clean
// 500 instead of half a page, and popping the flashes (which modifies the
// session) happens before the header goes out, so the updated cookie is
// still sent.
func (rn *Renderer) Page(w http.ResponseWriter, r *http.Request, status int, page string, data *PageData) {
	if data == nil {
		data = &PageData{}
	}
	id := auth.IdentityFromContext(r.Context())
	data.User = id.User
	data.Flashes = id.Session.PopFlashes()

	tmpl, ok := rn.pages[page]
	if !ok {
		rn.internal(w, r, fmt.Errorf("handler: unknown page %q", page))
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		rn.internal(w, r, fmt.Errorf("handler: rendering %s: %w", page, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		rn.logger.Warn("writing response", slog.String("error", err.Error()))
	}
}

// Error ends the request with the error page that matches err.
func (rn *Renderer) Error(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		var msg string
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		rn.errorPage(w, r, http.StatusNotFound, msg)
	case errors.Is(err, apperror.ErrForbidden):
		rn.errorPage(w, r, http.StatusForbidden, "")
	default:
		rn.internal(w, r, err)
	}
}

// NotFound renders the plain 404 page. Used for unknown routes.
func (rn *Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rn.errorPage(w, r, http.StatusNotFound, "")
}

// MethodNotAllowed renders the 405 page.
func (rn *Renderer) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	rn.errorPage(w, r, http.StatusMethodNotAllowed, "")
}

func (rn *Renderer) errorPage(w http.ResponseWriter, r *http.Request, status int, message string) {
	rn.Page(w, r, status, pageError, &PageData{Status: status, Message: message})
}

// internal logs err and sends a generic 500. It never renders a template,
// since the template itself may be what failed.
//
// NEVER expose the error text to the visitor: it can contain SQL or paths.
func (rn *Renderer) internal(w http.ResponseWriter, r *http.Request, err error) {
	rn.logger.Error("request failed",
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// flashRecoverable queues err's message for the next page if err is one the
// visitor can fix by resubmitting the form. It reports whether it did.
func flashRecoverable(r *http.Request, err error) bool {
	if !apperror.IsRecoverable(err) {
		return false
	}
	msg := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	auth.IdentityFromContext(r.Context()).Session.AddFlash(msg)
	return true
}

// maxFormBytes caps a submitted form. Posts are plain text.
const maxFormBytes = 1 << 20

// parseForm reads the submitted form into r.PostForm, or ends the request
// with a 400 page.
func (rn *Renderer) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		rn.logger.Debug("unreadable form", slog.String("error", err.Error()))
		rn.errorPage(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return false
	}
	return true
}
