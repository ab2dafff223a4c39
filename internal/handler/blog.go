package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/blog/internal/apperror"
	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/service"
)

// BlogHandler serves the feed and post CRUD.
//
// Routes that change posts are mounted behind auth.RequireLogin, so those
// handlers can rely on a current user. Ownership is checked by the service.
type BlogHandler struct {
	posts  *service.PostService
	render *Renderer
	logger *slog.Logger
}

// NewBlogHandler creates a BlogHandler.
func NewBlogHandler(posts *service.PostService, render *Renderer, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{
		posts:  posts,
		render: render,
		logger: logger,
	}
}

// postInputFromForm reads the title/body fields as typed.
func postInputFromForm(r *http.Request) service.PostInput {
	return service.PostInput{
		Title: r.PostForm.Get("title"),
		Body:  r.PostForm.Get("body"),
	}
}

// postID reads the {id} URL parameter.
//
// The router only matches digits, so the only failure left is a number too
// large for int64. No such post can exist, so that is a 404.
func (h *BlogHandler) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.render.Error(w, r, &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: fmt.Sprintf("Post id %s doesn't exist.", raw),
		})
		return 0, false
	}
	return id, true
}

// HandleHello is a plain-text liveness page.
//
// HTTP: GET /hello
func (h *BlogHandler) HandleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Hello, World!")
}

// HandleIndex shows the feed, newest post first.
//
// HTTP: GET /
func (h *BlogHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListFeed(r.Context())
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Page(w, r, http.StatusOK, pageIndex, &PageData{Posts: posts})
}

// HandleDetail shows one post to anyone.
//
// HTTP: GET /{id}
func (h *BlogHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	user, _ := auth.CurrentUser(r.Context())
	post, err := h.posts.GetPost(r.Context(), id, user, false)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Page(w, r, http.StatusOK, pageDetail, &PageData{Post: post})
}

// HandleCreateForm shows the new-post form.
//
// HTTP: GET /create (login required)
func (h *BlogHandler) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render.Page(w, r, http.StatusOK, pageCreate, nil)
}

// HandleCreate stores a new post by the current user.
//
// HTTP: POST /create (login required)
//
// A missing title is flashed and the form comes back empty: what was typed
// is not echoed back.
func (h *BlogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.render.parseForm(w, r) {
		return
	}

	user, _ := auth.CurrentUser(r.Context())
	if _, err := h.posts.Create(r.Context(), user, postInputFromForm(r)); err != nil {
		if flashRecoverable(r, err) {
			h.render.Page(w, r, http.StatusOK, pageCreate, nil)
			return
		}
		h.render.Error(w, r, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleUpdateForm shows the edit form, filled with the stored post.
//
// HTTP: GET /{id}/update (login required, author only)
func (h *BlogHandler) HandleUpdateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	user, _ := auth.CurrentUser(r.Context())
	post, err := h.posts.GetPost(r.Context(), id, user, true)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Page(w, r, http.StatusOK, pageUpdate, &PageData{Post: post})
}

// HandleUpdate saves the edited title and body.
//
// HTTP: POST /{id}/update (login required, author only)
//
// NotFound and Forbidden end the request before the form is looked at. A
// missing title is flashed and the form is shown again with the stored
// values, not the submitted ones.
func (h *BlogHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	if !h.render.parseForm(w, r) {
		return
	}

	user, _ := auth.CurrentUser(r.Context())
	err := h.posts.Update(r.Context(), user, id, postInputFromForm(r))
	if err == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if !flashRecoverable(r, err) {
		h.render.Error(w, r, err)
		return
	}

	post, err := h.posts.GetPost(r.Context(), id, user, true)
	if err != nil {
		h.render.Error(w, r, err)
		return
	}
	h.render.Page(w, r, http.StatusOK, pageUpdate, &PageData{Post: post})
}

// HandleDelete removes a post.
//
// HTTP: POST /{id}/delete (login required, author only)
func (h *BlogHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	user, _ := auth.CurrentUser(r.Context())
	if err := h.posts.Delete(r.Context(), user, id); err != nil {
		h.render.Error(w, r, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}
