// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages, redirects
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes the SQLite file
//
// Handlers know about status codes and templates; services know about
// business rules; neither knows about SQL.
//
// THE DEPENDENCY CHAIN:
//
//	server.New creates:  DB → Services → Handlers
//	At runtime:          Handler calls Service calls Repository calls DB
//
// Services take repository interfaces, not *sqlite.DB, so tests pass
// in-memory fakes (see post_test.go and auth_test.go).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/blog/internal/apperror"
	"github.com/sakif/blog/internal/model"
	"github.com/sakif/blog/internal/repository"
)

// PostInput is the create/update form.
type PostInput struct {
	Title string
	Body  string
}

// validate enforces the only rule on post content: a title.
// The body may be empty.
func (in PostInput) validate() error {
	if in.Title == "" {
		return apperror.ValidationFailed("title", "Title is required.")
	}
	return nil
}

// PostService handles posts and the feed.
type PostService struct {
	repo   repository.PostRepository
	logger *slog.Logger
}

// NewPostService creates a new PostService.
func NewPostService(repo repository.PostRepository, logger *slog.Logger) *PostService {
	return &PostService{
		repo:   repo,
		logger: logger,
	}
}

// ListFeed returns every post with its author's username, newest first.
func (s *PostService) ListFeed(ctx context.Context) ([]model.PostView, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	return posts, nil
}

// GetPost fetches a post joined with its author's username.
//
// OWNERSHIP CHECK:
// With checkAuthor set, the post is only returned when viewer wrote it;
// anyone else (including a nil viewer) gets a Forbidden error that says
// nothing about the post. Display-only callers pass checkAuthor=false.
//
// NotFound is checked first, so a missing id is 404 for everybody.
func (s *PostService) GetPost(ctx context.Context, id int64, viewer *model.User, checkAuthor bool) (*model.PostView, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/post: fetching post %d: %w", id, err)
	}

	if checkAuthor && !post.IsAuthor(viewer) {
		var viewerID int64
		if viewer != nil {
			viewerID = viewer.ID
		}
		s.logger.Warn("post access denied",
			slog.Int64("postID", id),
			slog.Int64("viewerID", viewerID),
		)
		return nil, apperror.Forbidden("forbidden")
	}

	return post, nil
}

// Create validates and stores a new post written by author.
// On a validation error nothing is written.
func (s *PostService) Create(ctx context.Context, author *model.User, in PostInput) (*model.Post, error) {
	if author == nil {
		return nil, errors.New("service/post: author must not be nil")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := &model.Post{
		AuthorID: author.ID,
		Title:    in.Title,
		Body:     in.Body,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.Int64("authorID", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("postID", post.ID),
		slog.Int64("authorID", post.AuthorID),
	)

	return post, nil
}

// Update replaces the title and body of a post viewer owns.
//
// ORDER OF CHECKS:
//  1. The ownership-checked fetch (NotFound, then Forbidden)
//  2. Title validation
//  3. The write
//
// created and author_id never change. Two concurrent updates are both
// applied in arrival order; the later one wins.
func (s *PostService) Update(ctx context.Context, viewer *model.User, id int64, in PostInput) error {
	if _, err := s.GetPost(ctx, id, viewer, true); err != nil {
		return err
	}
	if err := in.validate(); err != nil {
		return err
	}

	// A delete racing in between the check and here surfaces as NotFound.
	if err := s.repo.UpdatePost(ctx, id, in.Title, in.Body); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/post: updating post %d: %w", id, err)
	}

	s.logger.Info("post updated", slog.Int64("postID", id))
	return nil
}

// Delete removes a post viewer owns. There is no soft delete.
func (s *PostService) Delete(ctx context.Context, viewer *model.User, id int64) error {
	if _, err := s.GetPost(ctx, id, viewer, true); err != nil {
		return err
	}

	if err := s.repo.DeletePost(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/post: deleting post %d: %w", id, err)
	}

	s.logger.Info("post deleted", slog.Int64("postID", id))
	return nil
}
