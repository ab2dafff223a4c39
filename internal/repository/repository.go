package repository

import (
	"context"

	"github.com/sakif/blog/internal/model"
)

// UserRepository stores registered accounts.
//
// CreateUser returns an apperror.ErrConflict error when the username is taken;
// the lookups return apperror.ErrNotFound when nothing matches.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// PostRepository stores blog posts. Reads always join the author's username.
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id int64) (*model.PostView, error)
	ListPosts(ctx context.Context) ([]model.PostView, error)
	UpdatePost(ctx context.Context, id int64, title, body string) error
	DeletePost(ctx context.Context, id int64) error
}
