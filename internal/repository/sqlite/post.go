package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/blog/internal/apperror"
	"github.com/sakif/blog/internal/model"
	"github.com/sakif/blog/internal/repository"
)

var _ repository.PostRepository = (*DB)(nil)

// selectPostView is the join shared by GetPost and ListPosts.
// The author's username comes along so no caller needs a second query.
const selectPostView = `
	SELECT p.id, p.author_id, p.created, p.title, p.body, u.username
	FROM post p JOIN user u ON p.author_id = u.id`

// CreatePost inserts a post and sets post.ID.
//
// Created is filled with the current UTC time unless the caller already set
// it. It is written from Go rather than left to the column default because
// CURRENT_TIMESTAMP only has second resolution, which makes posts written in
// the same second tie in the feed.
//
// The foreign key on author_id rejects posts by a user that does not exist.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	if post.Created.IsZero() {
		post.Created = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO post (author_id, created, title, body) VALUES (?, ?, ?, ?)`,
		post.AuthorID,
		post.Created,
		post.Title,
		post.Body,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new post id: %w", err)
	}
	post.ID = id

	return nil
}

// GetPost retrieves a single post joined with its author.
// Returns apperror.ErrNotFound if the post doesn't exist.
func (db *DB) GetPost(ctx context.Context, id int64) (*model.PostView, error) {
	var p model.PostView

	err := db.conn.QueryRowContext(ctx,
		selectPostView+` WHERE p.id = ?`,
		id,
	).Scan(&p.ID, &p.AuthorID, &p.Created, &p.Title, &p.Body, &p.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}

	return &p, nil
}

// ListPosts returns every post, newest first.
//
// The whole result is read into memory before returning: the feed is
// rendered once per request, and holding *sql.Rows open while a template
// executes would tie up a pooled connection for the duration of the render.
// Posts with the same timestamp fall back to id order, newest insert first.
func (db *DB) ListPosts(ctx context.Context) ([]model.PostView, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectPostView+` ORDER BY p.created DESC, p.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.PostView, 0)
	for rows.Next() {
		var p model.PostView
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Created, &p.Title, &p.Body, &p.Username); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}

// UpdatePost replaces a post's title and body.
//
// author_id and created are not in the SET list, so an update can never move
// a post to another author or reorder the feed. RowsAffected == 0 means the
// post was deleted after the caller checked it.
func (db *DB) UpdatePost(ctx context.Context, id int64, title, body string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE post SET title = ?, body = ? WHERE id = ?`,
		title,
		body,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Post", id)
	}

	return nil
}

// DeletePost removes a post permanently. There is no soft delete.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM post WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Post", id)
	}

	return nil
}
