package model

import "time"

// Post is a single blog entry as stored in the post table.
//
// Created is set once on insert and is the only sort key of the feed.
// Title and Body are the only fields an update may change; AuthorID and
// Created stay as they were.
type Post struct {
	ID       int64     `json:"id"       db:"id"`
	AuthorID int64     `json:"authorId" db:"author_id"`
	Created  time.Time `json:"created"  db:"created"`
	Title    string    `json:"title"    db:"title"`
	Body     string    `json:"body"     db:"body"`
}

// PostView is a Post joined with its author's username.
//
// Every read path (feed, single post, ownership check) returns this shape so
// templates can show "by alice on 2024-01-02" without a second query.
type PostView struct {
	Post
	Username string `json:"username" db:"username"`
}

// IsAuthor reports whether the given user wrote the post.
// A nil user is never the author.
func (p PostView) IsAuthor(u *User) bool {
	return u != nil && u.ID == p.AuthorID
}
