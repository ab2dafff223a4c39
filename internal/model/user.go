// Package model defines the data structures used throughout the application.
package model

// User represents a registered account.
//
// Users are created once by registration and never edited or removed by the
// application. Username is unique and case-sensitive; the store enforces the
// uniqueness, not the service.
//
// WHY json:"-" ON PasswordHash?
// The hash is the output of bcrypt and includes the salt. It is useless to a
// client and should never leave the server, even by accident in a debug dump.
type User struct {
	ID           int64  `json:"id"       db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-"        db:"password"`
}
