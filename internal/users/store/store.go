// Package store persists user records.
//
// Both implementations enforce email and username uniqueness atomically with
// the insert: a Create that loses a race returns models.ErrEmailTaken or
// models.ErrUsernameTaken and writes nothing.
package store
