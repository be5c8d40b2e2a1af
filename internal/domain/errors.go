package domain

import "errors"

var (
	// ErrNotFound indicates a missing dataset file, run name, or collection.
	ErrNotFound = errors.New("not found")

	// ErrEmptyResult indicates an upstream search returned zero posts.
	// Zero posts is a hard error, never an empty success.
	ErrEmptyResult = errors.New("no posts found")

	// ErrEmptyAnswer indicates the language model returned an empty
	// response body.
	ErrEmptyAnswer = errors.New("empty answer from language model")
)
