package generation

import "errors"

// Failure taxonomy of the generation pipeline. All three generation failures
// surface to the operator as one "generation failed" notice; callers that
// need to distinguish them match with errors.Is.
var (
	// ErrTimeout means the generation call exceeded its hard deadline.
	ErrTimeout = errors.New("generation timed out")

	// ErrParse means the response was not recoverable JSON or lacked the
	// mandatory hook field.
	ErrParse = errors.New("response was not parseable")

	// ErrNoCharacter means generation was requested with no active
	// character; checked before any call is issued.
	ErrNoCharacter = errors.New("no character selected")

	// ErrEmptyResponse means the provider returned an empty completion.
	ErrEmptyResponse = errors.New("empty response from provider")
)
