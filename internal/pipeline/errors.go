package pipeline

import "errors"

var (
	// ErrInvalidUpload covers empty payloads and unusable filenames.
	ErrInvalidUpload = errors.New("invalid upload")

	ErrKeyExpired        = errors.New("ephemeral key expired for job")
	ErrBufferUnavailable = errors.New("buffer unavailable, re-upload required")
	ErrContentMismatch   = errors.New("file content does not match its declared type")
	ErrExtraction        = errors.New("document extraction failed")
	ErrStructuralLimit   = errors.New("structural limit exceeded")
	ErrInternal          = errors.New("internal processing error")

	ErrNotFound  = errors.New("not found")
	ErrExpired   = errors.New("content expired")
	ErrForbidden = errors.New("forbidden")
	ErrNotReady  = errors.New("content not ready")
)
