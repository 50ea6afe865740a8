package jobs

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrTooLarge        = errors.New("file exceeds size limit")
)
