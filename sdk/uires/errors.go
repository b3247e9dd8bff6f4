package uires

import (
	"errors"
	"fmt"
)

// ErrUIResource is the base error for all resource construction failures.
// Every sentinel below wraps it, so callers can match the whole family with
// errors.Is(err, ErrUIResource).
var ErrUIResource = errors.New("ui resource")

var (
	// ErrInvalidURI reports a resource URI that does not use the ui:// scheme.
	ErrInvalidURI = fmt.Errorf("%w: invalid uri", ErrUIResource)
	// ErrInvalidContent reports a content variant with a missing or malformed payload.
	ErrInvalidContent = fmt.Errorf("%w: invalid content", ErrUIResource)
	// ErrEncoding reports a failure of the byte-to-text transform.
	ErrEncoding = fmt.Errorf("%w: encoding", ErrUIResource)
)
