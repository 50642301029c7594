package link

import "errors"

// ErrShortHeader is returned by DecodeHeader when its input is not exactly
// 5 bytes; the engine always passes a full 5-byte header.
var ErrShortHeader = errors.New("link: short header")
