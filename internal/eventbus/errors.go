package eventbus

import "errors"

// ErrClosed is returned by Publish/Subscribe calls made after Close.
var ErrClosed = errors.New("eventbus: closed")
