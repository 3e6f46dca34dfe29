package h2

import (
	"fmt"

	"golang.org/x/net/http2"
)

// StreamError reports why an individual HTTP/2 stream ended abnormally,
// distinct from a whole-connection failure.
type StreamError struct {
	StreamID uint32
	Code     http2.ErrCode
	Remote   bool
}

func (e *StreamError) Error() string {
	who := "local"
	if e.Remote {
		who = "remote"
	}
	return fmt.Sprintf("h2: stream %d reset by %s: %s", e.StreamID, who, e.Code)
}
