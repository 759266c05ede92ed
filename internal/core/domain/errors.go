package domain

import (
	"errors"
	"fmt"
)

// Reply is an error carrying a complete Response. Handlers and body
// helpers return it when they reject a request deliberately; the
// dispatcher unwraps it into the outbound response instead of treating
// it as a fault.
type Reply struct {
	Response *Response
}

func (r *Reply) Error() string {
	return fmt.Sprintf("handler replied with status %d", r.Response.Status)
}

// Fail wraps res as the error branch of a handler result.
func Fail(res *Response) error {
	return &Reply{Response: res}
}

// AsReply reports whether err (anywhere in its chain) is an explicit
// reply, returning it when so.
func AsReply(err error) (*Reply, bool) {
	var reply *Reply
	if errors.As(err, &reply) {
		return reply, true
	}
	return nil, false
}
