package httpagent

import "github.com/arn-dev/httpagent/internal/model"

// Response is what Agent.Send hands back: status, headers, and a
// lazy body reader tied to the connection it arrived on until EOF or
// the caller closes it early. ContentType and Charset are convenience
// accessors over the Content-Type header.
type Response = model.Response
