package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/model"
	"github.com/arn-dev/httpagent/internal/uriutil"
)

func prepared(method string, body model.BodySource, header http.Header) *model.PreparedRequest {
	target, err := uriutil.Normalize("http://example.com/path")
	if err != nil {
		panic(err)
	}
	if body == nil {
		body = model.Empty
	}
	if header == nil {
		header = http.Header{}
	}
	cl := int64(-1)
	if declared, ok := body.DeclaredLength(); ok {
		cl = declared
	}
	return &model.PreparedRequest{
		Request:       &model.Request{Method: method, URL: "http://example.com/path", Body: body},
		Target:        target,
		Header:        header,
		ContentLength: cl,
	}
}

func TestReadDiscardsInterim1xxResponses(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = server.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
		_, _ = server.Write([]byte("HTTP/1.1 103 Early Hints\r\nLink: </style.css>\r\n\r\n"))
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
	}()

	br := bufio.NewReader(client)
	req := prepared("GET", nil, nil)
	resp, err := HTTP1{}.Read(context.Background(), br, req, codec.DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))
}

func TestWriteProceedsAfter100Continue(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var bodyReceived []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		br := bufio.NewReader(server)
		drainHeaders(br)
		_, _ = server.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n"))
		buf := make([]byte, 4)
		n, _ := io.ReadFull(br, buf)
		bodyReceived = buf[:n]
	}()

	req := prepared("PUT", model.String("body"), http.Header{"Expect": {"100-continue"}})
	br := bufio.NewReader(client)
	resp, err := HTTP1{}.Write(context.Background(), client, br, req, codec.DefaultOptions)
	require.NoError(t, err)
	assert.Nil(t, resp)

	<-done
	assert.Equal(t, "body", string(bodyReceived))
}

func TestWriteReturnsEarlyResponseOnExpectationFailed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		br := bufio.NewReader(server)
		drainHeaders(br)
		_, _ = server.Write([]byte("HTTP/1.1 417 Expectation Failed\r\nContent-Length: 0\r\n\r\n"))
	}()

	req := prepared("PUT", model.String("body"), http.Header{"Expect": {"100-continue"}})
	br := bufio.NewReader(client)
	resp, err := HTTP1{}.Write(context.Background(), client, br, req, codec.DefaultOptions)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 417, resp.StatusCode)
}

func TestWriteProceedsWhenContinueTimesOut(t *testing.T) {
	orig := continueTimeout
	continueTimeout = 30 * time.Millisecond
	defer func() { continueTimeout = orig }()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var bodyReceived []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		br := bufio.NewReader(server)
		drainHeaders(br)
		buf := make([]byte, 4)
		n, _ := io.ReadFull(br, buf)
		bodyReceived = buf[:n]
	}()

	req := prepared("PUT", model.String("body"), http.Header{"Expect": {"100-continue"}})
	br := bufio.NewReader(client)
	resp, err := HTTP1{}.Write(context.Background(), client, br, req, codec.DefaultOptions)
	require.NoError(t, err)
	assert.Nil(t, resp)

	<-done
	assert.Equal(t, "body", string(bodyReceived))
}

// drainHeaders reads and discards a request line plus header block,
// so the test server side can get past the request head before
// answering.
func drainHeaders(br *bufio.Reader) {
	for {
		line, err := br.ReadString('\n')
		if err != nil || line == "\r\n" {
			return
		}
	}
}
