package codec

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const charsetSniffLen = 1024

// newCharsetDecodeLayer transcodes a text/* body from a declared (or
// sniffed) charset into UTF-8. r is wrapped in a *bufio.Reader so the
// sniffed lead bytes are not lost.
func newCharsetDecodeLayer(r io.Reader, declaredCharset, contentType string) io.Reader {
	name := declaredCharset
	br := bufio.NewReaderSize(r, charsetSniffLen)
	if name == "" {
		lead, _ := br.Peek(charsetSniffLen)
		_, sniffed, _ := charset.DetermineEncoding(lead, contentType)
		name = sniffed
	}
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return br
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		// Unknown charset name: pass through rather than fail the
		// whole exchange over a decoding nicety.
		return br
	}
	return transform.NewReader(br, enc.NewDecoder())
}

// newCharsetEncodeLayer transcodes outgoing UTF-8 text into target.
func newCharsetEncodeLayer(w io.Writer, target string) io.Writer {
	if target == "" || strings.EqualFold(target, "utf-8") {
		return w
	}
	enc, err := htmlindex.Get(target)
	if err != nil {
		return w
	}
	return transform.NewWriter(w, enc.NewEncoder())
}
