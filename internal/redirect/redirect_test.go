package redirect_test

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
	"github.com/arn-dev/httpagent/internal/redirect"
)

func emptyBodyResp(status int, header http.Header) *model.Response {
	if header == nil {
		header = http.Header{}
	}
	return &model.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

type fakeJar struct {
	stored  []http.Header
	cookies map[string]string // host -> Cookie header value
}

func (j *fakeJar) Store(origin *url.URL, header http.Header) {
	j.stored = append(j.stored, header)
}

func (j *fakeJar) Lookup(target *url.URL) string {
	return j.cookies[target.Host]
}

func TestFollowNoRedirectReturnsResponseUnchanged(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/"}
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		return emptyBodyResp(200, nil), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "https://example.com/", resp.Origin)
}

func TestFollow303RewritesToGetAndDropsBody(t *testing.T) {
	req := &model.Request{Method: "POST", URL: "https://example.com/submit", Body: model.String("form=data")}
	var secondMethod string
	var secondBody model.BodySource
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"/done"}}
			return emptyBodyResp(303, h), nil
		}
		secondMethod = pr.Method
		secondBody = pr.Body
		return emptyBodyResp(200, nil), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "GET", secondMethod)
	assert.Equal(t, model.Empty, secondBody)
}

func TestFollow307PreservesMethodAndBody(t *testing.T) {
	req := &model.Request{Method: "POST", URL: "https://example.com/submit", Body: model.String("form=data")}
	var secondMethod, secondPayload string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"/retry-here"}}
			return emptyBodyResp(307, h), nil
		}
		secondMethod = pr.Method
		rc, err := pr.Body.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		secondPayload = string(b)
		return emptyBodyResp(200, nil), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "POST", secondMethod)
	assert.Equal(t, "form=data", secondPayload)
}

func TestFollow301POSTDowngradesToGetByDefault(t *testing.T) {
	req := &model.Request{Method: "POST", URL: "https://example.com/submit", Body: model.String("x=1")}
	var secondMethod string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"/moved"}}
			return emptyBodyResp(301, h), nil
		}
		secondMethod = pr.Method
		return emptyBodyResp(200, nil), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, "GET", secondMethod)
}

func TestFollow301POSTPreservesWhenDowngradeDisabled(t *testing.T) {
	req := &model.Request{Method: "POST", URL: "https://example.com/submit", Body: model.String("x=1")}
	policy := redirect.Policy{Cap: 5, DowngradeToGet: false}
	var secondMethod string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"/moved"}}
			return emptyBodyResp(301, h), nil
		}
		secondMethod = pr.Method
		return emptyBodyResp(200, nil), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, policy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, "POST", secondMethod)
}

func TestFollowBodyNotRestartableFailsOnResend(t *testing.T) {
	req := &model.Request{Method: "PUT", URL: "https://example.com/upload", Body: model.Reader(strings.NewReader("stream"))}
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		h := http.Header{"Location": []string{"/upload-2"}}
		return emptyBodyResp(307, h), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.Error(t, err)
	assert.True(t, herr.Of(err, herr.BodyNotRestartable))
	assert.Equal(t, 1, calls)
}

func TestFollowPreservingMethodWithNilBodyDoesNotPanic(t *testing.T) {
	req := &model.Request{Method: "PUT", URL: "https://example.com/upload"} // Body left unset
	var secondMethod string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"/upload-2"}}
			return emptyBodyResp(307, h), nil
		}
		secondMethod = pr.Method
		return emptyBodyResp(200, nil), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "PUT", secondMethod)
	assert.Equal(t, 2, calls)
}

func TestFollowZeroCapReturnsRedirectResponseUnfollowed(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/"}
	policy := redirect.Policy{Cap: 0}
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		h := http.Header{"Location": []string{"/elsewhere"}}
		return emptyBodyResp(302, h), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, policy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestFollowExhaustsRedirectBudget(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/"}
	policy := redirect.Policy{Cap: 2}
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		h := http.Header{"Location": []string{"/loop"}}
		return emptyBodyResp(302, h), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, policy, nil, exch)
	require.Error(t, err)
	assert.True(t, herr.Of(err, herr.TooManyRedirects))
	assert.Equal(t, 3, calls) // initial + 2 redirect hops before the budget is exhausted
}

func TestFollowAppliesCookiesAcrossHops(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/start"}
	jar := &fakeJar{cookies: map[string]string{"example.com": "sid=abc"}}
	var secondCookieHeader string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{
				"Location":  []string{"/next"},
				"Set-Cookie": []string{"sid=abc; Path=/"},
			}
			return emptyBodyResp(302, h), nil
		}
		secondCookieHeader = pr.Header.Get("Cookie")
		return emptyBodyResp(200, nil), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, jar, exch)
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", secondCookieHeader)
	assert.Len(t, jar.stored, 2)
}

func TestFollowRelativeLocationResolvesAgainstCurrentURL(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/a/b/"}
	var secondTarget string
	calls := 0
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{"Location": []string{"../c"}}
			return emptyBodyResp(302, h), nil
		}
		secondTarget = pr.Target.URL.String()
		return emptyBodyResp(200, nil), nil
	}

	_, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/c", secondTarget)
}

func TestFollowNoLocationHeaderReturnsRedirectResponseAsIs(t *testing.T) {
	req := &model.Request{Method: "GET", URL: "https://example.com/"}
	exch := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
		return emptyBodyResp(302, nil), nil
	}

	resp, err := redirect.Follow(context.Background(), req, codec.Options{}, redirect.DefaultPolicy, nil, exch)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
}
