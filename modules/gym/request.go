package gym

import (
	"bytes"
	"context"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-ID"

// Request is a replayable description of an outgoing API call.
// Send never mutates the Request it is given; it works on a copy whose Authorization
// header is the only field that changes between the first attempt and the replay.
type Request struct {
	ID     string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest returns a Request with a fresh ID and JSON headers.
func NewRequest(method, url string, body []byte) *Request {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if body != nil {
		h.Set("Content-Type", "application/json")
	}
	return &Request{
		ID:     uuid.NewString(),
		Method: method,
		URL:    url,
		Header: h,
		Body:   body,
	}
}

func (r *Request) clone() *Request {
	c := &Request{
		ID:     r.ID,
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header.Clone(),
		Body:   bytes.Clone(r.Body),
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c
}

func (r *Request) authorize(token *oauth2.Token) {
	if token == nil || token.AccessToken == "" {
		r.Header.Del("Authorization")
		return
	}
	r.Header.Set("Authorization", "Bearer "+token.AccessToken)
}

// build creates a fresh *http.Request; the body reader is new for every attempt.
func (r *Request) build(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Header.Set(requestIDHeader, r.ID)
	return req, nil
}
