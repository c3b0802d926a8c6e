package gym

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

// Client issues authenticated requests against the gym API and recovers from
// expired or invalid credentials by waiting on a shared refresh.
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	GetJSON(ctx context.Context, endpoint string, out interface{}) error
	PostJSON(ctx context.Context, endpoint string, in, out interface{}) error
	PutJSON(ctx context.Context, endpoint string, in, out interface{}) error
}

// CredentialRefresher hands out a new credential after rejected was turned down.
// *refresh.Coordinator implements it.
type CredentialRefresher interface {
	AwaitRefreshedCredential(ctx context.Context, rejected *oauth2.Token) (*oauth2.Token, error)
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DefaultCredentialErrors are the error messages with which the API rejects a credential.
var DefaultCredentialErrors = []string{"token.expired", "token.invalid"}

type ClientOption func(*client)

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *client) { c.log = common.LoggerOrNop(l) }
}

// WithCredentialErrors replaces DefaultCredentialErrors.
func WithCredentialErrors(messages ...string) ClientOption {
	return func(c *client) {
		c.credentialErrors = make(map[string]struct{}, len(messages))
		for _, m := range messages {
			c.credentialErrors[m] = struct{}{}
		}
	}
}

type client struct {
	baseURL          string
	httpClient       common.HttpClient
	store            common.CredentialStore
	refresher        CredentialRefresher
	log              *zap.Logger
	credentialErrors map[string]struct{}
}

// NewClient creates a Client. store is only read; refresher is the single place where
// credentials get renewed.
func NewClient(baseURL string, httpClient common.HttpClient, store common.CredentialStore, refresher CredentialRefresher, opts ...ClientOption) Client {
	c := &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
		refresher:  refresher,
		log:        zap.NewNop(),
	}
	WithCredentialErrors(DefaultCredentialErrors...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send issues req with the stored credential. When the API rejects the credential the
// request is replayed once with a renewed one; a second rejection fails with
// common.ErrAuthenticationFailed. A rejection of a credential the store has since replaced
// replays with the stored one and does not start another refresh.
func (c *client) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, _, err := c.send(ctx, req)
	return resp, err
}

// send is Send, also reporting whether the request was replayed after a rejection.
func (c *client) send(ctx context.Context, req *Request) (*Response, bool, error) {
	req = req.clone()
	log := c.log.With(zap.String("request_id", req.ID), zap.String("method", req.Method), zap.String("url", req.URL))

	sent, found, err := c.store.Get(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load credential: %w", err)
	}
	if !found {
		sent = nil
	}
	if sent != nil {
		req.authorize(sent)
	}

	resp, err := c.issue(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if !c.credentialRejected(resp) {
		resp, err = classify(resp)
		return resp, false, err
	}

	token, err := c.renewedCredential(ctx, log, sent)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, true, ctxErr
		}
		log.Info("credential could not be refreshed", zap.Error(err))
		return nil, true, fmt.Errorf("%w: %w", common.ErrAuthenticationFailed, err)
	}

	req.authorize(token)
	resp, err = c.issue(ctx, req)
	if err != nil {
		return nil, true, err
	}
	if c.credentialRejected(resp) {
		log.Info("refreshed credential rejected")
		return nil, true, fmt.Errorf("%w: refreshed credential rejected", common.ErrAuthenticationFailed)
	}
	resp, err = classify(resp)
	return resp, true, err
}

// renewedCredential returns the credential to replay with after sent was rejected. A
// different credential already in the store is used directly; otherwise the request waits
// on the shared refresh.
func (c *client) renewedCredential(ctx context.Context, log *zap.Logger, sent *oauth2.Token) (*oauth2.Token, error) {
	current, found, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if found && current.AccessToken != "" && (sent == nil || current.AccessToken != sent.AccessToken) {
		log.Debug("credential rejected, replaying with stored replacement")
		return current, nil
	}

	log.Debug("credential rejected, waiting for refresh")
	return c.refresher.AwaitRefreshedCredential(ctx, sent)
}

// GetJSON retrieves JSON from an endpoint and unmarshals into out.
// Reads are retried on transient server errors, except after an attempt that was
// already replayed with a renewed credential.
func (c *client) GetJSON(ctx context.Context, endpoint string, out interface{}) error {
	urlStr, err := c.buildURL(endpoint)
	if err != nil {
		return err
	}

	operation := func() (interface{}, error) {
		resp, replayed, err := c.send(ctx, NewRequest(http.MethodGet, urlStr, nil))
		if err != nil && replayed {
			return nil, &common.PermanentError{Err: err}
		}
		return resp, err
	}
	result, err := c.httpClient.RetryWithExponentialBackoff(ctx, operation)
	if err != nil {
		return err
	}
	return decodeJSON(result.(*Response), out)
}

// PostJSON sends in as JSON and decodes the response into out, when out is non-nil.
func (c *client) PostJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, in, out)
}

// PutJSON sends in as JSON and decodes the response into out, when out is non-nil.
func (c *client) PutJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPut, endpoint, in, out)
}

func (c *client) sendJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	urlStr, err := c.buildURL(endpoint)
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	resp, err := c.Send(ctx, NewRequest(method, urlStr, body))
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// issue performs one attempt through the transport.
func (c *client) issue(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &common.TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// credentialRejected reports a 401 whose body names the credential itself, as opposed
// to e.g. wrong sign-in data.
func (c *client) credentialRejected(resp *Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	body, ok := errorBody(resp.Body)
	if !ok {
		return false
	}
	_, rejected := c.credentialErrors[body.Message]
	return rejected
}

// buildURL resolves endpoint against the base URL.
func (c *client) buildURL(endpoint string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	path, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	return base.ResolveReference(path).String(), nil
}

func classify(resp *Response) (*Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	if body, ok := errorBody(resp.Body); ok {
		return nil, &common.ServerError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: resp.Body}
}

func errorBody(data []byte) (model.ErrorBody, bool) {
	var body model.ErrorBody
	if err := model.JSONUnmarshal(data, &body); err != nil || body.Message == "" {
		return model.ErrorBody{}, false
	}
	return body, true
}

func decodeJSON(resp *Response, out interface{}) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := model.JSONUnmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsAuthenticationFailed reports whether err means the session cannot be recovered.
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, common.ErrAuthenticationFailed)
}
