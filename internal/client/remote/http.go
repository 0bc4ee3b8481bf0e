package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kith-app/kith/internal/client/session"
	"github.com/kith-app/kith/internal/common"
	"github.com/sethvargo/go-retry"
)

const (
	requestTimeout = 12 * time.Second
	maxRetryWait   = 10 * time.Second
)

// HTTPClient implements Client over the server's JSON API.
type HTTPClient struct {
	baseURL   string
	http      *http.Client
	sess      *session.Context
	retryWait time.Duration
	retryBase time.Duration
}

// NewHTTPClient returns a Client talking to baseURL on behalf of sess.
func NewHTTPClient(baseURL string, sess *session.Context) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: requestTimeout},
		sess:      sess,
		retryWait: maxRetryWait,
		retryBase: 250 * time.Millisecond,
	}
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, username string, salt, verifier []byte) error {
	req := registerRequest{Username: username, Salt: salt, Verifier: verifier}
	return c.do(ctx, http.MethodPost, "/api/users/register", req, nil, false)
}

func (c *HTTPClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var resp saltResponse
	path := "/api/users/salt?username=" + url.QueryEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (c *HTTPClient) Login(ctx context.Context, username string, verifier []byte) error {
	req := loginRequest{Username: username, VerifierCandidate: verifier}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/users/login", req, &resp, false); err != nil {
		return err
	}
	c.sess.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/ping", nil, nil, false)
}

func (c *HTTPClient) FetchChangesSince(ctx context.Context, cursor int64) ([]RemoteRecord, int64, error) {
	var resp changesResponse
	path := "/api/changes?cursor=" + strconv.FormatInt(cursor, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, 0, err
	}
	records := make([]RemoteRecord, 0, len(resp.Records))
	for _, dto := range resp.Records {
		records = append(records, dto.toModel())
	}
	return records, resp.NextCursor, nil
}

func (c *HTTPClient) PushChange(ctx context.Context, change Change) (*RemoteMeta, error) {
	req := pushRequest{Operation: string(change.Operation), Record: recordToDTO(change.Record)}
	var resp pushResponse
	if err := c.do(ctx, http.MethodPost, "/api/changes", req, &resp, true); err != nil {
		return nil, err
	}
	return &RemoteMeta{Version: resp.Version, UpdatedAt: resp.UpdatedAt}, nil
}

func (c *HTTPClient) RegisterDevice(ctx context.Context, name, deviceType string, publicKey, masterPublicKey []byte) (string, error) {
	req := registerDeviceRequest{Name: name, Type: deviceType, PublicKey: publicKey, MasterPublicKey: masterPublicKey}
	var resp registerDeviceResponse
	if err := c.do(ctx, http.MethodPost, "/api/devices", req, &resp, true); err != nil {
		return "", err
	}
	return resp.DeviceID, nil
}

func (c *HTTPClient) ListApprovalRequests(ctx context.Context) ([]ApprovalRequest, error) {
	var resp approvalListResponse
	if err := c.do(ctx, http.MethodGet, "/api/devices/approvals", nil, &resp, true); err != nil {
		return nil, err
	}
	requests := make([]ApprovalRequest, 0, len(resp.Requests))
	for _, dto := range resp.Requests {
		requests = append(requests, dto.toModel())
	}
	return requests, nil
}

func (c *HTTPClient) SubmitWrappedKey(ctx context.Context, deviceID string, wrappedKey []byte) error {
	req := wrappedKeyRequest{DeviceID: deviceID, WrappedKey: wrappedKey}
	return c.do(ctx, http.MethodPost, "/api/devices/keys", req, nil, true)
}

func (c *HTTPClient) FetchWrappedKey(ctx context.Context, deviceID string) ([]byte, error) {
	var resp wrappedKeyResponse
	path := "/api/devices/keys/" + url.PathEscape(deviceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.WrappedKey, nil
}

func (c *HTTPClient) RevokeDevice(ctx context.Context, deviceID string) error {
	path := "/api/devices/" + url.PathEscape(deviceID) + "/revoke"
	return c.do(ctx, http.MethodPost, path, nil, nil, true)
}

// do performs one API call: request marshalling, auth header, transient
// retries with capped fibonacci backoff, token refresh on an expired access
// token, and error mapping to the shared sentinels.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	backoff := retry.WithMaxDuration(c.retryWait, retry.NewFibonacci(c.retryBase))

	refreshed := false
	// an access token known to be expired gets refreshed up front instead
	// of burning a round-trip on the 401
	if authed && c.sess.RefreshToken() != "" && c.sess.AccessTokenExpired(time.Now()) {
		refreshed = true
		if err := c.refreshTokens(ctx); err != nil {
			return err
		}
	}
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, respBody, err := c.roundTrip(ctx, method, path, payload, authed)
		if err != nil {
			// transport-level failure: worth another attempt
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrUnavailable, err))
		}

		switch {
		case status >= 200 && status < 300:
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)

		case status == http.StatusUnauthorized:
			if authed && !refreshed && apiError(respBody) == common.ErrTokenExpired.Error() {
				refreshed = true
				if err := c.refreshTokens(ctx); err != nil {
					return err
				}
				return retry.RetryableError(common.ErrTokenExpired)
			}
			return common.ErrUnauthorized

		case status == http.StatusNotFound:
			return common.ErrNotFound

		case status == http.StatusConflict:
			return common.ErrConflict

		case status >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", common.ErrUnavailable, status))

		default:
			return fmt.Errorf("%w: status %d: %s", common.ErrInternal, status, apiError(respBody))
		}
	})
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, payload []byte, authed bool) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+c.sess.AccessToken())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (c *HTTPClient) refreshTokens(ctx context.Context) error {
	token := c.sess.RefreshToken()
	if token == "" {
		return common.ErrUnauthorized
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: token})
	if err != nil {
		return err
	}
	status, respBody, err := c.roundTrip(ctx, http.MethodPost, "/api/users/refresh", payload, false)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	if status != http.StatusOK {
		return common.ErrUnauthorized
	}

	var resp tokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return err
	}
	c.sess.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func apiError(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return string(body)
	}
	return e.Error
}
