// Package auth implements the GitHub OAuth device flow.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mchmarny/devrank/pkg/net"
)

const (
	deviceCodeURL = "https://github.com/login/device/code"
	accessCodeURL = "https://github.com/login/oauth/access_token"
	deviceScopes  = "" // read-only public access
	grantType     = "urn:ietf:params:oauth:grant-type:device_code"

	errAuthorizationPending = "authorization_pending"
	errSlowDown             = "slow_down"
	slowDownStep            = 5 * time.Second
)

var (
	// ErrExpired is returned when the user did not authorize in time.
	ErrExpired = errors.New("device code expired")

	// ErrDenied is returned when the user cancelled the authorization.
	ErrDenied = errors.New("authorization denied")
)

type DeviceCode struct {
	// DeviceCode is the 40 character code used to verify the device.
	DeviceCode string `json:"device_code,omitempty"`
	// UserCode is displayed so the user can enter it in a browser.
	UserCode string `json:"user_code,omitempty"`
	// VerificationURL is where users enter the user code.
	VerificationURL string `json:"verification_uri,omitempty"`
	// ExpiresInSec defaults to 900 seconds.
	ExpiresInSec int `json:"expires_in,omitempty"`
	// Interval is the minimum number of seconds between token polls.
	Interval int `json:"interval,omitempty"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Error       string `json:"error,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// DeviceFlow holds the endpoints of one OAuth app.
type DeviceFlow struct {
	ClientID      string
	DeviceCodeURL string
	AccessCodeURL string
	client        *http.Client
}

// NewDeviceFlow returns a flow against github.com for clientID.
func NewDeviceFlow(clientID string) (*DeviceFlow, error) {
	if clientID == "" {
		return nil, errors.New("clientID is required")
	}
	c, err := net.GetHTTPClient(0)
	if err != nil {
		return nil, fmt.Errorf("failed to get http client: %w", err)
	}
	return &DeviceFlow{
		ClientID:      clientID,
		DeviceCodeURL: deviceCodeURL,
		AccessCodeURL: accessCodeURL,
		client:        c,
	}, nil
}

func (f *DeviceFlow) post(ctx context.Context, u string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body := ""
		if b, err := io.ReadAll(io.LimitReader(res.Body, 512)); err == nil {
			body = string(b)
		}
		return fmt.Errorf("unexpected response: %s - %s - %s", res.Status, u, body)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetDeviceCode starts the flow.
func (f *DeviceFlow) GetDeviceCode(ctx context.Context) (*DeviceCode, error) {
	params := url.Values{}
	params.Set("client_id", f.ClientID)
	params.Set("scope", deviceScopes)

	var dc DeviceCode
	if err := f.post(ctx, f.DeviceCodeURL, params, &dc); err != nil {
		return nil, fmt.Errorf("failed to get device code: %w", err)
	}
	if dc.DeviceCode == "" {
		return nil, errors.New("device code is empty")
	}
	return &dc, nil
}

// WaitForToken polls until the user authorizes code, the code expires or
// ctx is done. Pending and slow_down responses are retried.
func (f *DeviceFlow) WaitForToken(ctx context.Context, code *DeviceCode) (*AccessTokenResponse, error) {
	if code == nil {
		return nil, errors.New("device code is nil")
	}

	expiresAt := time.Now().Add(time.Duration(code.ExpiresInSec) * time.Second)
	wait := time.Duration(max(code.Interval, 1)) * time.Second

	params := url.Values{}
	params.Set("client_id", f.ClientID)
	params.Set("device_code", code.DeviceCode)
	params.Set("grant_type", grantType)

	for {
		var t AccessTokenResponse
		if err := f.post(ctx, f.AccessCodeURL, params, &t); err != nil {
			return nil, err
		}

		switch t.Error {
		case "":
			if t.AccessToken == "" {
				return nil, errors.New("access token is empty")
			}
			return &t, nil
		case errAuthorizationPending:
		case errSlowDown:
			wait += slowDownStep
		case "expired_token":
			return nil, ErrExpired
		case "access_denied":
			return nil, ErrDenied
		default:
			return nil, fmt.Errorf("device flow error %s: %s", t.Error, t.Description)
		}

		if time.Now().Add(wait).After(expiresAt) {
			return nil, ErrExpired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
