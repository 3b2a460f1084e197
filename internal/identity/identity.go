// Package identity talks to the account service. Calls authenticate with
// a short-lived HS256 service token minted per request; end-user token
// verification stays on the account service side.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// serviceTokenTTL bounds how long a minted service token stays valid.
// One minute outlives any single request comfortably.
const serviceTokenTTL = time.Minute

// User mirrors the account service's user object.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// DecodedToken is the account service's verdict on an end-user token.
type DecodedToken struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Provider is the account-service contract the room server consumes.
// GetUserByEmail returns (nil, nil) when no account matches; callers
// treat that as "skip", not as a failure.
type Provider interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ValidateToken(ctx context.Context, uid, token string) (*DecodedToken, error)
	DeleteUser(ctx context.Context, uid string) error
}

// Client implements Provider over the account service's REST API.
type Client struct {
	baseURL string
	secret  string
	issuer  string
	httpc   *http.Client
}

// NewClient returns a Client for the given base URL and service secret.
// httpc may be nil, in which case a client with a 10s timeout is used.
func NewClient(baseURL, secret string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		issuer:  "roomd",
		httpc:   httpc,
	}
}

// GetUserByEmail resolves an email to an account. A 404 from the service
// maps to (nil, nil).
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	q := url.Values{"email": {email}}
	resp, err := c.do(ctx, http.MethodGet, "/v1/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get user by email", resp)
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("identity: parse user: %w", err)
	}
	return &u, nil
}

// ValidateToken asks the account service to verify an end-user token.
// An invalid or expired token maps to (nil, nil).
func (c *Client) ValidateToken(ctx context.Context, uid, token string) (*DecodedToken, error) {
	body := map[string]string{"uid": uid, "token": token}
	resp, err := c.do(ctx, http.MethodPost, "/v1/tokens/verify", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("validate token", resp)
	}
	var d DecodedToken
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("identity: parse decoded token: %w", err)
	}
	return &d, nil
}

// DeleteUser removes an account. Deleting an already-absent account is
// treated as success.
func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(uid), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("delete user", resp)
	}
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("identity: marshal body: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, rdr)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	token, err := c.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("identity: sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	return resp, nil
}

// serviceToken signs a fresh HS256 JWT identifying this process to the
// account service.
func (c *Client) serviceToken() (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": c.issuer,
		"sub": "service:roomd",
		"iat": now.Unix(),
		"exp": now.Add(serviceTokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(c.secret))
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("identity: %s returned %d: %s", op, resp.StatusCode, string(b))
}
