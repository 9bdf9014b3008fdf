package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// User is the masked credential record returned by the admin API.
type User struct {
	Owner       string    `json:"owner"`
	TokenHash   string    `json:"token_hash"`
	TokenLength int       `json:"token_length"`
	IssuedAt    time.Time `json:"issued_at"`
	Status      string    `json:"status"`
	Token       string    `json:"token,omitempty"`
}

// RevokeResult reports the effect of a revocation.
type RevokeResult struct {
	Owner          string    `json:"owner"`
	RevokedRecords int       `json:"revoked_records"`
	InvalidBefore  time.Time `json:"invalid_before"`
}

// IssuedToken is the response of the provisioning endpoint.
type IssuedToken struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterUser creates a credential for owner. When token is empty the
// server generates one. The raw token is returned only when showToken is
// set.
func (c *Client) RegisterUser(ctx context.Context, owner, token string, showToken bool) (*User, error) {
	query := url.Values{}
	if showToken {
		query.Set("show_token", "true")
	}
	body := map[string]string{"owner": owner}
	if token != "" {
		body["token"] = token
	}

	var user User
	err := c.do(ctx, http.MethodPost, "/admin/users", requestOptions{admin: true, query: query}, body, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers lists masked credential records, optionally filtered by an
// owner substring. limit <= 0 uses the server default.
func (c *Client) ListUsers(ctx context.Context, filter string, limit int) ([]User, error) {
	query := url.Values{}
	if filter != "" {
		query.Set("filter", filter)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var users []User
	err := c.do(ctx, http.MethodGet, "/admin/users", requestOptions{admin: true, query: query}, nil, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns the masked record for owner.
func (c *Client) GetUser(ctx context.Context, owner string, showToken bool) (*User, error) {
	query := url.Values{}
	if showToken {
		query.Set("show_token", "true")
	}

	var user User
	// do assigns the decoded path, so the owner goes in unescaped.
	err := c.do(ctx, http.MethodGet, "/admin/users/"+owner, requestOptions{admin: true, query: query}, nil, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RevokeUser revokes all of owner's credentials and raises their
// revocation cutoff to now.
func (c *Client) RevokeUser(ctx context.Context, owner string) (*RevokeResult, error) {
	var result RevokeResult
	err := c.do(ctx, http.MethodDelete, "/admin/users/"+owner, requestOptions{admin: true}, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// IssueToken provisions a signed token for the asserted identity.
func (c *Client) IssueToken(ctx context.Context) (*IssuedToken, error) {
	var issued IssuedToken
	err := c.do(ctx, http.MethodPost, "/v1/auth/token", requestOptions{}, nil, &issued)
	if err != nil {
		return nil, err
	}
	return &issued, nil
}

// Logout revokes every signed token issued to the caller before now.
func (c *Client) Logout(ctx context.Context, bearer string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", requestOptions{bearer: bearer}, nil, nil)
}
