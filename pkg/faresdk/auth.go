package faresdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Login exchanges credentials for a bearer token and the user's profile.
// This call is unauthenticated; a 401 here is a credentials problem and
// does not invoke OnUnauthorized.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", creds, false)
	if err != nil {
		return nil, err
	}

	var body struct {
		Token   string          `json:"token"`
		Usuario json.RawMessage `json:"usuario"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	if body.Token == "" {
		return nil, errors.New("login response missing token")
	}
	if len(body.Usuario) == 0 {
		return nil, errors.New("login response missing user profile")
	}

	profile, err := ParseProfile(body.Usuario)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{Token: body.Token, Profile: profile}, nil
}

// Me fetches the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/usuarios/me", &raw); err != nil {
		return nil, err
	}

	profile, err := ParseProfile(raw)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
