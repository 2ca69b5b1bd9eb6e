package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// Profile is the account behind a set of credentials
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Profile looks up the account for creds. It is the cheapest way to find
// out whether a token is still accepted.
func (c *Client) Profile(ctx context.Context, creds Credentials) (*Profile, error) {
	if !creds.Authenticated() {
		return nil, fmt.Errorf("%w: no token", apperr.ErrUnauthenticated)
	}

	resp, err := c.Request(ctx, creds).
		SetQueryParam("email", creds.Email).
		Get("/user-get-delete/")
	if err := c.Check("profile", resp, err, apperr.ErrFetchFailed); err != nil {
		return nil, err
	}

	var body struct {
		User *Profile `json:"user"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.User == nil {
		return nil, fmt.Errorf("%w: profile: unparseable body", apperr.ErrFetchFailed)
	}
	return body.User, nil
}
