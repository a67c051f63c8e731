package faresdk

import (
	"context"
	"fmt"
	"strings"
)

// ValidateBoarding submits a scanned boarding code. The backend settles the
// fare; an unapproved result is a normal answer, not an error.
func (c *Client) ValidateBoarding(ctx context.Context, req BoardingRequest) (*BoardingResult, error) {
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return nil, fmt.Errorf("%w: empty boarding code", ErrValidation)
	}

	var result BoardingResult
	if err := c.postJSON(ctx, "/embarques/validar", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
