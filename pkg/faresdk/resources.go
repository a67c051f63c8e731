package faresdk

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Resource is a read-mostly collection endpoint such as /onibus.
type Resource[T any] struct {
	c    *Client
	path string
}

// NewResource binds a collection path to a client.
func NewResource[T any](c *Client, path string) Resource[T] {
	return Resource[T]{c: c, path: path}
}

// Path returns the collection path.
func (r Resource[T]) Path() string { return r.path }

// List returns every item in the collection.
func (r Resource[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	if err := r.c.getJSON(ctx, r.path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns one item by ID.
func (r Resource[T]) Get(ctx context.Context, id ID) (*T, error) {
	var item T
	if err := r.c.getJSON(ctx, r.path+"/"+url.PathEscape(id.String()), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create posts a new item and returns what the backend stored.
func (r Resource[T]) Create(ctx context.Context, payload any) (*T, error) {
	var item T
	if err := r.c.postJSON(ctx, r.path, payload, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) Buses() Resource[Bus]            { return NewResource[Bus](c, "/onibus") }
func (c *Client) Routes() Resource[Route]         { return NewResource[Route](c, "/rotas") }
func (c *Client) Drivers() Resource[Driver]       { return NewResource[Driver](c, "/motoristas") }
func (c *Client) Conductors() Resource[Conductor] { return NewResource[Conductor](c, "/cobradores") }
func (c *Client) Users() Resource[Profile]        { return NewResource[Profile](c, "/usuarios") }
func (c *Client) ElderlyCards() Resource[ElderlyCard] {
	return NewResource[ElderlyCard](c, "/carteirinhas-idoso")
}

// IssueElderlyCard issues a free-fare card. Eligibility is decided by the
// backend.
func (c *Client) IssueElderlyCard(ctx context.Context, req IssueElderlyCardRequest) (*ElderlyCard, error) {
	if req.Name == "" || req.CPF == "" || req.BirthDate == "" {
		return nil, fmt.Errorf("%w: name, cpf and birth date are required", ErrValidation)
	}
	return c.ElderlyCards().Create(ctx, req)
}

// Report fetches report rows for the [from, to] date range.
func (c *Client) Report(ctx context.Context, from, to time.Time) ([]ReportRow, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("inicio", from.Format(time.DateOnly))
	}
	if !to.IsZero() {
		q.Set("fim", to.Format(time.DateOnly))
	}

	path := "/relatorios"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var rows []ReportRow
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
