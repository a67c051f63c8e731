package faresdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// CreatePixPayment requests a PIX top-up of amountCents centavos.
func (c *Client) CreatePixPayment(ctx context.Context, amountCents int64) (*PaymentIntent, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	req := createPixRequest{
		Amount: json.Number(fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)),
	}

	var intent PaymentIntent
	if err := c.postJSON(ctx, "/pagamentos/pix", req, &intent); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, errors.New("payment response missing id")
	}

	intent.Status = NormalizePaymentStatus(string(intent.Status))
	return &intent, nil
}

// PaymentStatus queries the current state of a payment intent.
func (c *Client) PaymentStatus(ctx context.Context, id ID) (PaymentStatus, error) {
	var body paymentStatusResponse
	if err := c.getJSON(ctx, "/pagamentos/"+url.PathEscape(id.String())+"/status", &body); err != nil {
		return "", err
	}
	return NormalizePaymentStatus(body.Status), nil
}

// Wallet returns the authenticated passenger's balance.
func (c *Client) Wallet(ctx context.Context) (*Wallet, error) {
	var w Wallet
	if err := c.getJSON(ctx, "/carteira", &w); err != nil {
		return nil, err
	}
	return &w, nil
}
