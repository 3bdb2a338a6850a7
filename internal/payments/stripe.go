package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeHolder places fare holds as manual-capture PaymentIntents.
type StripeHolder struct {
	api *client.API
}

// NewStripeHolder returns nil when no API key is configured, which leaves
// fare holds disabled.
func NewStripeHolder(apiKey string) *StripeHolder {
	if apiKey == "" {
		return nil
	}
	return &StripeHolder{api: client.New(apiKey, nil)}
}

// Hold creates a PaymentIntent with capture_method=manual for amount, in
// the currency's minor units, and returns its id.
func (s *StripeHolder) Hold(ctx context.Context, amount int64, currency string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Accessible cab fare"),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously held PaymentIntent.
func (s *StripeHolder) Capture(ctx context.Context, holdID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Capture(holdID, params)
	return err
}

// Cancel releases the hold on a PaymentIntent.
func (s *StripeHolder) Cancel(ctx context.Context, holdID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(holdID, params)
	return err
}
