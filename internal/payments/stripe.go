package payments

import (
	"context"
	"math"
	"os"
	"sync"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeFareHolds implements the coordinator's fare-hold collaborator on
// top of stripe-go PaymentIntents: a manual-capture intent is created when
// a driver wins the ride, captured on completion and cancelled on
// cancellation. The intent id is tracked per ride.
type StripeFareHolds struct {
	currency string

	mu      sync.Mutex
	intents map[string]string // ride id -> payment intent id
}

// NewStripeFareHolds initializes the stripe client with the STRIPE_API_KEY
// env var.
func NewStripeFareHolds(currency string) *StripeFareHolds {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "usd"
	}
	return &StripeFareHolds{currency: currency, intents: make(map[string]string)}
}

// Hold creates a PaymentIntent with capture_method=manual for the
// estimated fare.
func (s *StripeFareHolds) Hold(ctx context.Context, rideID string, fare float64) error {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(math.Round(fare * 100))),
		Currency: stripe.String(s.currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.intents[rideID] = pi.ID
	s.mu.Unlock()
	return nil
}

// Capture finalizes the hold for a completed ride. Unknown ride ids are a
// no-op: nothing was held.
func (s *StripeFareHolds) Capture(ctx context.Context, rideID string) error {
	id, ok := s.take(rideID)
	if !ok {
		return nil
	}
	_, err := paymentintent.Capture(id, nil)
	return err
}

// Release cancels the hold for a cancelled ride.
func (s *StripeFareHolds) Release(ctx context.Context, rideID string) error {
	id, ok := s.take(rideID)
	if !ok {
		return nil
	}
	_, err := paymentintent.Cancel(id, nil)
	return err
}

func (s *StripeFareHolds) take(rideID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.intents[rideID]
	if ok {
		delete(s.intents, rideID)
	}
	return id, ok
}
