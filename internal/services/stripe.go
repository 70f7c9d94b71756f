package services

import (
	"errors"
	"fmt"

	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

var ErrPlanNotPurchasable = errors.New("plan is not available for purchase")

// PlanOffer is one entry of the plan catalogue shown on the pricing page.
type PlanOffer struct {
	Plan        wallet.Plan `json:"plan"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	PriceLabel  string      `json:"price_label"`
	BuyButtonID string      `json:"buy_button_id,omitempty"`
	Purchasable bool        `json:"purchasable"`
}

type PlanCatalogue struct {
	PublishableKey string      `json:"publishable_key,omitempty"`
	Plans          []PlanOffer `json:"plans"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutCreator creates hosted checkout sessions for paid plans.
type CheckoutCreator interface {
	Catalogue() PlanCatalogue
	CreateCheckoutSession(userID uuid.UUID, email string, plan wallet.Plan) (*CheckoutSession, error)
}

type StripeConfig struct {
	SecretKey            string
	PublishableKey       string
	DailyPriceID         string
	UnlimitedPriceID     string
	DailyBuyButtonID     string
	UnlimitedBuyButtonID string
	SuccessURL           string
	CancelURL            string
	DailyCap             int
}

type StripeService struct {
	cfg        StripeConfig
	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeService(cfg StripeConfig) *StripeService {
	stripe.Key = cfg.SecretKey
	return &StripeService{cfg: cfg, newSession: session.New}
}

func (s *StripeService) Catalogue() PlanCatalogue {
	return PlanCatalogue{
		PublishableKey: s.cfg.PublishableKey,
		Plans: []PlanOffer{
			{
				Plan:        wallet.PlanFree,
				Name:        "Free",
				Description: "Start with 100 diamonds and claim a weekly bonus.",
				PriceLabel:  "$0",
				Purchasable: false,
			},
			{
				Plan:        wallet.PlanDailyCap,
				Name:        "Daily Pro",
				Description: fmt.Sprintf("Your balance is topped up to %d diamonds every day.", s.cfg.DailyCap),
				PriceLabel:  "monthly",
				BuyButtonID: s.cfg.DailyBuyButtonID,
				Purchasable: s.cfg.DailyPriceID != "",
			},
			{
				Plan:        wallet.PlanUnlimited,
				Name:        "Unlimited",
				Description: "Every studio action without spending diamonds.",
				PriceLabel:  "monthly",
				BuyButtonID: s.cfg.UnlimitedBuyButtonID,
				Purchasable: s.cfg.UnlimitedPriceID != "",
			},
		},
	}
}

func (s *StripeService) priceID(plan wallet.Plan) string {
	switch plan {
	case wallet.PlanDailyCap:
		return s.cfg.DailyPriceID
	case wallet.PlanUnlimited:
		return s.cfg.UnlimitedPriceID
	}
	return ""
}

func (s *StripeService) CreateCheckoutSession(userID uuid.UUID, email string, plan wallet.Plan) (*CheckoutSession, error) {
	priceID := s.priceID(plan)
	if priceID == "" || s.cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotPurchasable, plan)
	}

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		Metadata: map[string]string{
			"user_id": userID.String(),
			"plan":    string(plan),
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	cs, err := s.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}
