package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/calloway-labs/cvforge/internal/billing"
	"github.com/calloway-labs/cvforge/internal/domain"
	"github.com/calloway-labs/cvforge/internal/middleware"
	"github.com/calloway-labs/cvforge/internal/ratelimit"
	"github.com/calloway-labs/cvforge/internal/service"
)

// BillingHandler handles checkout, portal, and plan listing.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	policy      *ratelimit.Policy
	baseURL     string
	prices      billing.PriceConfig
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, userService service.UserService, policy *ratelimit.Policy, baseURL string, prices billing.PriceConfig, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		policy:      policy,
		baseURL:     baseURL,
		prices:      prices,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, public, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /api/plans", public(http.HandlerFunc(h.ListPlans)))
	mux.Handle("POST /api/payments/checkout-session", authed(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", authed(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", authed(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", authed(http.HandlerFunc(h.ReactivateSubscription)))
}

// planInfo describes one tier: its prices and what it buys per scope.
type planInfo struct {
	Name           string         `json:"name"`
	MonthlyPriceID string         `json:"monthly_price_id,omitempty"`
	YearlyPriceID  string         `json:"yearly_price_id,omitempty"`
	Limits         map[string]int `json:"limits"`
}

// ListPlans returns every tier with its per-scope limits and Stripe price
// IDs, so clients can render a pricing table without hard-coding either.
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	priceIDs := map[domain.PlanTier][2]string{
		domain.PlanBasic:   {h.prices.BasicMonthlyPriceID, h.prices.BasicYearlyPriceID},
		domain.PlanPro:     {h.prices.ProMonthlyPriceID, h.prices.ProYearlyPriceID},
		domain.PlanPremium: {h.prices.PremiumMonthlyPriceID, h.prices.PremiumYearlyPriceID},
	}

	plans := make([]planInfo, 0, len(domain.PlanTiers()))
	for _, tier := range domain.PlanTiers() {
		limits := make(map[string]int, len(ratelimit.Scopes()))
		for _, scope := range ratelimit.Scopes() {
			limits[string(scope)] = h.policy.Rate(tier, scope).Limit
		}

		p := planInfo{Name: string(tier), Limits: limits}
		if ids, ok := priceIDs[tier]; ok {
			p.MonthlyPriceID = ids[0]
			p.YearlyPriceID = ids[1]
		}
		plans = append(plans, p)
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"plans": plans,
	})
}

// CreateCheckout creates a Stripe Checkout session for a paid plan and
// returns its URL. A Stripe customer is created on first use.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable("", "Billing is not configured"))
		return
	}

	var req struct {
		PriceID string `json:"price_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.PriceID == "" {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "price_id is required"))
		return
	}
	if h.billing.TierForPriceID(req.PriceID) == domain.PlanFree {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "Unknown price_id"))
		return
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			h.logger.Error("failed to create stripe customer", "error", err, "user_id", user.ID)
			ErrorResponse(w, r, h.logger,
				domain.Upstream(err, "", "Failed to initialize billing"))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			h.logger.Error("failed to save stripe customer ID", "error", err, "user_id", user.ID)
		}
	}

	successURL := fmt.Sprintf("%s/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/billing/canceled", h.baseURL)

	checkoutURL, err := h.billing.CreateCheckoutSession(customerID, req.PriceID, successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger,
			domain.Upstream(err, "", "Failed to create checkout session"))
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, map[string]string{
		"checkout_url": checkoutURL,
	})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable("", "Billing is not configured"))
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "No billing account. Complete a checkout first."))
		return
	}

	returnURL := fmt.Sprintf("%s/billing", h.baseURL)
	portalURL, err := h.billing.CreatePortalSession(user.StripeCustomerID, returnURL)
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger,
			domain.Upstream(err, "", "Failed to open billing portal"))
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, map[string]string{
		"portal_url": portalURL,
	})
}

// CancelSubscription sets the subscription to cancel at period end. The
// plan stays in force until then; the webhook applies the downgrade.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable("", "Billing is not configured"))
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "No active subscription to cancel"))
		return
	}

	if err := h.billing.CancelSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger,
			domain.Upstream(err, "", "Failed to cancel subscription"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable("", "Billing is not configured"))
		return
	}
	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger,
			domain.Invalid("", "No subscription to reactivate"))
		return
	}

	if err := h.billing.ReactivateSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger,
			domain.Upstream(err, "", "Failed to reactivate subscription"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
