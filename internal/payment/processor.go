package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
)

type VerifyRequest struct {
	PaymentID      string
	GatewayOrderID string
	Signature      string
}

type WebhookResult struct {
	Event        string
	Ignored      bool
	Confirmation *Confirmation
}

type Service interface {
	// Verify confirms a payment reported by the browser after checkout.
	Verify(ctx context.Context, req VerifyRequest) (*Confirmation, error)
	// HandleWebhook confirms a payment reported server to server. body must
	// be the raw request body the signature was computed over.
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
}

type processor struct {
	signer     *gateway.Signer
	gateway    gateway.Gateway
	reconciler *Reconciler
}

func NewService(signer *gateway.Signer, gw gateway.Gateway, reconciler *Reconciler) Service {
	return &processor{
		signer:     signer,
		gateway:    gw,
		reconciler: reconciler,
	}
}

func (p *processor) Verify(ctx context.Context, req VerifyRequest) (*Confirmation, error) {
	if err := p.signer.VerifyPayment(req.GatewayOrderID, req.PaymentID, req.Signature); err != nil {
		log.Warn().Str("gateway_order_id", req.GatewayOrderID).Str("payment_id", req.PaymentID).Msg("payment: verify signature mismatch")
		return nil, err
	}

	gwOrder, err := p.gateway.FetchOrder(ctx, req.GatewayOrderID)
	if err != nil {
		log.Error().Err(err).Str("gateway_order_id", req.GatewayOrderID).Msg("payment: failed to fetch gateway order")
		if errors.Is(err, gateway.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrGateway, err)
	}

	cartID, err := noteCartID(gwOrder.Notes)
	if err != nil {
		log.Warn().Err(err).Str("gateway_order_id", req.GatewayOrderID).Msg("payment: gateway order carries an unusable cart id")
		cartID = uuid.Nil
	}

	return p.reconciler.Reconcile(ctx, Capture{
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		CartID:         cartID,
		Amount:         gwOrder.Amount,
	})
}

func (p *processor) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if err := p.signer.VerifyWebhook(body, signature); err != nil {
		log.Warn().Int("body_size", len(body)).Msg("payment: webhook signature mismatch")
		return nil, err
	}

	event, capture, err := parseWebhook(body)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("payment: webhook rejected")
		return nil, err
	}
	if capture == nil {
		log.Debug().Str("event", event).Msg("payment: webhook event ignored")
		return &WebhookResult{Event: event, Ignored: true}, nil
	}

	confirmation, err := p.reconciler.Reconcile(ctx, *capture)
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Event: event, Confirmation: confirmation}, nil
}

// noteCartID reads the cart id attached to an intent. A missing note yields
// uuid.Nil so the stored intent decides.
func noteCartID(notes gateway.Notes) (uuid.UUID, error) {
	raw, ok := notes[gateway.NoteCartID]
	if !ok || raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s note %q: %w", gateway.NoteCartID, raw, err)
	}
	return id, nil
}
