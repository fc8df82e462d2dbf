package notification_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/paysettle/internal/app/service/audit"
	"github.com/fatflowers/paysettle/internal/app/service/correlation"
	"github.com/fatflowers/paysettle/internal/app/service/settlement"
	"github.com/fatflowers/paysettle/internal/models"
	"github.com/fatflowers/paysettle/internal/platform/processor"
	"github.com/fatflowers/paysettle/pkg/logctx"
	"github.com/fatflowers/paysettle/pkg/types"
)

const eventTypeVerification = "verification"

// Result is what the transport reports back. Ignored events are valid
// notifications that do not settle a payment.
type Result struct {
	Provider   types.PaymentProvider `json:"provider"`
	EventType  string                `json:"event_type"`
	Ignored    bool                  `json:"ignored,omitempty"`
	Message    string                `json:"message,omitempty"`
	Settlement *settlement.Result    `json:"settlement,omitempty"`
}

type NotificationHandler struct {
	processors *processor.Registry
	settleSvc  *settlement.Service
	auditSvc   *audit.Service
	Logger     *zap.SugaredLogger
}

func NewNotificationHandler(processors *processor.Registry, settle *settlement.Service, auditSvc *audit.Service, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{processors: processors, settleSvc: settle, auditSvc: auditSvc, Logger: log}
}

// HandleNotification verifies and settles one webhook delivery. Signature
// failures return processor.ErrInvalidSignature before anything is journaled.
func (h *NotificationHandler) HandleNotification(ctx context.Context, provider types.PaymentProvider, payload []byte, header http.Header) (*Result, error) {
	proc, err := h.processors.Get(provider)
	if err != nil {
		return nil, err
	}
	event, err := proc.ParseWebhook(payload, header)
	if err != nil {
		return nil, err
	}

	res := &Result{Provider: provider, EventType: event.Type}
	txn := event.Transaction
	if txn == nil || !txn.Succeeded {
		res.Ignored = true
		res.Message = "event does not settle a payment"
		h.Logger.Debugw("ignoring webhook event", "provider", provider, "type", event.Type)
		return res, nil
	}

	res.Settlement, err = h.settle(ctx, provider, event.Type, txn, json.RawMessage(payload), settlementRequest(txn, types.ActivationSourceWebhook, ""))
	return res, err
}

// HandleVerification looks the reference up at the processor and settles it
// when the processor reports success. subscriptionID is optional.
func (h *NotificationHandler) HandleVerification(ctx context.Context, provider types.PaymentProvider, reference, subscriptionID string) (*Result, error) {
	proc, err := h.processors.Get(provider)
	if err != nil {
		return nil, err
	}
	txn, err := proc.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}

	res := &Result{Provider: proc.Provider(), EventType: eventTypeVerification}
	if !txn.Succeeded {
		res.Ignored = true
		res.Message = "payment has not succeeded"
		return res, nil
	}
	data := h.encodeJournal(ctx, txn, reference)
	res.Settlement, err = h.settle(ctx, proc.Provider(), eventTypeVerification, txn, data, settlementRequest(txn, types.ActivationSourceVerification, subscriptionID))
	return res, err
}

// settle journals the notification around the settlement attempt.
func (h *NotificationHandler) settle(ctx context.Context, provider types.PaymentProvider, eventType string, txn *processor.Transaction, data []byte, req settlement.Request) (settled *settlement.Result, resErr error) {
	traceID := logctx.TraceID(ctx)
	receivedAt := time.Now()
	journal := func(status models.PaymentNotificationLogStatus, result *datatypes.JSON) *models.PaymentNotificationLog {
		return &models.PaymentNotificationLog{
			Provider:   provider,
			EventType:  eventType,
			TraceID:    traceID,
			Reference:  txn.Reference,
			ReceivedAt: receivedAt,
			Data:       datatypes.JSON(data),
			Result:     result,
			Status:     status,
		}
	}

	// Save 'received' log
	h.auditSvc.SaveNotification(ctx, journal(models.PaymentNotificationLogStatusReceived, nil))

	defer func() {
		resMap := map[string]any{"settlement": settled}
		if resErr != nil {
			resMap["error"] = resErr.Error()
		}
		resBytes := h.encodeJournal(ctx, resMap, txn.Reference)
		status := models.PaymentNotificationLogStatusHandled
		if resErr != nil || (settled != nil && settled.Retryable()) {
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		result := datatypes.JSON(resBytes)
		h.auditSvc.SaveNotification(ctx, journal(status, &result))
	}()

	settled, resErr = h.settleSvc.Settle(ctx, req)
	if resErr != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("failed to settle payment", "provider", provider, "reference", txn.Reference, "error", resErr.Error())
		return nil, fmt.Errorf("failed to settle payment: %w", resErr)
	}
	logctx.FromCtx(ctx, h.Logger).Infow("payment settled", "provider", provider, "reference", txn.Reference, "outcome", settled.Outcome)
	return settled, nil
}

// emptyJournal stands in for a payload that could not be encoded; the column
// is jsonb and must stay valid.
var emptyJournal = []byte("{}")

func (h *NotificationHandler) encodeJournal(ctx context.Context, v any, reference string) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logctx.FromCtx(ctx, h.Logger).Warnw("failed to encode notification journal payload", "reference", reference, "error", err.Error())
		return emptyJournal
	}
	return data
}

func settlementRequest(txn *processor.Transaction, source types.ActivationSource, subscriptionID string) settlement.Request {
	return settlement.Request{
		Correlation: correlation.Correlation{
			Reference: txn.Reference,
			Amount:    txn.Amount,
			Currency:  txn.Currency,
			Email:     txn.Email,
			Metadata:  txn.Metadata,
			PaymentID: txn.PaymentID,
		},
		SubscriptionID:     subscriptionID,
		Provider:           txn.Provider,
		AuthorizationCode:  txn.AuthorizationCode,
		ProviderCustomerID: txn.CustomerCode,
		PaidAt:             txn.PaidAt,
		Source:             source,
	}
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
