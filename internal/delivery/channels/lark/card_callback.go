package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"beanbot/internal/lark/cards"
	"beanbot/internal/logging"
	"beanbot/internal/observability"
	"beanbot/internal/reminder"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

const maxCardCallbackBodyBytes = 1 << 20

const (
	toastSuccess = "success"
	toastInfo    = "info"
	toastError   = "error"
)

// NewCardCallbackHandler returns an HTTP handler for Lark card callbacks.
// It returns nil only when cards are disabled.
func NewCardCallbackHandler(gateway *Gateway, logger logging.Logger) http.Handler {
	if gateway == nil {
		return nil
	}
	cfg := gateway.cfg
	if !cfg.CardsEnabled {
		return nil
	}
	verificationToken := strings.TrimSpace(cfg.VerificationToken)
	if verificationToken == "" {
		logging.OrNop(logger).Warn("Lark card callback verification token missing: url verification challenge may fail")
	}
	encryptKey := strings.TrimSpace(cfg.EncryptKey)
	plainDispatcher := dispatcher.NewEventDispatcher(verificationToken, "")
	plainDispatcher.OnP2CardActionTrigger(gateway.handleCardAction)

	var encryptedDispatcher *dispatcher.EventDispatcher
	var encryptedNoSignDispatcher *dispatcher.EventDispatcher
	if encryptKey != "" {
		encryptedDispatcher = dispatcher.NewEventDispatcher(verificationToken, encryptKey)
		encryptedDispatcher.OnP2CardActionTrigger(gateway.handleCardAction)

		encryptedNoSignDispatcher = dispatcher.NewEventDispatcher(verificationToken, encryptKey)
		encryptedNoSignDispatcher.InitConfig(larkevent.WithSkipSignVerify(true))
		encryptedNoSignDispatcher.OnP2CardActionTrigger(gateway.handleCardAction)
	}

	return &cardCallbackHandler{
		plaintextDispatcher:       plainDispatcher,
		encryptedDispatcher:       encryptedDispatcher,
		encryptedNoSignDispatcher: encryptedNoSignDispatcher,
		logger:                    logging.OrNop(logger),
	}
}

type cardCallbackHandler struct {
	plaintextDispatcher       *dispatcher.EventDispatcher
	encryptedDispatcher       *dispatcher.EventDispatcher
	encryptedNoSignDispatcher *dispatcher.EventDispatcher
	logger                    logging.Logger
}

func (h *cardCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.plaintextDispatcher == nil {
		http.Error(w, "handler not ready", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCardCallbackBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}

	disp := h.plaintextDispatcher
	if isEncryptedCallbackPayload(body) && h.encryptedDispatcher != nil {
		if hasLarkCallbackSignatureHeaders(r.Header) {
			disp = h.encryptedDispatcher
		} else if h.encryptedNoSignDispatcher != nil {
			h.logger.Warn("Lark card callback missing signature headers; fallback to skip-sign verification")
			disp = h.encryptedNoSignDispatcher
		}
	}

	req := &larkevent.EventReq{
		Header:     r.Header,
		Body:       body,
		RequestURI: r.RequestURI,
	}
	resp := disp.Handle(r.Context(), req)
	if resp == nil {
		http.Error(w, "empty response", http.StatusInternalServerError)
		return
	}
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func isEncryptedCallbackPayload(body []byte) bool {
	var envelope struct {
		Encrypt string `json:"encrypt"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return strings.TrimSpace(envelope.Encrypt) != ""
}

func hasLarkCallbackSignatureHeaders(header http.Header) bool {
	if header == nil {
		return false
	}
	signature := strings.TrimSpace(header.Get(larkevent.EventSignature))
	timestamp := strings.TrimSpace(header.Get(larkevent.EventRequestTimestamp))
	nonce := strings.TrimSpace(header.Get(larkevent.EventRequestNonce))
	return signature != "" && timestamp != "" && nonce != ""
}

// handleCardAction turns a Yes/No button press into a reminder answer and
// returns the acknowledgement as a toast.
func (g *Gateway) handleCardAction(ctx context.Context, event *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
	if g == nil || event == nil || event.Event == nil || event.Event.Action == nil {
		return cardToast(toastError, "Invalid action."), nil
	}
	answer := extractActionValue(event.Event.Action, cards.AnswerValueKey)
	g.metrics.RecordCallback(answer)

	ctx, span := observability.StartSpan(ctx, observability.SpanCardCallback,
		attribute.String(observability.AttrAnswer, answer))
	defer span.End()

	if answer == "" {
		return cardToast(toastError, "Invalid action."), nil
	}

	var chatID, messageID, actorID string
	if event.Event.Context != nil {
		chatID = strings.TrimSpace(event.Event.Context.OpenChatID)
		messageID = strings.TrimSpace(event.Event.Context.OpenMessageID)
	}
	if event.Event.Operator != nil {
		actorID = strings.TrimSpace(event.Event.Operator.OpenID)
	}
	if messageID == "" || actorID == "" {
		return cardToast(toastError, "Missing message context."), nil
	}
	if g.responder == nil {
		return cardToast(toastError, errNotReady.Error()), nil
	}

	ref := "card_" + ksuid.New().String()
	outcome := g.responder.Respond(ctx, reminder.Interaction{
		Ref:     ref,
		ActorID: actorID,
		Prompt:  reminder.MessageRef{ChatID: chatID, MessageID: messageID},
		Answer:  reminder.Answer(answer),
	})
	for _, err := range outcome.Failures() {
		g.logger.Warn("Lark card action %s: %v", messageID, err)
	}

	if outcome.Deferred {
		target := ackTarget{idType: receiveIDChatID, id: chatID}
		if chatID == "" {
			target = ackTarget{idType: receiveIDOpenID, id: actorID}
		}
		g.ackLater(ctx, ref, target)
		return cardToast(toastInfo, "Answer received."), nil
	}

	content := g.takeAck(ref)
	switch {
	case content == "":
		return cardToast(toastError, "Could not record your answer."), nil
	case outcome.Occurrence.IsSome():
		return cardToast(toastSuccess, content), nil
	default:
		return cardToast(toastInfo, content), nil
	}
}

func cardToast(kind, content string) *callback.CardActionTriggerResponse {
	return &callback.CardActionTriggerResponse{
		Toast: &callback.Toast{
			Type:    kind,
			Content: content,
		},
	}
}

func extractActionValue(action *callback.CallBackAction, key string) string {
	if action == nil {
		return ""
	}
	if action.FormValue != nil {
		if val, ok := action.FormValue[key]; ok {
			return strings.TrimSpace(fmt.Sprint(val))
		}
	}
	if action.Value != nil {
		if val, ok := action.Value[key]; ok {
			return strings.TrimSpace(fmt.Sprint(val))
		}
	}
	return ""
}
