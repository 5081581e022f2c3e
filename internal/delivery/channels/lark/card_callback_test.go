package lark

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beanbot/internal/reminder"

	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
)

type reminderHarness struct {
	gw      *Gateway
	rec     *RecordingMessenger
	service *reminder.Service
	clock   *reminder.ManualClock
}

func newReminderHarness(t *testing.T, cards bool) *reminderHarness {
	t.Helper()
	gw, rec := newTestGateway(t, cards)

	snap := reminder.DefaultSettings()
	snap.Location = time.UTC
	snap.RecipientID = walkerID
	snap.EscalationID = ownerID
	settings, err := reminder.NewSettings(snap)
	if err != nil {
		t.Fatalf("NewSettings: %v", err)
	}
	clock := reminder.NewManualClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	service, err := reminder.NewService(reminder.Options{Settings: settings, Messenger: gw, Clock: clock})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(service.Stop)
	gw.SetReminderResponder(service)
	return &reminderHarness{gw: gw, rec: rec, service: service, clock: clock}
}

func cardEvent(messageID, operator, answer string) *callback.CardActionTriggerEvent {
	return &callback.CardActionTriggerEvent{
		Event: &callback.CardActionTriggerRequest{
			Operator: &callback.Operator{OpenID: operator},
			Action: &callback.CallBackAction{
				Value: map[string]interface{}{"reminder_answer": answer},
			},
			Context: &callback.Context{OpenMessageID: messageID, OpenChatID: "oc_walker"},
		},
	}
}

func TestCardActionYesResolvesReminder(t *testing.T) {
	h := newReminderHarness(t, true)
	occ, err := h.service.Dispatch(context.Background(), reminder.SlotMorning)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	resp, err := h.gw.handleCardAction(context.Background(), cardEvent(occ.Prompt.MessageID, walkerID, "yes"))
	if err != nil {
		t.Fatalf("handleCardAction: %v", err)
	}
	if resp.Toast == nil || resp.Toast.Type != toastSuccess || !strings.Contains(resp.Toast.Content, "Thanks for taking care of the dog") {
		t.Fatalf("unexpected toast: %+v", resp.Toast)
	}
	if len(h.service.Pending()) != 0 {
		t.Fatal("expected reminder to be resolved")
	}
	patches := h.rec.CallsByMethod("PatchMessage")
	if len(patches) != 1 || patches[0].MsgID != occ.Prompt.MessageID {
		t.Fatalf("expected prompt controls to be disabled, got %+v", patches)
	}

	// The watcher was cancelled, so the deadline passes quietly.
	h.clock.Advance(2 * time.Hour)
	if sends := h.rec.CallsByMethod("SendMessage"); len(sends) != 1 {
		t.Fatalf("expected only the prompt to be sent, got %d messages", len(sends))
	}
}

func TestCardActionNoEscalates(t *testing.T) {
	h := newReminderHarness(t, true)
	occ, err := h.service.Dispatch(context.Background(), reminder.SlotEvening)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	resp, _ := h.gw.handleCardAction(context.Background(), cardEvent(occ.Prompt.MessageID, walkerID, "no"))
	if resp.Toast.Type != toastSuccess || !strings.Contains(resp.Toast.Content, "as soon as possible") {
		t.Fatalf("unexpected toast: %+v", resp.Toast)
	}
	sends := h.rec.CallsByMethod("SendMessage")
	if len(sends) != 2 || sends[1].ReceiveID != ownerID || sends[1].MsgType != msgTypeText {
		t.Fatalf("expected an escalation to the owner, got %+v", sends)
	}
}

func TestCardActionFromOtherUserIsRejected(t *testing.T) {
	h := newReminderHarness(t, true)
	occ, _ := h.service.Dispatch(context.Background(), reminder.SlotNoon)

	resp, _ := h.gw.handleCardAction(context.Background(), cardEvent(occ.Prompt.MessageID, ownerID, "yes"))
	if resp.Toast.Type != toastInfo || resp.Toast.Content != "This reminder isn't for you." {
		t.Fatalf("unexpected toast: %+v", resp.Toast)
	}
	if len(h.service.Pending()) != 1 {
		t.Fatal("reminder must stay pending")
	}
}

func TestCardActionAfterTimeoutReportsHandled(t *testing.T) {
	h := newReminderHarness(t, true)
	occ, _ := h.service.Dispatch(context.Background(), reminder.SlotMorning)
	h.clock.Advance(time.Hour)

	resp, _ := h.gw.handleCardAction(context.Background(), cardEvent(occ.Prompt.MessageID, walkerID, "yes"))
	if resp.Toast.Type != toastInfo || resp.Toast.Content != "This reminder has already been handled." {
		t.Fatalf("unexpected toast: %+v", resp.Toast)
	}
}

func TestCardActionInvalidPayloads(t *testing.T) {
	h := newReminderHarness(t, true)
	ctx := context.Background()

	cases := map[string]*callback.CardActionTriggerEvent{
		"nil event":      nil,
		"no answer":      cardEvent("om_1", walkerID, ""),
		"no message":     cardEvent("", walkerID, "yes"),
		"no operator":    cardEvent("om_1", "", "yes"),
		"unknown answer": cardEvent("om_1", walkerID, "maybe"),
	}
	for name, event := range cases {
		resp, err := h.gw.handleCardAction(ctx, event)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if resp.Toast == nil || resp.Toast.Type != toastError {
			t.Fatalf("%s: expected error toast, got %+v", name, resp.Toast)
		}
	}
}

func TestTextAnswerResolvesLatestPrompt(t *testing.T) {
	h := newReminderHarness(t, false)
	if _, err := h.service.Dispatch(context.Background(), reminder.SlotNoon); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if err := h.gw.handleMessage(context.Background(), textEvent("p2p", "oc_walker", "om_in_1", walkerID, "user", "Yes")); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	h.gw.WaitForTasks()

	if len(h.service.Pending()) != 0 {
		t.Fatal("expected text answer to resolve the reminder")
	}
	sends := h.rec.CallsByMethod("SendMessage")
	last := sends[len(sends)-1]
	if last.ReceiveIDType != receiveIDChatID || last.ReceiveID != "oc_walker" || !strings.Contains(last.Content, "Thanks for taking care of the dog") {
		t.Fatalf("expected acknowledgement reply in chat, got %+v", last)
	}
}

func TestCardCallbackHandlerDisabledWithoutCards(t *testing.T) {
	gw, _ := newTestGateway(t, false)
	if NewCardCallbackHandler(gw, nil) != nil {
		t.Fatal("expected nil handler when cards are disabled")
	}
}

func TestCardCallbackHandlerRejectsGet(t *testing.T) {
	gw, _ := newTestGateway(t, true)
	handler := NewCardCallbackHandler(gw, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/lark/card-callback", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestCardCallbackHandlerAnswersChallenge(t *testing.T) {
	gw, err := NewGateway(Config{AppID: "cli_test", AppSecret: "secret", CardsEnabled: true, VerificationToken: "vtok"}, nil, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	handler := NewCardCallbackHandler(gw, nil)

	body := `{"type":"url_verification","challenge":"challenge-123","token":"vtok"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/lark/card-callback", strings.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "challenge-123") {
		t.Fatalf("expected challenge echo, got %s", rr.Body.String())
	}
}

func TestIsEncryptedCallbackPayload(t *testing.T) {
	if !isEncryptedCallbackPayload([]byte(`{"encrypt":"abc"}`)) {
		t.Fatal("expected encrypted payload")
	}
	if isEncryptedCallbackPayload([]byte(`{"type":"url_verification"}`)) {
		t.Fatal("expected plaintext payload")
	}
}

func TestCardActionBeforePromptIsRegisteredIsAckedInChat(t *testing.T) {
	h := newReminderHarness(t, true)

	var toast *callback.Toast
	h.rec.AfterSend = func(call MessengerCall, messageID string) {
		if toast != nil || call.ReceiveID != walkerID || call.MsgType != msgTypeInteractive {
			return
		}
		resp, err := h.gw.handleCardAction(context.Background(), cardEvent(messageID, walkerID, "yes"))
		if err != nil {
			t.Errorf("handleCardAction: %v", err)
			return
		}
		toast = resp.Toast
	}

	if _, err := h.service.Dispatch(context.Background(), reminder.SlotMorning); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if toast == nil || toast.Type != toastInfo || toast.Content != "Answer received." {
		t.Fatalf("unexpected toast: %+v", toast)
	}
	if len(h.service.Pending()) != 0 {
		t.Fatal("expected the early answer to resolve the reminder")
	}
	sends := h.rec.CallsByMethod("SendMessage")
	last := sends[len(sends)-1]
	if last.ReceiveIDType != receiveIDChatID || last.ReceiveID != "oc_walker" || !strings.Contains(last.Content, "Thanks for taking care of the dog") {
		t.Fatalf("expected acknowledgement reply in chat, got %+v", last)
	}

	h.clock.Advance(2 * time.Hour)
	for _, call := range h.rec.CallsByMethod("SendMessage") {
		if call.ReceiveID == ownerID {
			t.Fatalf("unexpected escalation after an early yes: %+v", call)
		}
	}
}

func TestAckLaterSendsAlreadyCollectedContent(t *testing.T) {
	gw, rec := newTestGateway(t, false)
	if err := gw.AcknowledgeInteraction(context.Background(), "text_1", "Noted"); err != nil {
		t.Fatalf("AcknowledgeInteraction: %v", err)
	}
	gw.ackLater(context.Background(), "text_1", ackTarget{idType: receiveIDChatID, id: "oc_walker"})

	sends := rec.CallsByMethod("SendMessage")
	if len(sends) != 1 || sends[0].ReceiveID != "oc_walker" || !strings.Contains(sends[0].Content, "Noted") {
		t.Fatalf("expected one chat reply, got %+v", sends)
	}
	if got := gw.takeAck("text_1"); got != "" {
		t.Fatalf("ack should be consumed, got %q", got)
	}
}
