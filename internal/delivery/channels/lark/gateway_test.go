package lark

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"beanbot/internal/chatter"
	"beanbot/internal/commands"
	"beanbot/internal/reminder"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

const (
	walkerID = "ou_walker"
	ownerID  = "ou_owner"
)

func newTestGateway(t *testing.T, cards bool) (*Gateway, *RecordingMessenger) {
	t.Helper()
	gw, err := NewGateway(Config{AppID: "cli_test", AppSecret: "secret", CardsEnabled: cards}, nil, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	rec := NewRecordingMessenger(map[string]string{walkerID: "Walker", ownerID: "Owner"})
	gw.SetMessenger(rec)
	return gw, rec
}

type stubCommands struct {
	mu   sync.Mutex
	reqs []commands.Request
}

func (s *stubCommands) Handle(_ context.Context, req commands.Request) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if strings.HasPrefix(req.Text, "/dogstatus") {
		return "all good", true
	}
	return "", false
}

type stubChatter struct {
	mu   sync.Mutex
	msgs []chatter.Message
}

func (s *stubChatter) Respond(_ context.Context, msg chatter.Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if strings.Contains(msg.Text, "i love you") {
		return []string{"I love you too, " + msg.Mention + "! <3"}
	}
	return nil
}

func textEvent(chatType, chatID, msgID, openID, senderType, text string) *larkim.P2MessageReceiveV1 {
	msgType := "text"
	content := textContent(text)
	return &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Message: &larkim.EventMessage{
				MessageType: &msgType,
				ChatType:    &chatType,
				ChatId:      &chatID,
				MessageId:   &msgID,
				Content:     &content,
			},
			Sender: &larkim.EventSender{
				SenderId:   &larkim.UserId{OpenId: &openID},
				SenderType: &senderType,
			},
		},
	}
}

func TestNewGatewayRequiresCredentials(t *testing.T) {
	if _, err := NewGateway(Config{}, nil, nil); err == nil {
		t.Fatal("expected error for empty credentials")
	}
}

func TestResolveUser(t *testing.T) {
	gw, _ := newTestGateway(t, true)

	user, err := gw.ResolveUser(context.Background(), walkerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "Walker" || user.ID != walkerID {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, err := gw.ResolveUser(context.Background(), "ou_ghost"); !errors.Is(err, reminder.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := gw.ResolveUser(context.Background(), " "); !errors.Is(err, reminder.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty id, got %v", err)
	}
}

func TestSendDirectMessageWithActionsSendsCard(t *testing.T) {
	gw, rec := newTestGateway(t, true)

	ref, err := gw.SendDirectMessage(context.Background(), walkerID, "Time to feed the dog!", reminder.PromptActions...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.MessageID != "om_recorded_1" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	sends := rec.CallsByMethod("SendMessage")
	if len(sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sends))
	}
	call := sends[0]
	if call.ReceiveIDType != receiveIDOpenID || call.ReceiveID != walkerID || call.MsgType != msgTypeInteractive {
		t.Fatalf("unexpected send call: %+v", call)
	}
	if !strings.Contains(call.Content, `"reminder_answer":"yes"`) || !strings.Contains(call.Content, `"reminder_answer":"no"`) {
		t.Fatalf("expected yes/no buttons in card, got %s", call.Content)
	}

	if err := gw.EditMessageControls(context.Background(), ref, true); err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	patches := rec.CallsByMethod("PatchMessage")
	if len(patches) != 1 || patches[0].MsgID != ref.MessageID {
		t.Fatalf("expected one patch of %s, got %+v", ref.MessageID, patches)
	}
	if !strings.Contains(patches[0].Content, `"disabled":true`) {
		t.Fatalf("expected disabled buttons, got %s", patches[0].Content)
	}
}

func TestSendDirectMessageWithoutActionsSendsText(t *testing.T) {
	gw, rec := newTestGateway(t, true)

	if _, err := gw.SendDirectMessage(context.Background(), ownerID, "The dog was not fed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := rec.Calls()[0]
	if call.MsgType != msgTypeText || call.Content != textContent("The dog was not fed") {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestTextModePromptHasNoControlsToEdit(t *testing.T) {
	gw, rec := newTestGateway(t, false)

	ref, err := gw.SendDirectMessage(context.Background(), walkerID, "Walk the dog", reminder.PromptActions...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Calls()[0].Content; !strings.Contains(got, `Reply \"yes\" or \"no\".`) {
		t.Fatalf("expected answer hint in text prompt, got %s", got)
	}
	if err := gw.EditMessageControls(context.Background(), ref, true); err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	if len(rec.CallsByMethod("PatchMessage")) != 0 {
		t.Fatal("text prompts must not be patched")
	}
}

func TestEditMessageControlsUnknownPrompt(t *testing.T) {
	gw, _ := newTestGateway(t, true)
	if err := gw.EditMessageControls(context.Background(), reminder.MessageRef{MessageID: "om_unknown"}, true); err == nil {
		t.Fatal("expected error for uncached prompt")
	}
}

func TestSendDirectMessageError(t *testing.T) {
	gw, rec := newTestGateway(t, true)
	rec.NextError = errors.New("rate limited")

	if _, err := gw.SendDirectMessage(context.Background(), walkerID, "hi", reminder.PromptActions...); err == nil {
		t.Fatal("expected send error")
	}
	if err := gw.EditMessageControls(context.Background(), reminder.MessageRef{MessageID: "om_recorded_1"}, true); err == nil {
		t.Fatal("failed sends must not be cached as prompts")
	}
}

func TestAcknowledgeInteractionIsCollectedOnce(t *testing.T) {
	gw, _ := newTestGateway(t, true)

	if err := gw.AcknowledgeInteraction(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error for empty ref")
	}
	if err := gw.AcknowledgeInteraction(context.Background(), "card_1", "Thanks!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := gw.takeAck("card_1"); got != "Thanks!" {
		t.Fatalf("expected ack content, got %q", got)
	}
	if got := gw.takeAck("card_1"); got != "" {
		t.Fatalf("expected ack to be consumed, got %q", got)
	}
}

func TestSendJoke(t *testing.T) {
	gw, rec := newTestGateway(t, true)
	if err := gw.SendJoke(context.Background(), walkerID, "How is a book like a king?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := rec.Calls()[0]
	if call.MsgType != msgTypeInteractive || !strings.Contains(call.Content, "Dad Joke Time!") {
		t.Fatalf("unexpected joke call: %+v", call)
	}
}

func TestHandleMessageRoutesCommands(t *testing.T) {
	gw, rec := newTestGateway(t, true)
	cmds := &stubCommands{}
	chat := &stubChatter{}
	gw.SetCommandHandler(cmds)
	gw.SetChatResponder(chat)

	if err := gw.handleMessage(context.Background(), textEvent("group", "oc_1", "om_in_1", ownerID, "user", "/dogstatus")); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	gw.WaitForTasks()

	if len(cmds.reqs) != 1 || cmds.reqs[0].CallerID != ownerID || cmds.reqs[0].ChatID != "oc_1" {
		t.Fatalf("unexpected command requests: %+v", cmds.reqs)
	}
	if len(chat.msgs) != 0 {
		t.Fatal("commands must not reach chatter")
	}
	calls := rec.CallsByMethod("SendMessage")
	if len(calls) != 1 || calls[0].ReceiveIDType != receiveIDChatID || calls[0].Content != textContent("all good") {
		t.Fatalf("unexpected replies: %+v", calls)
	}
}

func TestHandleMessageRoutesChatter(t *testing.T) {
	gw, rec := newTestGateway(t, true)
	chat := &stubChatter{}
	gw.SetChatResponder(chat)

	if err := gw.handleMessage(context.Background(), textEvent("group", "oc_1", "om_in_1", walkerID, "user", "i love you")); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	gw.WaitForTasks()

	calls := rec.CallsByMethod("SendMessage")
	want := textContent(`I love you too, <at user_id="ou_walker"></at>! <3`)
	if len(calls) != 1 || calls[0].Content != want {
		t.Fatalf("unexpected replies: %+v", calls)
	}
}

func TestHandleMessageSkipsBotsAndDuplicates(t *testing.T) {
	gw, _ := newTestGateway(t, true)
	chat := &stubChatter{}
	gw.SetChatResponder(chat)
	ctx := context.Background()

	_ = gw.handleMessage(ctx, textEvent("group", "oc_1", "om_bot", "ou_bot", "app", "i love you"))
	_ = gw.handleMessage(ctx, textEvent("group", "oc_1", "om_dup", walkerID, "user", "hello"))
	_ = gw.handleMessage(ctx, textEvent("group", "oc_1", "om_dup", walkerID, "user", "hello"))
	_ = gw.handleMessage(ctx, nil)
	gw.WaitForTasks()

	if len(chat.msgs) != 1 || chat.msgs[0].Text != "hello" {
		t.Fatalf("expected one deduplicated human message, got %+v", chat.msgs)
	}
}

func TestIsDuplicateMessageExpires(t *testing.T) {
	gw, _ := newTestGateway(t, true)
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	gw.now = func() time.Time { return now }

	if gw.isDuplicateMessage("om_1") {
		t.Fatal("first sighting is not a duplicate")
	}
	if !gw.isDuplicateMessage("om_1") {
		t.Fatal("second sighting within TTL is a duplicate")
	}
	now = now.Add(messageDedupTTL + time.Second)
	if gw.isDuplicateMessage("om_1") {
		t.Fatal("sighting after TTL is not a duplicate")
	}
}

func TestExtractTextContent(t *testing.T) {
	if got := extractTextContent(`{"text":"  hi there "}`); got != "hi there" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := extractTextContent("not json"); got != "not json" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}
