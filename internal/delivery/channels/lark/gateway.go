package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"beanbot/internal/chatter"
	"beanbot/internal/commands"
	"beanbot/internal/lark/cards"
	"beanbot/internal/logging"
	"beanbot/internal/observability"
	"beanbot/internal/reminder"

	lru "github.com/hashicorp/golang-lru/v2"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const (
	messageDedupCacheSize = 2048
	messageDedupTTL       = 10 * time.Minute

	promptCacheSize = 256
	ackCacheSize    = 256

	messageTaskTimeout = 30 * time.Second
)

// ReminderResponder applies answers to reminder prompts.
type ReminderResponder interface {
	Respond(ctx context.Context, in reminder.Interaction) reminder.Outcome
}

// CommandHandler runs slash commands. ok is false for unknown commands.
type CommandHandler interface {
	Handle(ctx context.Context, req commands.Request) (reply string, ok bool)
}

// ChatResponder produces keyword replies.
type ChatResponder interface {
	Respond(ctx context.Context, msg chatter.Message) []string
}

// promptRecord remembers what a reminder prompt looked like so its controls
// can be disabled later.
type promptRecord struct {
	recipientID string
	content     string
	actions     []reminder.Action
	card        bool
}

// Gateway is the Lark side of the bot: it implements reminder.Messenger and
// routes inbound messages to commands, reminder answers and chatter.
type Gateway struct {
	cfg       Config
	logger    logging.Logger
	metrics   *observability.GatewayMetrics
	client    *lark.Client
	wsClient  *larkws.Client
	messenger LarkMessenger

	responder ReminderResponder
	commands  CommandHandler
	chatter   ChatResponder

	dedupMu    sync.Mutex
	dedupCache *lru.Cache[string, time.Time]
	// prompts is keyed by message id, latestPrompt by recipient open id.
	prompts      *lru.Cache[string, promptRecord]
	latestPrompt *lru.Cache[string, string]
	// acks holds content until the interaction path collects it. Refs whose
	// answer was deferred sit in lateAcks and are answered in chat instead.
	ackMu        sync.Mutex
	acks         *lru.Cache[string, string]
	lateAcks     *lru.Cache[string, ackTarget]
	now          func() time.Time
	taskWG       sync.WaitGroup
}

// NewGateway constructs a Lark gateway instance and its REST client.
func NewGateway(cfg Config, logger logging.Logger, metrics *observability.GatewayMetrics) (*Gateway, error) {
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.AppSecret = strings.TrimSpace(cfg.AppSecret)
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark gateway requires app_id and app_secret")
	}
	dedupCache, err := lru.New[string, time.Time](messageDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lark message deduper init: %w", err)
	}
	prompts, err := lru.New[string, promptRecord](promptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lark prompt cache init: %w", err)
	}
	latestPrompt, err := lru.New[string, string](promptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lark prompt index init: %w", err)
	}
	acks, err := lru.New[string, string](ackCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lark ack cache init: %w", err)
	}
	lateAcks, err := lru.New[string, ackTarget](ackCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lark late ack cache init: %w", err)
	}

	var clientOpts []lark.ClientOptionFunc
	if domain := strings.TrimSpace(cfg.BaseDomain); domain != "" {
		clientOpts = append(clientOpts, lark.WithOpenBaseUrl(domain))
	}
	client := lark.NewClient(cfg.AppID, cfg.AppSecret, clientOpts...)

	return &Gateway{
		cfg:          cfg,
		logger:       logging.OrNop(logger),
		metrics:      metrics,
		client:       client,
		messenger:    newSDKMessenger(client),
		dedupCache:   dedupCache,
		prompts:      prompts,
		latestPrompt: latestPrompt,
		acks:         acks,
		lateAcks:     lateAcks,
		now:          time.Now,
	}, nil
}

// SetMessenger replaces the default SDK messenger with a custom implementation.
// This is the primary injection point for testing.
func (g *Gateway) SetMessenger(m LarkMessenger) {
	if g == nil {
		return
	}
	g.messenger = m
}

// SetReminderResponder wires button presses and text answers to the reminder engine.
func (g *Gateway) SetReminderResponder(r ReminderResponder) {
	if g == nil {
		return
	}
	g.responder = r
}

// SetCommandHandler wires slash commands.
func (g *Gateway) SetCommandHandler(h CommandHandler) {
	if g == nil {
		return
	}
	g.commands = h
}

// SetChatResponder wires keyword replies.
func (g *Gateway) SetChatResponder(r ChatResponder) {
	if g == nil {
		return
	}
	g.chatter = r
}

// Start subscribes to message events over the WebSocket connection and blocks
// until ctx is cancelled. With the long connection disabled it only waits
// for ctx.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.cfg.WebsocketEnabled {
		g.logger.Info("Lark websocket disabled; message events will not be received")
		<-ctx.Done()
		return nil
	}

	eventDispatcher := dispatcher.NewEventDispatcher("", "")
	eventDispatcher.OnP2MessageReceiveV1(g.handleMessage)
	eventDispatcher.OnP2MessageReadV1(func(_ context.Context, _ *larkim.P2MessageReadV1) error {
		return nil
	})
	eventDispatcher.OnP2ChatAccessEventBotP2pChatEnteredV1(func(_ context.Context, _ *larkim.P2ChatAccessEventBotP2pChatEnteredV1) error {
		return nil
	})

	var wsOpts []larkws.ClientOption
	wsOpts = append(wsOpts, larkws.WithEventHandler(eventDispatcher))
	wsOpts = append(wsOpts, larkws.WithLogLevel(larkcore.LogLevelInfo))
	if domain := strings.TrimSpace(g.cfg.BaseDomain); domain != "" {
		wsOpts = append(wsOpts, larkws.WithDomain(domain))
	}
	g.wsClient = larkws.NewClient(g.cfg.AppID, g.cfg.AppSecret, wsOpts...)

	g.logger.Info("Lark gateway connecting (app_id=%s)...", g.cfg.AppID)
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.wsClient.Start(ctx)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// WaitForTasks blocks until all in-flight message goroutines complete.
// Intended for test synchronization and shutdown.
func (g *Gateway) WaitForTasks() {
	g.taskWG.Wait()
}

// ResolveUser implements reminder.Messenger.
func (g *Gateway) ResolveUser(ctx context.Context, userID string) (reminder.UserHandle, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return reminder.UserHandle{}, fmt.Errorf("%w: empty user id", reminder.ErrUserNotFound)
	}
	if g.messenger == nil {
		return reminder.UserHandle{}, fmt.Errorf("lark messenger not initialized")
	}
	profile, err := g.messenger.GetUser(ctx, userID)
	if err != nil {
		return reminder.UserHandle{}, err
	}
	return reminder.UserHandle{ID: userID, Name: profile.Name}, nil
}

// SendDirectMessage implements reminder.Messenger. Messages with actions are
// sent as reminder cards when cards are enabled.
func (g *Gateway) SendDirectMessage(ctx context.Context, userID, content string, actions ...reminder.Action) (reminder.MessageRef, error) {
	if g.messenger == nil {
		return reminder.MessageRef{}, fmt.Errorf("lark messenger not initialized")
	}
	msgType, payload := msgTypeText, textContent(content)
	useCard := len(actions) > 0 && g.cfg.CardsEnabled
	if useCard {
		card, err := cards.ReminderCard(content, reminderActions(actions), false)
		if err != nil {
			return reminder.MessageRef{}, fmt.Errorf("build reminder card: %w", err)
		}
		msgType, payload = msgTypeInteractive, card
	} else if len(actions) > 0 {
		payload = textContent(content + "\n\n" + textAnswerHint(actions))
	}

	messageID, err := g.messenger.SendMessage(ctx, receiveIDOpenID, userID, msgType, payload)
	if err != nil {
		g.metrics.RecordSendError("direct")
		return reminder.MessageRef{}, err
	}
	if len(actions) > 0 {
		g.prompts.Add(messageID, promptRecord{
			recipientID: userID,
			content:     content,
			actions:     append([]reminder.Action(nil), actions...),
			card:        useCard,
		})
		g.latestPrompt.Add(userID, messageID)
	}
	return reminder.MessageRef{ChatID: userID, MessageID: messageID}, nil
}

// EditMessageControls implements reminder.Messenger by patching the prompt
// card. Plain text prompts have no controls to edit.
func (g *Gateway) EditMessageControls(ctx context.Context, ref reminder.MessageRef, disabled bool) error {
	if ref.IsZero() {
		return fmt.Errorf("edit controls: empty message ref")
	}
	record, ok := g.prompts.Get(ref.MessageID)
	if !ok {
		return fmt.Errorf("edit controls: prompt %s is not cached", ref.MessageID)
	}
	if disabled {
		if latest, ok := g.latestPrompt.Get(record.recipientID); ok && latest == ref.MessageID {
			g.latestPrompt.Remove(record.recipientID)
		}
	}
	if !record.card {
		return nil
	}
	card, err := cards.ReminderCard(record.content, reminderActions(record.actions), disabled)
	if err != nil {
		return fmt.Errorf("build reminder card: %w", err)
	}
	if g.messenger == nil {
		return fmt.Errorf("lark messenger not initialized")
	}
	if err := g.messenger.PatchMessage(ctx, ref.MessageID, card); err != nil {
		g.metrics.RecordSendError("patch")
		return err
	}
	return nil
}

// AcknowledgeInteraction implements reminder.Messenger. The content is held
// until the interaction's transport path (card toast or chat reply) collects
// it. A deferred answer has already returned, so its ack goes out as a reply.
func (g *Gateway) AcknowledgeInteraction(ctx context.Context, interactionRef, content string) error {
	if strings.TrimSpace(interactionRef) == "" {
		return fmt.Errorf("acknowledge: empty interaction ref")
	}
	g.ackMu.Lock()
	target, late := g.lateAcks.Get(interactionRef)
	if late {
		g.lateAcks.Remove(interactionRef)
	} else {
		g.acks.Add(interactionRef, content)
	}
	g.ackMu.Unlock()

	if late {
		g.sendAck(ctx, target, content)
	}
	return nil
}

// SendJoke sends a dad joke to a user, as a card when cards are enabled.
func (g *Gateway) SendJoke(ctx context.Context, userID, joke string) error {
	if g.messenger == nil {
		return fmt.Errorf("lark messenger not initialized")
	}
	msgType, payload := msgTypeText, textContent("Dad Joke Time!\n\n"+joke)
	if g.cfg.CardsEnabled {
		card, err := cards.JokeCard(joke)
		if err != nil {
			return fmt.Errorf("build joke card: %w", err)
		}
		msgType, payload = msgTypeInteractive, card
	}
	if _, err := g.messenger.SendMessage(ctx, receiveIDOpenID, userID, msgType, payload); err != nil {
		g.metrics.RecordSendError("joke")
		return err
	}
	return nil
}

func (g *Gateway) takeAck(ref string) string {
	g.ackMu.Lock()
	defer g.ackMu.Unlock()
	content, ok := g.acks.Get(ref)
	if !ok {
		return ""
	}
	g.acks.Remove(ref)
	return content
}

// ackTarget is where a deferred acknowledgement is sent.
type ackTarget struct {
	idType string
	id     string
}

// ackLater routes the ack for ref to target. If the engine acknowledged in
// the meantime the content is sent right away.
func (g *Gateway) ackLater(ctx context.Context, ref string, target ackTarget) {
	g.ackMu.Lock()
	content, ready := g.acks.Get(ref)
	if ready {
		g.acks.Remove(ref)
	} else {
		g.lateAcks.Add(ref, target)
	}
	g.ackMu.Unlock()

	if ready {
		g.sendAck(ctx, target, content)
	}
}

func (g *Gateway) sendAck(ctx context.Context, target ackTarget, content string) {
	if g.messenger == nil || target.id == "" {
		return
	}
	if _, err := g.messenger.SendMessage(ctx, target.idType, target.id, msgTypeText, textContent(content)); err != nil {
		g.metrics.RecordSendError("reply")
		g.logger.Warn("Lark deferred ack failed: %v", err)
	}
}

// incomingMessage holds the parsed fields from a Lark message event.
type incomingMessage struct {
	chatID    string
	chatType  string
	messageID string
	senderID  string
	content   string
}

// handleMessage is the P2MessageReceiveV1 event handler. Work happens on a
// separate goroutine so the long connection acknowledges the event quickly.
func (g *Gateway) handleMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	g.metrics.RecordEvent("im.message.receive_v1")
	if isFromBot(event) {
		return nil
	}
	msg := event.Event.Message
	if strings.ToLower(strings.TrimSpace(deref(msg.MessageType))) != msgTypeText {
		return nil
	}
	in := incomingMessage{
		chatID:    deref(msg.ChatId),
		chatType:  deref(msg.ChatType),
		messageID: deref(msg.MessageId),
		senderID:  extractSenderID(event),
		content:   extractTextContent(deref(msg.Content)),
	}
	if in.content == "" {
		return nil
	}
	if in.chatID == "" {
		g.logger.Warn("Lark message has empty chat_id; skipping")
		return nil
	}
	if in.messageID != "" && g.isDuplicateMessage(in.messageID) {
		g.metrics.RecordDuplicate()
		g.logger.Debug("Lark duplicate message skipped: %s", in.messageID)
		return nil
	}

	g.taskWG.Add(1)
	go func() {
		defer g.taskWG.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), messageTaskTimeout)
		defer cancel()
		g.processMessage(taskCtx, in)
	}()
	return nil
}

func (g *Gateway) processMessage(ctx context.Context, in incomingMessage) {
	if strings.HasPrefix(in.content, "/") {
		if g.commands == nil {
			return
		}
		reply, ok := g.commands.Handle(ctx, commands.Request{
			CallerID: in.senderID,
			ChatID:   in.chatID,
			Text:     in.content,
		})
		if ok && reply != "" {
			g.replyText(ctx, in.chatID, reply)
		}
		return
	}

	if g.answerFromText(ctx, in) {
		return
	}

	if g.chatter == nil {
		return
	}
	replies := g.chatter.Respond(ctx, chatter.Message{
		ChatID:   in.chatID,
		SenderID: in.senderID,
		Mention:  mention(in.senderID),
		Text:     in.content,
	})
	for _, reply := range replies {
		g.replyText(ctx, in.chatID, reply)
	}
}

// answerFromText treats a bare "yes" or "no" in a direct chat as the answer
// to the sender's latest open prompt.
func (g *Gateway) answerFromText(ctx context.Context, in incomingMessage) bool {
	if g.responder == nil || in.chatType != "p2p" {
		return false
	}
	answer, err := reminder.ParseAnswer(strings.ToLower(strings.TrimSpace(in.content)))
	if err != nil {
		return false
	}
	promptID, ok := g.latestPrompt.Get(in.senderID)
	if !ok {
		return false
	}
	ref := "text_" + in.messageID
	outcome := g.responder.Respond(ctx, reminder.Interaction{
		Ref:     ref,
		ActorID: in.senderID,
		Prompt:  reminder.MessageRef{ChatID: in.senderID, MessageID: promptID},
		Answer:  answer,
	})
	if outcome.Deferred {
		g.ackLater(ctx, ref, ackTarget{idType: receiveIDChatID, id: in.chatID})
		return true
	}
	if content := g.takeAck(ref); content != "" {
		g.replyText(ctx, in.chatID, content)
	}
	return true
}

func (g *Gateway) replyText(ctx context.Context, chatID, text string) {
	if g.messenger == nil {
		return
	}
	if _, err := g.messenger.SendMessage(ctx, receiveIDChatID, chatID, msgTypeText, textContent(text)); err != nil {
		g.metrics.RecordSendError("reply")
		g.logger.Warn("Lark reply failed: %v", err)
	}
}

func (g *Gateway) isDuplicateMessage(messageID string) bool {
	if messageID == "" {
		return false
	}
	g.dedupMu.Lock()
	defer g.dedupMu.Unlock()

	nowFn := g.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	if ts, ok := g.dedupCache.Get(messageID); ok {
		if now.Sub(ts) <= messageDedupTTL {
			return true
		}
		g.dedupCache.Remove(messageID)
	}
	g.dedupCache.Add(messageID, now)
	return false
}

func reminderActions(actions []reminder.Action) []cards.ReminderAction {
	out := make([]cards.ReminderAction, 0, len(actions))
	for _, a := range actions {
		out = append(out, cards.ReminderAction{
			Answer: string(a.ID),
			Label:  a.Label,
			Danger: a.Style == reminder.ActionStyleDanger,
		})
	}
	return out
}

func textAnswerHint(actions []reminder.Action) string {
	options := make([]string, 0, len(actions))
	for _, a := range actions {
		options = append(options, fmt.Sprintf("%q", string(a.ID)))
	}
	return "Reply " + strings.Join(options, " or ") + "."
}

// extractTextContent parses a Lark text message content JSON: {"text":"..."}.
func extractTextContent(raw string) string {
	if raw == "" {
		return ""
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(parsed.Text)
}

// textContent builds the JSON content payload for a Lark text message.
func textContent(text string) string {
	payload, _ := json.Marshal(map[string]string{"text": text})
	return string(payload)
}

// mention renders an @-mention for a Lark text message.
func mention(openID string) string {
	if openID == "" {
		return "you"
	}
	return fmt.Sprintf(`<at user_id="%s"></at>`, openID)
}

func isFromBot(event *larkim.P2MessageReceiveV1) bool {
	if event.Event.Sender == nil {
		return false
	}
	senderType := strings.ToLower(strings.TrimSpace(deref(event.Event.Sender.SenderType)))
	return senderType == "app" || senderType == "bot"
}

func extractSenderID(event *larkim.P2MessageReceiveV1) string {
	if event == nil || event.Event == nil || event.Event.Sender == nil || event.Event.Sender.SenderId == nil {
		return ""
	}
	return deref(event.Event.Sender.SenderId.OpenId)
}

// deref safely dereferences a string pointer.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ reminder.Messenger = (*Gateway)(nil)

var errNotReady = errors.New("reminders are not available right now")
