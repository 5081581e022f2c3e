// Package chatter answers keyword triggers in chat messages.
package chatter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beanbot/internal/jokes"
	"beanbot/internal/logging"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	limiterCacheSize = 1024
	mentionToken     = "{mention}"
)

// Trigger names, also used as metric labels.
const (
	TriggerWhatAmI = "what_am_i"
	TriggerLove    = "love"
	TriggerHate    = "hate"
	TriggerHowIs   = "how_is"
)

var (
	howIsPhrases = []string{"how are you", "how is", "hows it going", "how's it going"}
	hatePhrases  = []string{"fuck you", "i hate you"}
)

// Message is an inbound chat message from a human.
type Message struct {
	ChatID   string
	SenderID string
	// Mention is the transport's rendering of an @-mention of the sender.
	Mention string
	Text    string
}

// Config tunes the responder.
type Config struct {
	Enabled bool
	// RatePerMinute caps replies per chat; zero disables the limit.
	RatePerMinute float64
	Burst         int
	// WhatAmI maps sender ids (compared case-insensitively) to replies.
	WhatAmI        map[string]string
	DefaultWhatAmI string
}

// Recorder counts replies.
type Recorder interface {
	RecordReply(ctx context.Context, trigger string)
}

// Responder produces canned replies and jokes for keyword triggers.
type Responder struct {
	cfg      Config
	jokes    jokes.Source
	recorder Recorder
	logger   logging.Logger
	limiters *lru.Cache[string, *rate.Limiter]
	now      func() time.Time
}

// NewResponder builds a responder. jokes may be nil, which silences the
// how-is trigger.
func NewResponder(cfg Config, source jokes.Source, recorder Recorder, logger logging.Logger) (*Responder, error) {
	limiters, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chatter limiter cache init: %w", err)
	}
	whatAmI := make(map[string]string, len(cfg.WhatAmI))
	for id, line := range cfg.WhatAmI {
		whatAmI[strings.ToLower(strings.TrimSpace(id))] = line
	}
	cfg.WhatAmI = whatAmI
	return &Responder{
		cfg:      cfg,
		jokes:    source,
		recorder: recorder,
		logger:   logging.OrNop(logger),
		limiters: limiters,
		now:      time.Now,
	}, nil
}

// Respond returns every reply the message triggers, in a fixed order. A
// message that triggers nothing, or arrives while its chat is rate limited,
// gets no reply.
func (r *Responder) Respond(ctx context.Context, msg Message) []string {
	if r == nil || !r.cfg.Enabled {
		return nil
	}
	text := strings.ToLower(msg.Text)
	triggers := matchTriggers(text)
	if len(triggers) == 0 {
		return nil
	}
	if !r.allow(msg.ChatID) {
		r.logger.Debug("Chatter rate limited in chat %s", msg.ChatID)
		return nil
	}

	replies := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		reply, ok := r.reply(ctx, trigger, msg)
		if !ok {
			continue
		}
		replies = append(replies, reply)
		if r.recorder != nil {
			r.recorder.RecordReply(ctx, trigger)
		}
	}
	return replies
}

func matchTriggers(text string) []string {
	var triggers []string
	if strings.Contains(text, "what am i?") {
		triggers = append(triggers, TriggerWhatAmI)
	}
	if strings.Contains(text, "i love you") {
		triggers = append(triggers, TriggerLove)
	}
	if containsAny(text, hatePhrases) {
		triggers = append(triggers, TriggerHate)
	}
	if containsAny(text, howIsPhrases) {
		triggers = append(triggers, TriggerHowIs)
	}
	return triggers
}

func (r *Responder) reply(ctx context.Context, trigger string, msg Message) (string, bool) {
	switch trigger {
	case TriggerWhatAmI:
		line, ok := r.cfg.WhatAmI[strings.ToLower(msg.SenderID)]
		if !ok {
			line = r.cfg.DefaultWhatAmI
		}
		if line == "" {
			return "", false
		}
		return strings.ReplaceAll(line, mentionToken, msg.Mention), true
	case TriggerLove:
		return fmt.Sprintf("I love you too, %s! <3", msg.Mention), true
	case TriggerHate:
		return fmt.Sprintf("Fuck you too, %s!", msg.Mention), true
	case TriggerHowIs:
		if r.jokes == nil {
			return "", false
		}
		joke, err := r.jokes.Joke(ctx)
		if err != nil {
			r.logger.Warn("No joke for how-is trigger: %v", err)
			return "", false
		}
		return "We don't ask those questions here. Here's a dad joke instead:\n\n" + joke, true
	default:
		return "", false
	}
}

func (r *Responder) allow(chatID string) bool {
	if r.cfg.RatePerMinute <= 0 {
		return true
	}
	limiter, ok := r.limiters.Get(chatID)
	if !ok {
		burst := r.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(r.cfg.RatePerMinute/60), burst)
		r.limiters.Add(chatID, limiter)
	}
	return limiter.AllowN(r.now(), 1)
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
