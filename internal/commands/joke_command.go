package commands

import (
	"context"
)

const (
	jokeSentReply   = "Dad joke sent successfully! 😄"
	jokeFailedReply = "Failed to send dad joke. Check logs for details."
)

// sendJoke sends a dad joke to the given user, or to the caller.
func (r *Router) sendJoke(ctx context.Context, req Request, args []string) (string, string) {
	if r.jokes == nil || r.sender == nil {
		return jokeFailedReply, resultFailed
	}
	target := req.CallerID
	if len(args) > 0 {
		target = args[0]
	}
	joke, err := r.jokes.Joke(ctx)
	if err != nil {
		r.logger.Warn("Failed to get dad joke: %v", err)
		return jokeFailedReply, resultFailed
	}
	if err := r.sender.SendJoke(ctx, target, joke); err != nil {
		r.logger.Warn("Failed to send dad joke to %s: %v", target, err)
		return jokeFailedReply, resultFailed
	}
	return jokeSentReply, resultOK
}
