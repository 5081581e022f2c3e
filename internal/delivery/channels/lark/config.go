package lark

// Config captures Lark bot gateway configuration.
type Config struct {
	AppID      string
	AppSecret  string
	BaseDomain string
	// VerificationToken and EncryptKey validate card callbacks.
	VerificationToken string
	EncryptKey        string
	// CardsEnabled sends reminder prompts as interactive cards with Yes/No
	// buttons. When false prompts are plain text answered by replying "yes"
	// or "no" in the direct chat.
	CardsEnabled bool
	// WebsocketEnabled subscribes to message events over the long connection.
	WebsocketEnabled bool
}
