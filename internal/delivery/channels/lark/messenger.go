package lark

import (
	"context"
	"fmt"

	"beanbot/internal/reminder"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

const (
	receiveIDOpenID = "open_id"
	receiveIDChatID = "chat_id"

	msgTypeText        = "text"
	msgTypeInteractive = "interactive"
)

// UserProfile is the subset of a Lark contact the bot needs.
type UserProfile struct {
	OpenID string
	Name   string
}

// LarkMessenger is the low-level Lark API surface used by the gateway.
type LarkMessenger interface {
	// SendMessage creates a message and returns its message id.
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
	// PatchMessage replaces the content of an interactive card message.
	PatchMessage(ctx context.Context, messageID, content string) error
	// GetUser returns reminder.ErrUserNotFound for unknown open ids.
	GetUser(ctx context.Context, openID string) (UserProfile, error)
}

type sdkMessenger struct {
	client *lark.Client
}

func newSDKMessenger(client *lark.Client) *sdkMessenger {
	return &sdkMessenger{client: client}
}

func (m *sdkMessenger) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("lark send message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark send message error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("lark send message: missing message id in response")
	}
	return *resp.Data.MessageId, nil
}

func (m *sdkMessenger) PatchMessage(ctx context.Context, messageID, content string) error {
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Patch(ctx, req)
	if err != nil {
		return fmt.Errorf("lark patch message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark patch message error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

func (m *sdkMessenger) GetUser(ctx context.Context, openID string) (UserProfile, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType(receiveIDOpenID).
		Build()

	resp, err := m.client.Contact.V3.User.Get(ctx, req)
	if err != nil {
		return UserProfile{}, fmt.Errorf("lark get user: %w", err)
	}
	if !resp.Success() {
		return UserProfile{}, fmt.Errorf("%w: %s (code=%d msg=%s)", reminder.ErrUserNotFound, openID, resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil {
		return UserProfile{}, fmt.Errorf("%w: %s", reminder.ErrUserNotFound, openID)
	}
	profile := UserProfile{OpenID: openID}
	if resp.Data.User.Name != nil {
		profile.Name = *resp.Data.User.Name
	}
	return profile, nil
}
