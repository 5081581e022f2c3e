package cards

import (
	"encoding/json"
	"fmt"
)

// CardConfig configures the card header and behaviour.
type CardConfig struct {
	Title         string
	TitleColor    string // Lark header template: blue, green, orange, red, ...
	EnableForward bool
	// UpdateMulti marks the card as shared so it can be patched later.
	UpdateMulti bool
}

// Card accumulates elements for one interactive message card.
type Card struct {
	config   CardConfig
	elements []map[string]any
}

// NewCard starts a card. An empty TitleColor defaults to blue.
func NewCard(config CardConfig) *Card {
	if config.TitleColor == "" {
		config.TitleColor = "blue"
	}
	return &Card{config: config}
}

// AddMarkdownSection appends a lark_md text block.
func (c *Card) AddMarkdownSection(content string) *Card {
	c.elements = append(c.elements, map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	})
	return c
}

// AddPlainTextSection appends a plain_text block.
func (c *Card) AddPlainTextSection(content string) *Card {
	c.elements = append(c.elements, map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "plain_text", "content": content},
	})
	return c
}

// AddDivider appends a horizontal rule.
func (c *Card) AddDivider() *Card {
	c.elements = append(c.elements, map[string]any{"tag": "hr"})
	return c
}

// AddActionButtons appends one action row.
func (c *Card) AddActionButtons(buttons ...*Button) *Card {
	actions := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		if b == nil {
			continue
		}
		actions = append(actions, b.element())
	}
	c.elements = append(c.elements, map[string]any{
		"tag":     "action",
		"actions": actions,
	})
	return c
}

// AddNote appends a small footer line.
func (c *Card) AddNote(content string) *Card {
	c.elements = append(c.elements, map[string]any{
		"tag": "note",
		"elements": []map[string]any{
			{"tag": "plain_text", "content": content},
		},
	})
	return c
}

// Build renders the card JSON.
func (c *Card) Build() (string, error) {
	elements := c.elements
	if elements == nil {
		elements = []map[string]any{}
	}
	config := map[string]any{
		"wide_screen_mode": true,
		"enable_forward":   c.config.EnableForward,
	}
	if c.config.UpdateMulti {
		config["update_multi"] = true
	}
	payload := map[string]any{
		"config": config,
		"header": map[string]any{
			"title":    map[string]any{"tag": "plain_text", "content": c.config.Title},
			"template": c.config.TitleColor,
		},
		"elements": elements,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}
	return string(data), nil
}

// Button is a card button.
type Button struct {
	label     string
	actionTag string
	style     string
	disabled  bool
	value     map[string]string
}

// NewButton creates a default-styled button.
func NewButton(label, actionTag string) *Button {
	return &Button{label: label, actionTag: actionTag, style: "default"}
}

// NewPrimaryButton creates a primary-styled button.
func NewPrimaryButton(label, actionTag string) *Button {
	return &Button{label: label, actionTag: actionTag, style: "primary"}
}

// NewDangerButton creates a danger-styled button.
func NewDangerButton(label, actionTag string) *Button {
	return &Button{label: label, actionTag: actionTag, style: "danger"}
}

// WithValue attaches a key to the callback payload.
func (b *Button) WithValue(key, value string) *Button {
	if b.value == nil {
		b.value = make(map[string]string)
	}
	b.value[key] = value
	return b
}

// WithDisabled greys the button out.
func (b *Button) WithDisabled(disabled bool) *Button {
	b.disabled = disabled
	return b
}

func (b *Button) element() map[string]any {
	el := map[string]any{
		"tag":        "button",
		"text":       map[string]any{"tag": "plain_text", "content": b.label},
		"type":       b.style,
		"action_tag": b.actionTag,
	}
	if len(b.value) > 0 {
		el["value"] = b.value
	}
	if b.disabled {
		el["disabled"] = true
	}
	return el
}
