package cards

// AnswerValueKey is the button value key carrying a reminder answer.
const AnswerValueKey = "reminder_answer"

// ReminderAction describes one answer button on a reminder card.
type ReminderAction struct {
	Answer string // "yes" or "no"
	Label  string
	Danger bool
}

// ReminderCard builds the dog reminder prompt. When disabled is set the
// buttons are greyed out and a note says the reminder was handled. Prompts
// are shared cards because the message patch API only updates those.
func ReminderCard(prompt string, actions []ReminderAction, disabled bool) (string, error) {
	color := "orange"
	if disabled {
		color = "grey"
	}
	card := NewCard(CardConfig{Title: "Dog Reminder 🐕", TitleColor: color, UpdateMulti: true}).
		AddMarkdownSection(prompt)

	if len(actions) > 0 {
		buttons := make([]*Button, 0, len(actions))
		for _, a := range actions {
			var b *Button
			if a.Danger {
				b = NewDangerButton(a.Label, "reminder_"+a.Answer)
			} else {
				b = NewPrimaryButton(a.Label, "reminder_"+a.Answer)
			}
			buttons = append(buttons, b.WithValue(AnswerValueKey, a.Answer).WithDisabled(disabled))
		}
		card.AddDivider().AddActionButtons(buttons...)
	}
	if disabled {
		card.AddNote("This reminder has been handled.")
	}
	return card.Build()
}

// JokeCard builds the /sendjoke message.
func JokeCard(joke string) (string, error) {
	return NewCard(CardConfig{Title: "Dad Joke Time!", TitleColor: "blue", EnableForward: true}).
		AddPlainTextSection(joke).
		Build()
}
