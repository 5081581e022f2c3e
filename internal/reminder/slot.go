package reminder

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot names one of the three daily reminder times.
type Slot string

const (
	SlotMorning Slot = "morning"
	SlotNoon    Slot = "noon"
	SlotEvening Slot = "evening"
)

// Slots lists every slot in firing order.
var Slots = []Slot{SlotMorning, SlotNoon, SlotEvening}

// ParseSlot validates a slot name, ignoring case and surrounding space.
func ParseSlot(raw string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(raw)))
	if !slot.Valid() {
		return "", fmt.Errorf("%w: slot must be 'morning', 'noon', or 'evening'", ErrInvalidInput)
	}
	return slot, nil
}

// Valid reports whether s is one of the known slots.
func (s Slot) Valid() bool {
	switch s {
	case SlotMorning, SlotNoon, SlotEvening:
		return true
	default:
		return false
	}
}

// Title returns the slot name with its first letter upper-cased.
func (s Slot) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// TimeOfDay is a wall-clock minute in the configured timezone.
type TimeOfDay struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// NewTimeOfDay validates hour in [0,23] and minute in [0,59].
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: hour must be 0-23, minute must be 0-59", ErrInvalidInput)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseTimeOfDay parses "HH:MM" (or a bare "HH").
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	hourPart, minutePart, hasMinute := strings.Cut(raw, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time %q", ErrInvalidInput, raw)
	}
	minute := 0
	if hasMinute {
		minute, err = strconv.Atoi(minutePart)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w: invalid time %q", ErrInvalidInput, raw)
		}
	}
	return NewTimeOfDay(hour, minute)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
