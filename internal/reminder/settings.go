package reminder

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DuplicatePolicy decides what Dispatch does when the slot already has a
// pending occurrence today.
type DuplicatePolicy string

const (
	// DuplicateSkip refuses the second dispatch with ErrAlreadyPending.
	DuplicateSkip DuplicatePolicy = "skip"
	// DuplicateAllow lets independent occurrences coexist (Seq 1, 2, ...).
	DuplicateAllow DuplicatePolicy = "allow"
)

// ParseDuplicatePolicy accepts "skip" or "allow"; empty means skip.
func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case DuplicateSkip, "":
		return DuplicateSkip, nil
	case DuplicateAllow:
		return DuplicateAllow, nil
	default:
		return "", fmt.Errorf("%w: duplicate policy must be 'skip' or 'allow', got %q", ErrInvalidInput, raw)
	}
}

// MinTimeout is the shortest accepted escalation timeout.
const MinTimeout = time.Minute

// SettingsSnapshot is an immutable copy of the reminder configuration.
type SettingsSnapshot struct {
	RecipientID     string             `json:"recipient_id" yaml:"recipient_id"`
	EscalationID    string             `json:"escalation_id" yaml:"escalation_id"`
	Times           map[Slot]TimeOfDay `json:"times" yaml:"times"`
	Timeout         time.Duration      `json:"timeout" yaml:"timeout"`
	Location        *time.Location     `json:"-" yaml:"-"`
	DuplicatePolicy DuplicatePolicy    `json:"duplicate_policy" yaml:"duplicate_policy"`
}

// DefaultSettings returns 08:00 / 13:00 / 20:00, a one hour timeout, local
// time and the skip policy. Recipient and escalation contact are unset.
func DefaultSettings() SettingsSnapshot {
	return SettingsSnapshot{
		Times: map[Slot]TimeOfDay{
			SlotMorning: {Hour: 8},
			SlotNoon:    {Hour: 13},
			SlotEvening: {Hour: 20},
		},
		Timeout:         60 * time.Minute,
		Location:        time.Local,
		DuplicatePolicy: DuplicateSkip,
	}
}

// TimeFor returns the configured time of slot.
func (s SettingsSnapshot) TimeFor(slot Slot) (TimeOfDay, bool) {
	t, ok := s.Times[slot]
	return t, ok
}

// TimeZone returns the location name, "Local" when unset.
func (s SettingsSnapshot) TimeZone() string {
	if s.Location == nil {
		return time.Local.String()
	}
	return s.Location.String()
}

func (s SettingsSnapshot) clone() SettingsSnapshot {
	out := s
	out.Times = make(map[Slot]TimeOfDay, len(s.Times))
	for slot, t := range s.Times {
		out.Times[slot] = t
	}
	return out
}

func (s SettingsSnapshot) validate() error {
	for _, slot := range Slots {
		t, ok := s.Times[slot]
		if !ok {
			return fmt.Errorf("%w: missing time for %s", ErrInvalidInput, slot)
		}
		if _, err := NewTimeOfDay(t.Hour, t.Minute); err != nil {
			return fmt.Errorf("%s: %w", slot, err)
		}
	}
	for slot := range s.Times {
		if !slot.Valid() {
			return fmt.Errorf("%w: unknown slot %q", ErrInvalidInput, slot)
		}
	}
	if s.Timeout < MinTimeout {
		return fmt.Errorf("%w: timeout must be at least 1 minute", ErrInvalidInput)
	}
	if _, err := ParseDuplicatePolicy(string(s.DuplicatePolicy)); err != nil {
		return err
	}
	return nil
}

// Settings is the mutable configuration store. Readers take a Snapshot, so
// a change only affects dispatches and timeouts that start after it.
type Settings struct {
	mu   sync.RWMutex
	snap SettingsSnapshot
}

// NewSettings validates initial and returns a store holding a copy of it.
func NewSettings(initial SettingsSnapshot) (*Settings, error) {
	snap := initial.clone()
	if snap.Location == nil {
		snap.Location = time.Local
	}
	if snap.DuplicatePolicy == "" {
		snap.DuplicatePolicy = DuplicateSkip
	}
	snap.RecipientID = strings.TrimSpace(snap.RecipientID)
	snap.EscalationID = strings.TrimSpace(snap.EscalationID)
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &Settings{snap: snap}, nil
}

// Snapshot returns a copy safe to read without locking.
func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

func (s *Settings) update(mutate func(*SettingsSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.clone()
	mutate(&next)
	s.snap = next
}

// SetRecipient changes who receives reminders.
func (s *Settings) SetRecipient(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: recipient id is required", ErrInvalidInput)
	}
	s.update(func(snap *SettingsSnapshot) { snap.RecipientID = userID })
	return nil
}

// SetEscalation changes who is alerted on "no" answers and timeouts.
func (s *Settings) SetEscalation(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: escalation contact id is required", ErrInvalidInput)
	}
	s.update(func(snap *SettingsSnapshot) { snap.EscalationID = userID })
	return nil
}

// SetSlotTime moves one slot.
func (s *Settings) SetSlotTime(slot Slot, t TimeOfDay) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: slot must be 'morning', 'noon', or 'evening'", ErrInvalidInput)
	}
	if _, err := NewTimeOfDay(t.Hour, t.Minute); err != nil {
		return err
	}
	s.update(func(snap *SettingsSnapshot) { snap.Times[slot] = t })
	return nil
}

// SetTimeout changes the escalation window for future occurrences.
func (s *Settings) SetTimeout(d time.Duration) error {
	if d < MinTimeout {
		return fmt.Errorf("%w: timeout must be at least 1 minute", ErrInvalidInput)
	}
	s.update(func(snap *SettingsSnapshot) { snap.Timeout = d })
	return nil
}

// SetLocation changes the timezone slots are evaluated in.
func (s *Settings) SetLocation(loc *time.Location) error {
	if loc == nil {
		return fmt.Errorf("%w: timezone is required", ErrInvalidInput)
	}
	s.update(func(snap *SettingsSnapshot) { snap.Location = loc })
	return nil
}

// SetDuplicatePolicy switches between skip and allow.
func (s *Settings) SetDuplicatePolicy(policy DuplicatePolicy) error {
	parsed, err := ParseDuplicatePolicy(string(policy))
	if err != nil {
		return err
	}
	s.update(func(snap *SettingsSnapshot) { snap.DuplicatePolicy = parsed })
	return nil
}
