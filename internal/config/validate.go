package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"beanbot/internal/reminder"
)

// Validate reports every problem at once. Missing Lark credentials are not an
// error here; the serve command checks them through RequireCredentials.
func (c Config) Validate() error {
	var errs []error

	if _, err := c.Reminder.Settings(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Reminder.TickSchedule) == "" {
		errs = append(errs, errors.New("reminder.tick_schedule is required"))
	}
	if c.Jokes.Timeout <= 0 {
		errs = append(errs, errors.New("jokes.timeout must be positive"))
	}
	if c.Jokes.APIURL != "" {
		if u, err := url.Parse(c.Jokes.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("jokes.api_url %q is not an absolute URL", c.Jokes.APIURL))
		}
	}
	if c.Chatter.RatePerMinute < 0 || c.Chatter.Burst < 0 {
		errs = append(errs, errors.New("chatter rate and burst must not be negative"))
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	switch c.Observability.Tracing.Exporter {
	case "otlp", "zipkin":
	default:
		errs = append(errs, fmt.Errorf("observability.tracing.exporter %q must be otlp or zipkin", c.Observability.Tracing.Exporter))
	}

	return errors.Join(errs...)
}

// RequireCredentials checks what the Lark gateway needs to connect.
func (c Config) RequireCredentials() error {
	var errs []error
	if c.Lark.AppID == "" {
		errs = append(errs, errors.New("lark.app_id is required (BEANBOT_LARK_APP_ID)"))
	}
	if c.Lark.AppSecret == "" {
		errs = append(errs, errors.New("lark.app_secret is required (BEANBOT_LARK_APP_SECRET)"))
	}
	if c.Reminder.OwnerID == "" {
		errs = append(errs, errors.New("reminder.owner_id is required to run commands"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone; empty and "Local" mean the
// process timezone.
func (c ReminderConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone %q: %w", name, err)
	}
	return loc, nil
}

// Settings converts the file representation into a validated snapshot.
func (c ReminderConfig) Settings() (reminder.SettingsSnapshot, error) {
	snap := reminder.DefaultSettings()
	snap.RecipientID = c.RecipientID
	snap.EscalationID = c.EscalationID

	var errs []error
	loc, err := c.Location()
	if err != nil {
		errs = append(errs, err)
	} else {
		snap.Location = loc
	}

	for slot, raw := range map[reminder.Slot]string{
		reminder.SlotMorning: c.Morning,
		reminder.SlotNoon:    c.Noon,
		reminder.SlotEvening: c.Evening,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		at, err := reminder.ParseTimeOfDay(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder.%s: %w", slot, err))
			continue
		}
		snap.Times[slot] = at
	}

	if c.TimeoutMinutes < 1 {
		errs = append(errs, fmt.Errorf("reminder.timeout_minutes must be at least 1, got %d", c.TimeoutMinutes))
	} else {
		snap.Timeout = time.Duration(c.TimeoutMinutes) * time.Minute
	}

	policy, err := reminder.ParseDuplicatePolicy(c.DuplicatePolicy)
	if err != nil {
		errs = append(errs, fmt.Errorf("reminder.duplicate_policy: %w", err))
	} else {
		snap.DuplicatePolicy = policy
	}

	if err := errors.Join(errs...); err != nil {
		return reminder.SettingsSnapshot{}, err
	}
	return snap, nil
}
