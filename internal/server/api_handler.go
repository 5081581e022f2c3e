package server

import (
	"net/http"
	"sort"
	"time"

	"beanbot/internal/reminder"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every /api reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReminderResponse describes one pending occurrence.
type ReminderResponse struct {
	ID          string    `json:"id"`
	Slot        string    `json:"slot"`
	Date        string    `json:"date"`
	RecipientID string    `json:"recipient_id"`
	MessageID   string    `json:"message_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	Deadline    time.Time `json:"deadline"`
	EscalatesIn string    `json:"escalates_in"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// SettingsResponse is the current settings snapshot with times rendered as
// HH:MM.
type SettingsResponse struct {
	RecipientID     string            `json:"recipient_id"`
	EscalationID    string            `json:"escalation_id"`
	Timezone        string            `json:"timezone"`
	Times           map[string]string `json:"times"`
	TimeoutMinutes  int               `json:"timeout_minutes"`
	DuplicatePolicy string            `json:"duplicate_policy"`
}

type apiHandler struct {
	view ReminderView
}

func (h *apiHandler) listReminders(c *gin.Context) {
	pending := h.view.Pending()
	now := h.view.Now()
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	out := make([]ReminderResponse, 0, len(pending))
	for _, occ := range pending {
		remaining := occ.Deadline().Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, ReminderResponse{
			ID:          occ.ID.String(),
			Slot:        string(occ.ID.Slot),
			Date:        occ.ID.Date,
			RecipientID: occ.RecipientID,
			MessageID:   occ.Prompt.MessageID,
			Status:      string(occ.Status),
			CreatedAt:   occ.CreatedAt,
			Deadline:    occ.Deadline(),
			EscalatesIn: remaining.Truncate(time.Second).String(),
			TraceID:     occ.TraceID,
		})
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: out})
}

func (h *apiHandler) getSettings(c *gin.Context) {
	settings := h.view.Settings()
	if settings == nil {
		c.JSON(http.StatusServiceUnavailable, APIResponse{Error: "settings unavailable"})
		return
	}
	snap := settings.Snapshot()
	times := make(map[string]string, len(snap.Times))
	for _, slot := range reminder.Slots {
		if t, ok := snap.TimeFor(slot); ok {
			times[string(slot)] = t.String()
		}
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: SettingsResponse{
		RecipientID:     snap.RecipientID,
		EscalationID:    snap.EscalationID,
		Timezone:        snap.TimeZone(),
		Times:           times,
		TimeoutMinutes:  int(snap.Timeout / time.Minute),
		DuplicatePolicy: string(snap.DuplicatePolicy),
	}})
}
