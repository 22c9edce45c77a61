/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with the frontend. Timestamps are RFC3339 strings,
  hour quantities are decimal strings (never floats), durations are whole
  seconds plus a preformatted HH:MM:SS for direct display.

SEE ALSO:
  - handlers.go: Serialization call sites
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// SegmentDTO is one clock-in/out pair. TimeOut is null while open.
type SegmentDTO struct {
	TimeIn  string  `json:"timeIn"`
	TimeOut *string `json:"timeOut"`
}

// LogDTO is one attendance record for a user and calendar date.
type LogDTO struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"userId"`
	LogDate              string       `json:"logDate"`
	Segments             []SegmentDTO `json:"segments"`
	TotalRenderedSeconds int64        `json:"totalRenderedSeconds"`
	IsLate               bool         `json:"isLate"`
	GraceNotified        bool         `json:"graceNotified"`
}

// StatusDTO backs the live elapsed-time display.
type StatusDTO struct {
	ClockedIn       bool    `json:"clockedIn"`
	RenderedSeconds int64   `json:"renderedSeconds"`
	Elapsed         string  `json:"elapsed"`
	Log             *LogDTO `json:"log,omitempty"`
}

// SummaryDTO reports aggregate rendered time against the required target.
type SummaryDTO struct {
	UserID           string `json:"userId"`
	RenderedSeconds  int64  `json:"renderedSeconds"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	RenderedHours    string `json:"renderedHours"`
	RemainingHours   string `json:"remainingHours"`
	RequiredHours    string `json:"requiredHours"`
	Elapsed          string `json:"elapsed"`
}

// ScheduleDTO is a user's schedule configuration.
type ScheduleDTO struct {
	UserID                  string `json:"userId"`
	ScheduledTimeIn         string `json:"scheduledTimeIn"`
	ScheduledTimeOut        string `json:"scheduledTimeOut"`
	RequiredHours           string `json:"requiredHours"`
	ConfiguredAt            string `json:"configuredAt,omitempty"`
	ImportedRenderedMinutes int64  `json:"importedRenderedMinutes"`
}

// ScheduleRequest is the PUT schedule body.
type ScheduleRequest struct {
	ScheduledTimeIn         string `json:"scheduledTimeIn"`
	ScheduledTimeOut        string `json:"scheduledTimeOut"`
	RequiredHours           string `json:"requiredHours"`
	ImportedRenderedMinutes int64  `json:"importedRenderedMinutes"`
}

// ClockRequest optionally pins the operation timestamp; empty means now.
type ClockRequest struct {
	At string `json:"at,omitempty"` // RFC3339
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toLogDTO(l *attendance.Log) *LogDTO {
	dto := &LogDTO{
		ID:                   l.ID,
		UserID:               l.UserID,
		LogDate:              l.LogDate,
		Segments:             make([]SegmentDTO, len(l.Segments)),
		TotalRenderedSeconds: l.TotalRenderedSeconds,
		IsLate:               l.IsLate,
		GraceNotified:        l.GraceNotified,
	}
	for i, s := range l.Segments {
		dto.Segments[i] = SegmentDTO{TimeIn: s.TimeIn.Format(time.RFC3339)}
		if s.TimeOut != nil {
			out := s.TimeOut.Format(time.RFC3339)
			dto.Segments[i].TimeOut = &out
		}
	}
	return dto
}

func toLogDTOs(logs []*attendance.Log) []*LogDTO {
	dtos := make([]*LogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toLogDTO(l)
	}
	return dtos
}

func toSummaryDTO(s *attendance.Summary) *SummaryDTO {
	return &SummaryDTO{
		UserID:           s.UserID,
		RenderedSeconds:  s.RenderedSeconds,
		RemainingSeconds: s.RemainingSeconds,
		RenderedHours:    s.RenderedHours.Round(2).String(),
		RemainingHours:   s.RemainingHours.Round(2).String(),
		RequiredHours:    s.RequiredHours.String(),
		Elapsed:          attendance.FormatElapsed(s.RenderedSeconds),
	}
}

func toScheduleDTO(c *attendance.Schedule) *ScheduleDTO {
	dto := &ScheduleDTO{
		UserID:                  c.UserID,
		ScheduledTimeIn:         c.ScheduledTimeIn,
		ScheduledTimeOut:        c.ScheduledTimeOut,
		RequiredHours:           c.RequiredHours.String(),
		ImportedRenderedMinutes: c.ImportedRenderedMinutes,
	}
	if c.ConfiguredAt != nil {
		dto.ConfiguredAt = c.ConfiguredAt.Format(time.RFC3339)
	}
	return dto
}
