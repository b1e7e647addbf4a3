package model

import (
	"slices"
	"time"
)

type CallMedia string

const (
	CallAudio CallMedia = "audio"
	CallVideo CallMedia = "video"
)

type CallStatus string

const (
	CallActive CallStatus = "active"
	CallMissed CallStatus = "missed"
	CallEnded  CallStatus = "ended"
)

type EndReason string

const (
	EndCompleted    EndReason = "completed"
	EndDeclined     EndReason = "declined"
	EndNetworkIssue EndReason = "network_issue"
	EndMissed       EndReason = "missed"
	EndOther        EndReason = "other"
)

func (r EndReason) Valid() bool {
	switch r {
	case EndCompleted, EndDeclined, EndNetworkIssue, EndMissed, EndOther:
		return true
	}
	return false
}

type Call struct {
	ID              string     `json:"id"`
	CallerID        string     `json:"caller_id"`
	ReceiverID      *string    `json:"receiver_id,omitempty"`
	GroupID         *string    `json:"group_id,omitempty"`
	Media           CallMedia  `json:"call_type"`
	Status          CallStatus `json:"status"`
	Participants    []string   `json:"participants"`
	MissedBy        []string   `json:"missed_by"`
	IsGroupCall     bool       `json:"is_group_call"`
	StartedAt       time.Time  `json:"start_time"`
	EndedAt         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration"`
	EndReason       *EndReason `json:"end_reason,omitempty"`
}

func (c *Call) IsTerminal() bool { return c.Status != CallActive }

func (c *Call) HasParticipant(userID string) bool {
	return c.CallerID == userID || slices.Contains(c.Participants, userID)
}

func (c *Call) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}
