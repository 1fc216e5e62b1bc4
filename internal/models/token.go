package models

import "strings"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCalling   Status = "CALLING"
	StatusServed    Status = "SERVED"
	StatusSkipped   Status = "SKIPPED"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusCalling, StatusServed, StatusSkipped, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// Active reports whether a queue position is meaningful for the status.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusCalling
}

// Terminal statuses are never tracked further. SKIPPED is not terminal
// because the backend may requeue the token as PENDING.
func (s Status) Terminal() bool {
	return s == StatusServed || s == StatusCancelled
}

type Token struct {
	ID          int64     `json:"id"`
	TokenNumber int       `json:"tokenNumber"`
	ServiceID   int64     `json:"serviceId"`
	UserID      int64     `json:"userId"`
	Status      Status    `json:"status"`
	CreatedAt   Timestamp `json:"createdAt"`
	ServiceType *Service  `json:"serviceType,omitempty"`
}

// Equal compares the fields the client renders.
func (t Token) Equal(other Token) bool {
	if t.ID != other.ID || t.TokenNumber != other.TokenNumber || t.ServiceID != other.ServiceID ||
		t.UserID != other.UserID || t.Status != other.Status || !t.CreatedAt.Equal(other.CreatedAt.Time) {
		return false
	}
	if (t.ServiceType == nil) != (other.ServiceType == nil) {
		return false
	}
	return t.ServiceType == nil || *t.ServiceType == *other.ServiceType
}

func (t Token) ServiceName() string {
	if t.ServiceType == nil {
		return ""
	}
	return t.ServiceType.Name
}

type QueuePosition struct {
	Position int `json:"position"`
}

// TokenPatch is a partial token update as delivered by the push channel.
// Nil fields were absent from the payload.
type TokenPatch struct {
	ID          int64      `json:"id"`
	TokenNumber *int       `json:"tokenNumber,omitempty"`
	ServiceID   *int64     `json:"serviceId,omitempty"`
	UserID      *int64     `json:"userId,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	CreatedAt   *Timestamp `json:"createdAt,omitempty"`
	ServiceType *Service   `json:"serviceType,omitempty"`
}

// Apply returns a copy of t with every field present in patch applied.
func (t Token) Apply(patch TokenPatch) Token {
	if patch.ID != 0 {
		t.ID = patch.ID
	}
	if patch.TokenNumber != nil {
		t.TokenNumber = *patch.TokenNumber
	}
	if patch.ServiceID != nil {
		t.ServiceID = *patch.ServiceID
	}
	if patch.UserID != nil {
		t.UserID = *patch.UserID
	}
	if patch.Status != nil && *patch.Status != "" {
		t.Status = *patch.Status
	}
	if patch.CreatedAt != nil && !patch.CreatedAt.IsZero() {
		t.CreatedAt = *patch.CreatedAt
	}
	if patch.ServiceType != nil {
		serviceType := *patch.ServiceType
		t.ServiceType = &serviceType
	}
	return t
}
