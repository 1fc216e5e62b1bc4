package realtime

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"queuehive/internal/models"
)

type EventKind string

const (
	EventTokenUpdated EventKind = "TOKEN_UPDATED"
	EventQueueChanged EventKind = "QUEUE_CHANGED"
)

// Event is a decoded push message. TOKEN_UPDATED carries a patch for one
// token. QUEUE_CHANGED carries no token state: it only says that the queue of
// ServiceID moved, and ServiceID is zero when the publisher did not name one.
type Event struct {
	Kind        EventKind
	Patch       models.TokenPatch
	ServiceID   int64
	TokenNumber int
}

type envelope struct {
	Kind        string          `json:"kind"`
	Token       json.RawMessage `json:"token"`
	ServiceID   int64           `json:"serviceId"`
	TokenNumber int             `json:"tokenNumber"`
}

type queueChange struct {
	ServiceID   int64 `json:"serviceId"`
	TokenNumber int   `json:"tokenNumber"`
}

// ParseEvent decodes a push payload. Accepted shapes are the tagged envelope,
// a bare (possibly partial) token carrying its id, and the backend's
// {tokenNumber, serviceId} queue notification.
func ParseEvent(raw []byte) (Event, error) {
	trimmed := bytes.TrimSpace(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return Event{}, parseError("not a json object", raw)
	}

	if _, tagged := fields["kind"]; tagged {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Event{}, parseError("bad envelope: "+err.Error(), raw)
		}
		switch EventKind(env.Kind) {
		case EventTokenUpdated:
			if len(env.Token) == 0 || string(env.Token) == "null" {
				return Event{}, parseError("token update without token", raw)
			}
			return tokenEvent(env.Token, raw)
		case EventQueueChanged:
			if env.ServiceID < 0 {
				return Event{}, parseError("negative service id", raw)
			}
			return Event{Kind: EventQueueChanged, ServiceID: env.ServiceID, TokenNumber: env.TokenNumber}, nil
		default:
			return Event{}, parseError("unknown kind "+env.Kind, raw)
		}
	}

	if _, ok := fields["id"]; ok {
		return tokenEvent(trimmed, raw)
	}

	if _, ok := fields["serviceId"]; ok {
		var change queueChange
		if err := json.Unmarshal(trimmed, &change); err != nil {
			return Event{}, parseError("bad queue change: "+err.Error(), raw)
		}
		if change.ServiceID <= 0 {
			return Event{}, parseError("queue change without service", raw)
		}
		return Event{Kind: EventQueueChanged, ServiceID: change.ServiceID, TokenNumber: change.TokenNumber}, nil
	}

	return Event{}, parseError("unrecognized shape", raw)
}

func tokenEvent(data, raw []byte) (Event, error) {
	var patch models.TokenPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return Event{}, parseError("bad token: "+err.Error(), raw)
	}
	if patch.ID <= 0 {
		return Event{}, parseError("token without id", raw)
	}
	if patch.Status != nil {
		status, ok := models.ParseStatus(string(*patch.Status))
		if !ok {
			return Event{}, parseError("unknown status "+string(*patch.Status), raw)
		}
		patch.Status = &status
	}
	event := Event{Kind: EventTokenUpdated, Patch: patch}
	if patch.ServiceID != nil {
		event.ServiceID = *patch.ServiceID
	}
	if patch.TokenNumber != nil {
		event.TokenNumber = *patch.TokenNumber
	}
	return event, nil
}

const maxLoggedPayload = 256

func parseError(reason string, raw []byte) *ParseError {
	if len(raw) > maxLoggedPayload {
		cut := maxLoggedPayload
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	return &ParseError{Reason: reason, Payload: string(raw)}
}
