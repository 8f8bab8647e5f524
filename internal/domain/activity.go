// Package domain defines the core domain models for the relay service.
package domain

import (
	"encoding/json"
	"time"
)

// ActivityKind classifies a message-pipeline event.
type ActivityKind string

const (
	KindMessage       ActivityKind = "message"
	KindMessageUpdate ActivityKind = "messageUpdate"
	KindMessageDelete ActivityKind = "messageDelete"
	KindEvent         ActivityKind = "event"
)

// EventJoin is the channel event a front-end emits right after attaching to a
// session. It carries the new conversation reference.
const EventJoin = "webchat/join"

// Account roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Account identifies a participant on either end of an activity.
type Account struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Conversation identifies the session an activity belongs to.
type Conversation struct {
	ID string `json:"id,omitempty"`
}

// Activity is one observed message-pipeline event. Activities are immutable
// once logged; updates and deletes are recorded as new activities referencing
// the original via ReplyToID/ID, never as in-place mutation of the log.
type Activity struct {
	ID           string          `json:"id,omitempty"`
	Kind         ActivityKind    `json:"type"`
	Name         string          `json:"name,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	From         Account         `json:"from"`
	Recipient    Account         `json:"recipient"`
	Conversation Conversation    `json:"conversation"`
	Text         string          `json:"text,omitempty"`
	ReplyToID    string          `json:"replyToId,omitempty"`
	ChannelData  json.RawMessage `json:"channelData,omitempty"`
}

// Clone returns a structural copy taken at the moment of observation, so the
// logged record cannot be mutated by later pipeline stages.
func (a *Activity) Clone() *Activity {
	data, err := json.Marshal(a)
	if err != nil {
		copied := *a
		return &copied
	}
	var clone Activity
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *a
		return &copied
	}
	return &clone
}

// ConversationRef identifies an activity within a conversation after its body
// is gone, e.g. for delete records.
type ConversationRef struct {
	ActivityID   string       `json:"activityId"`
	Conversation Conversation `json:"conversation"`
}

// Ref returns the conversation reference for an activity.
func (a *Activity) Ref() *ConversationRef {
	return &ConversationRef{
		ActivityID:   a.ID,
		Conversation: a.Conversation,
	}
}

// Credential is the opaque payload a front-end uses to open or resume a
// session with the relay channel. An empty ConversationID signals a fresh
// session with no prior history.
type Credential struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	ExpiresIn      int    `json:"expires_in"`
	StreamURL      string `json:"streamUrl,omitempty"`
}
