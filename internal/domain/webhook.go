package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookEnvelope is the WhatsApp Cloud API delivery body.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value *ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
	Statuses         []StatusUpdate    `json:"statuses"`

	// message_template_quality_update
	MessageTemplateID       int64  `json:"message_template_id"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	PreviousQualityScore    string `json:"previous_quality_score"`
	NewQualityScore         string `json:"new_quality_score"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type TextContent struct {
	Body string `json:"body"`
}

// InboundMessage is one unit of the messages array.
type InboundMessage struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *TextContent `json:"text,omitempty"`

	// ProfileName comes from the sibling contacts array.
	ProfileName string `json:"-"`
}

// Body returns text.body, or "" for non-text units.
func (m InboundMessage) Body() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// SentAt parses the unix-seconds timestamp. ok is false when it is absent
// or not a number.
func (m InboundMessage) SentAt() (t time.Time, ok bool) {
	secs, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// FirstChange returns entry[0].changes[0] when it carries a value.
func (e WebhookEnvelope) FirstChange() (WebhookChange, bool) {
	if len(e.Entry) == 0 || len(e.Entry[0].Changes) == 0 {
		return WebhookChange{}, false
	}
	change := e.Entry[0].Changes[0]
	if change.Value == nil {
		return WebhookChange{}, false
	}
	return change, true
}

type EventKind string

const (
	EventMessages        EventKind = "messages"
	EventStatuses        EventKind = "statuses"
	EventTemplateQuality EventKind = "template_quality_update"
	EventUnrecognized    EventKind = "unrecognized"
)

// Event is one of MessagesEvent, StatusesEvent, TemplateQualityEvent or
// UnrecognizedEvent.
type Event interface {
	Kind() EventKind
}

// MessageUnit is a decoded message, or the reason it could not be decoded.
type MessageUnit struct {
	Message   InboundMessage
	DecodeErr error
}

type MessagesEvent struct {
	PhoneNumberID string
	Units         []MessageUnit
}

func (MessagesEvent) Kind() EventKind { return EventMessages }

type StatusesEvent struct {
	PhoneNumberID string
	Statuses      []StatusUpdate
}

func (StatusesEvent) Kind() EventKind { return EventStatuses }

type TemplateQualityEvent struct {
	TemplateID   int64
	TemplateName string
	Language     string
	Previous     string
	Current      string
}

func (TemplateQualityEvent) Kind() EventKind { return EventTemplateQuality }

type UnrecognizedEvent struct {
	Field string
}

func (UnrecognizedEvent) Kind() EventKind { return EventUnrecognized }

// Classify turns a change into a typed event. A message unit that fails to
// decode is kept with its error so siblings are still ingested.
func Classify(change WebhookChange) Event {
	value := change.Value
	if value == nil {
		return UnrecognizedEvent{Field: change.Field}
	}

	switch {
	case change.Field == "message_template_quality_update":
		return TemplateQualityEvent{
			TemplateID:   value.MessageTemplateID,
			TemplateName: value.MessageTemplateName,
			Language:     value.MessageTemplateLanguage,
			Previous:     value.PreviousQualityScore,
			Current:      value.NewQualityScore,
		}
	case change.Field != "" && change.Field != "messages":
		return UnrecognizedEvent{Field: change.Field}
	case len(value.Messages) > 0:
		return MessagesEvent{
			PhoneNumberID: value.Metadata.PhoneNumberID,
			Units:         decodeUnits(value),
		}
	case len(value.Statuses) > 0:
		return StatusesEvent{
			PhoneNumberID: value.Metadata.PhoneNumberID,
			Statuses:      value.Statuses,
		}
	default:
		return MessagesEvent{PhoneNumberID: value.Metadata.PhoneNumberID}
	}
}

func decodeUnits(value *ChangeValue) []MessageUnit {
	names := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		names[c.WaID] = c.Profile.Name
	}

	units := make([]MessageUnit, 0, len(value.Messages))
	for i, raw := range value.Messages {
		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			units = append(units, MessageUnit{DecodeErr: fmt.Errorf("decode message %d: %w", i, err)})
			continue
		}
		msg.ProfileName = names[msg.From]
		units = append(units, MessageUnit{Message: msg})
	}
	return units
}
