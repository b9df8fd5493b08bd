package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func decodeEnvelope(t *testing.T, body string) WebhookEnvelope {
	t.Helper()
	var env WebhookEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

func TestFirstChangeMissing(t *testing.T) {
	cases := map[string]string{
		"no entry":   `{"object":"whatsapp_business_account"}`,
		"no changes": `{"entry":[{"id":"1"}]}`,
		"no value":   `{"entry":[{"id":"1","changes":[{"field":"messages"}]}]}`,
	}
	for name, body := range cases {
		if _, ok := decodeEnvelope(t, body).FirstChange(); ok {
			t.Errorf("%s: expected ok=false", name)
		}
	}
}

func TestClassifyMessages(t *testing.T) {
	env := decodeEnvelope(t, `{"entry":[{"changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"pn-1"},
		"contacts":[{"wa_id":"15551230001","profile":{"name":"Ana"}}],
		"messages":[
			{"from":"15551230001","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"hi"}},
			{"from":"15551230001","id":"wamid.2","timestamp":"1700000001","type":"image"},
			{"from":15551230001}
		]}}]}]}`)

	change, ok := env.FirstChange()
	if !ok {
		t.Fatal("expected a first change")
	}
	ev, ok := Classify(change).(MessagesEvent)
	if !ok {
		t.Fatalf("expected MessagesEvent, got %T", Classify(change))
	}
	if ev.PhoneNumberID != "pn-1" {
		t.Fatalf("got phone number id %q, want pn-1", ev.PhoneNumberID)
	}
	if len(ev.Units) != 3 {
		t.Fatalf("got %d units, want 3", len(ev.Units))
	}

	first := ev.Units[0].Message
	if first.Body() != "hi" || first.ProfileName != "Ana" {
		t.Errorf("unexpected first unit: %+v", first)
	}
	if at, ok := first.SentAt(); !ok || !at.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected sent at %v (ok=%v)", at, ok)
	}
	if ev.Units[1].Message.Body() != "" {
		t.Errorf("non-text unit should have empty body")
	}
	if ev.Units[2].DecodeErr == nil {
		t.Errorf("expected decode error for third unit")
	}
}

func TestClassifyStatusesOnly(t *testing.T) {
	env := decodeEnvelope(t, `{"entry":[{"changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"pn-1"},
		"statuses":[{"id":"wamid.9","status":"delivered","recipient_id":"15551230001"}]}}]}]}`)
	change, _ := env.FirstChange()
	ev, ok := Classify(change).(StatusesEvent)
	if !ok {
		t.Fatalf("expected StatusesEvent, got %T", Classify(change))
	}
	if len(ev.Statuses) != 1 || ev.Statuses[0].Status != "delivered" {
		t.Fatalf("unexpected statuses: %+v", ev.Statuses)
	}
}

func TestClassifyEmptyMessages(t *testing.T) {
	env := decodeEnvelope(t, `{"entry":[{"changes":[{"field":"messages","value":{"metadata":{"phone_number_id":"pn-1"},"messages":[]}}]}]}`)
	change, _ := env.FirstChange()
	ev, ok := Classify(change).(MessagesEvent)
	if !ok {
		t.Fatalf("expected MessagesEvent, got %T", Classify(change))
	}
	if len(ev.Units) != 0 {
		t.Fatalf("got %d units, want 0", len(ev.Units))
	}
}

func TestClassifyTemplateQuality(t *testing.T) {
	env := decodeEnvelope(t, `{"entry":[{"changes":[{"field":"message_template_quality_update","value":{
		"previous_quality_score":"GREEN","new_quality_score":"YELLOW",
		"message_template_id":42,"message_template_name":"conversation_expired","message_template_language":"en_US"}}]}]}`)
	change, _ := env.FirstChange()
	ev, ok := Classify(change).(TemplateQualityEvent)
	if !ok {
		t.Fatalf("expected TemplateQualityEvent, got %T", Classify(change))
	}
	if ev.TemplateID != 42 || ev.Current != "YELLOW" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestClassifyUnrecognized(t *testing.T) {
	env := decodeEnvelope(t, `{"entry":[{"changes":[{"field":"account_alerts","value":{}}]}]}`)
	change, _ := env.FirstChange()
	if kind := Classify(change).Kind(); kind != EventUnrecognized {
		t.Fatalf("got %s, want %s", kind, EventUnrecognized)
	}
}

func TestSentAtInvalid(t *testing.T) {
	for _, ts := range []string{"", "abc", "0", "-5"} {
		if _, ok := (InboundMessage{Timestamp: ts}).SentAt(); ok {
			t.Errorf("timestamp %q: expected ok=false", ts)
		}
	}
}
