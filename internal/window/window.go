// Package window implements WhatsApp's 24-hour customer service window.
package window

import "time"

const DefaultWindow = 24 * time.Hour

type Decision int

const (
	Freeform Decision = iota
	TemplateRequired
)

func (d Decision) String() string {
	switch d {
	case Freeform:
		return "freeform"
	case TemplateRequired:
		return "template_required"
	}
	return "unknown"
}

// Policy decides whether a free-form reply is still allowed. The zero value
// uses a 24h window and the wall clock.
type Policy struct {
	Window time.Duration
	Now    func() time.Time
}

func NewPolicy() *Policy {
	return &Policy{Window: DefaultWindow, Now: time.Now}
}

// Decide returns TemplateRequired only when strictly more than the window
// has elapsed since lastActivityAt. A nil lastActivityAt is first contact.
func (p *Policy) Decide(lastActivityAt *time.Time) Decision {
	if lastActivityAt == nil {
		return Freeform
	}
	hours := p.now().Sub(*lastActivityAt).Hours()
	if hours > p.window().Hours() {
		return TemplateRequired
	}
	return Freeform
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}
