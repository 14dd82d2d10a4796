package notification

import (
	"fmt"
	"strings"
	"sync"
)

const (
	TemplateAppointmentReminder    = "appointment-reminder"
	TemplateAppointmentReminderSMS = "appointment-reminder-sms"
)

type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine renders {{key}} placeholders from a data map. Unknown keys
// are left in place.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Subject: "Appointment reminder: {{type}} on {{date}}",
			Body: "Dear {{first_name}},\n\n" +
				"This is a reminder of your {{type}} appointment on {{date}} at {{time}}.\n\n" +
				"If you cannot attend, please contact the clinic to reschedule.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateAppointmentReminderSMS,
			Name:    "Appointment Reminder (SMS)",
			Body:    "Hi {{first_name}}, this is a reminder of your {{type}} appointment on {{date}} at {{time}}.",
			Channel: ChannelSMS,
		},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
