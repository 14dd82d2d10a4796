package patient

import (
	"time"

	"github.com/google/uuid"
)

// ChannelPreference is one entry of a patient's reminder opt-in map.
type ChannelPreference struct {
	Enabled bool `json:"enabled"`
}

// ReminderPreferences maps a channel ("sms", "email") to its opt-in flag.
// Stored as JSONB on the patients row.
type ReminderPreferences map[string]ChannelPreference

// OptedIn reports whether reminders may be delivered on channel. A channel
// with no entry is treated as not opted in.
func (p ReminderPreferences) OptedIn(channel string) bool {
	pref, ok := p[channel]
	return ok && pref.Enabled
}

// Patient maps to the patients table.
type Patient struct {
	ID                  uuid.UUID           `db:"id" json:"id"`
	PatientNumber       string              `db:"patient_number" json:"patient_number"`
	FirstName           string              `db:"first_name" json:"first_name"`
	LastName            string              `db:"last_name" json:"last_name"`
	Phone               *string             `db:"phone" json:"phone,omitempty"`
	Email               *string             `db:"email" json:"email,omitempty"`
	BranchID            uuid.UUID           `db:"branch_id" json:"branch_id"`
	ReminderPreferences ReminderPreferences `db:"reminder_preferences" json:"reminder_preferences"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// ContactFor returns the address used for channel, or "" when the patient
// has none on file.
func (p *Patient) ContactFor(channel string) string {
	var v *string
	switch channel {
	case "sms":
		v = p.Phone
	case "email":
		v = p.Email
	}
	if v == nil {
		return ""
	}
	return *v
}
