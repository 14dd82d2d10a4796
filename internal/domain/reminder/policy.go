package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/internal/platform/notification"
)

// PolicyEntry schedules one reminder Offset before the appointment.
type PolicyEntry struct {
	Channel notification.Channel
	Offset  time.Duration
	Label   string
}

// Policy is the ordered list of reminders created for every appointment.
type Policy []PolicyEntry

// DefaultPolicy is an email a day ahead and an SMS two hours ahead.
func DefaultPolicy() Policy {
	return Policy{
		{Channel: notification.ChannelEmail, Offset: 24 * time.Hour, Label: "24h"},
		{Channel: notification.ChannelSMS, Offset: 2 * time.Hour, Label: "2h"},
	}
}

// ParsePolicy reads a comma-separated list of channel:offset pairs, for
// example "email:24h,sms:2h". Offsets accept Go durations plus a "d" suffix
// for whole days. An empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPolicy(), nil
	}
	var p Policy
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ch, label, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("reminder policy entry %q: expected channel:offset", part)
		}
		channel := notification.Channel(strings.ToLower(strings.TrimSpace(ch)))
		if !channel.Valid() {
			return nil, fmt.Errorf("reminder policy entry %q: unknown channel %q", part, ch)
		}
		label = strings.TrimSpace(label)
		offset, err := parseOffset(label)
		if err != nil {
			return nil, fmt.Errorf("reminder policy entry %q: %w", part, err)
		}
		key := string(channel) + ":" + label
		if seen[key] {
			return nil, fmt.Errorf("reminder policy entry %q is duplicated", part)
		}
		seen[key] = true
		p = append(p, PolicyEntry{Channel: channel, Offset: offset, Label: label})
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("reminder policy %q has no entries", s)
	}
	return p, nil
}

func parseOffset(s string) (time.Duration, error) {
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("offset %q must be positive", s)
	}
	return d, nil
}

func (p Policy) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = string(e.Channel) + ":" + e.Label
	}
	return strings.Join(parts, ",")
}
