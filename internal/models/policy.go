package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StorePolicy is the per-store reply policy consumed read-only by the engine.
type StorePolicy struct {
	ID        string
	StoreCode string

	GreetingStart string
	GreetingEnd   string
	Role          string // persona for the generator, e.g. "friendly owner"
	Tone          string

	BannedWords     []string
	RequiredPhrases []string // honorifics/phrases every reply must contain

	MaxReplyLength int
	MinReplyLength int

	// Per-rating auto-reply enablement. Index 1-5; rating 0 (no rating shown)
	// follows Rating5Reply since those platforms only surface positive feedback
	// ambiguity to the owner.
	Rating1Reply bool
	Rating2Reply bool
	Rating3Reply bool
	Rating4Reply bool
	Rating5Reply bool

	AcceptanceThreshold float64
	MaxRegenAttempts    int

	// AutoReplyHours restricts automated posting to a daily window,
	// formatted "HH:MM-HH:MM". Empty means always on.
	AutoReplyHours string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPolicy returns the policy applied to stores without an explicit one.
func DefaultPolicy(storeCode string) *StorePolicy {
	return &StorePolicy{
		StoreCode:           storeCode,
		GreetingStart:       "Hello",
		GreetingEnd:         "Thank you",
		Role:                "friendly store owner",
		Tone:                "warm and professional",
		RequiredPhrases:     []string{"thank"},
		MaxReplyLength:      450,
		MinReplyLength:      20,
		Rating1Reply:        true,
		Rating2Reply:        true,
		Rating3Reply:        true,
		Rating4Reply:        true,
		Rating5Reply:        true,
		AcceptanceThreshold: 0.5,
		MaxRegenAttempts:    3,
	}
}

// AutoReplyEnabledFor reports whether automated replies are enabled for the
// given star rating.
func (p *StorePolicy) AutoReplyEnabledFor(rating int) bool {
	switch rating {
	case 1:
		return p.Rating1Reply
	case 2:
		return p.Rating2Reply
	case 3:
		return p.Rating3Reply
	case 4:
		return p.Rating4Reply
	default:
		return p.Rating5Reply
	}
}

// SetRatingReply toggles auto-reply for one star rating.
func (p *StorePolicy) SetRatingReply(rating int, on bool) {
	switch rating {
	case 1:
		p.Rating1Reply = on
	case 2:
		p.Rating2Reply = on
	case 3:
		p.Rating3Reply = on
	case 4:
		p.Rating4Reply = on
	case 5:
		p.Rating5Reply = on
	}
}

// ValidateAutoReplyHours checks the window syntax. Empty is valid (always on).
func (p *StorePolicy) ValidateAutoReplyHours() error {
	if p.AutoReplyHours == "" {
		return nil
	}
	_, _, err := parseHoursWindow(p.AutoReplyHours)
	return err
}

// WithinAutoReplyHours reports whether t falls inside the configured daily
// window. An end before the start wraps past midnight ("22:00-02:00" covers
// late evening through early morning). An empty or malformed window always
// allows posting.
func (p *StorePolicy) WithinAutoReplyHours(t time.Time) bool {
	start, end, err := parseHoursWindow(p.AutoReplyHours)
	if err != nil {
		return true
	}
	cur := t.Hour()*60 + t.Minute()
	if end < start {
		return cur >= start || cur <= end
	}
	return start <= cur && cur <= end
}

func parseHoursWindow(s string) (startMin, endMin int, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("empty window")
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed window: %s", s)
	}
	startMin, err = parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	endMin, err = parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return startMin, endMin, nil
}

func parseClock(s string) (int, error) {
	hm := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("malformed clock: %s", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}
