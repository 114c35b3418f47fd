package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy("gangnam-1")

	assert.Equal(t, "gangnam-1", p.StoreCode)
	assert.Equal(t, 450, p.MaxReplyLength)
	assert.Equal(t, 20, p.MinReplyLength)
	assert.Equal(t, 0.5, p.AcceptanceThreshold)
	assert.Equal(t, 3, p.MaxRegenAttempts)
	assert.Contains(t, p.RequiredPhrases, "thank")
	for rating := 1; rating <= 5; rating++ {
		assert.True(t, p.AutoReplyEnabledFor(rating), "rating %d", rating)
	}
	assert.Empty(t, p.AutoReplyHours)
}

func TestAutoReplyEnabledFor(t *testing.T) {
	p := DefaultPolicy("s1")
	p.Rating1Reply = false
	p.Rating2Reply = false

	assert.False(t, p.AutoReplyEnabledFor(1))
	assert.False(t, p.AutoReplyEnabledFor(2))
	assert.True(t, p.AutoReplyEnabledFor(3))
	assert.True(t, p.AutoReplyEnabledFor(4))
	assert.True(t, p.AutoReplyEnabledFor(5))
}

func TestAutoReplyEnabledFor_NoRatingFollowsFiveStar(t *testing.T) {
	p := DefaultPolicy("s1")
	p.Rating5Reply = false

	assert.False(t, p.AutoReplyEnabledFor(0))

	p.Rating5Reply = true
	assert.True(t, p.AutoReplyEnabledFor(0))
}

func TestSetRatingReply(t *testing.T) {
	p := DefaultPolicy("s1")

	p.SetRatingReply(3, false)
	assert.False(t, p.Rating3Reply)

	p.SetRatingReply(3, true)
	assert.True(t, p.Rating3Reply)

	// Out-of-range ratings are ignored
	p.SetRatingReply(0, false)
	p.SetRatingReply(6, false)
	assert.True(t, p.Rating5Reply)
}

func TestWithinAutoReplyHours(t *testing.T) {
	p := DefaultPolicy("s1")
	p.AutoReplyHours = "09:00-22:00"

	at := func(hour, min int) time.Time {
		return time.Date(2026, 8, 31, hour, min, 0, 0, time.UTC)
	}

	assert.True(t, p.WithinAutoReplyHours(at(9, 0)))
	assert.True(t, p.WithinAutoReplyHours(at(14, 30)))
	assert.True(t, p.WithinAutoReplyHours(at(22, 0)))
	assert.False(t, p.WithinAutoReplyHours(at(8, 59)))
	assert.False(t, p.WithinAutoReplyHours(at(22, 1)))
	assert.False(t, p.WithinAutoReplyHours(at(3, 0)))
}

func TestWithinAutoReplyHours_OvernightWindow(t *testing.T) {
	p := DefaultPolicy("s1")
	p.AutoReplyHours = "22:00-02:00"

	at := func(hour, min int) time.Time {
		return time.Date(2026, 8, 31, hour, min, 0, 0, time.UTC)
	}

	assert.True(t, p.WithinAutoReplyHours(at(22, 0)))
	assert.True(t, p.WithinAutoReplyHours(at(23, 30)))
	assert.True(t, p.WithinAutoReplyHours(at(0, 15)))
	assert.True(t, p.WithinAutoReplyHours(at(2, 0)))
	assert.False(t, p.WithinAutoReplyHours(at(2, 1)))
	assert.False(t, p.WithinAutoReplyHours(at(12, 0)))
	assert.False(t, p.WithinAutoReplyHours(at(21, 59)))
}

func TestWithinAutoReplyHours_EmptyAlwaysAllows(t *testing.T) {
	p := DefaultPolicy("s1")
	p.AutoReplyHours = ""

	assert.True(t, p.WithinAutoReplyHours(time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)))
}

func TestWithinAutoReplyHours_MalformedAlwaysAllows(t *testing.T) {
	p := DefaultPolicy("s1")
	p.AutoReplyHours = "nine-to-five"

	assert.True(t, p.WithinAutoReplyHours(time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)))
}

func TestValidateAutoReplyHours(t *testing.T) {
	tests := []struct {
		window string
		ok     bool
	}{
		{"", true},
		{"09:00-22:00", true},
		{"00:00-23:59", true},
		{"0900-2200", false},
		{"09:00", false},
		{"ab:cd-ef:gh", false},
	}

	for _, tt := range tests {
		p := DefaultPolicy("s1")
		p.AutoReplyHours = tt.window
		err := p.ValidateAutoReplyHours()
		if tt.ok {
			require.NoError(t, err, "window %q", tt.window)
		} else {
			require.Error(t, err, "window %q", tt.window)
		}
	}
}
