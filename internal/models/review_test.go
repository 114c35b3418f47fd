package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReviewID_Deterministic(t *testing.T) {
	a := ReviewID(PlatformBaemin, "gangnam-1", "rev-100")
	b := ReviewID(PlatformBaemin, "gangnam-1", "rev-100")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestReviewID_DistinguishesComponents(t *testing.T) {
	base := ReviewID(PlatformBaemin, "gangnam-1", "rev-100")

	assert.NotEqual(t, base, ReviewID(PlatformYogiyo, "gangnam-1", "rev-100"))
	assert.NotEqual(t, base, ReviewID(PlatformBaemin, "gangnam-2", "rev-100"))
	assert.NotEqual(t, base, ReviewID(PlatformBaemin, "gangnam-1", "rev-101"))
}

func TestHasRating(t *testing.T) {
	assert.True(t, (&ReviewRecord{Rating: 1}).HasRating())
	assert.True(t, (&ReviewRecord{Rating: 5}).HasRating())
	assert.False(t, (&ReviewRecord{Rating: 0}).HasRating())
}
