package models

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Platform identifies a storefront platform a review was collected from.
type Platform string

const (
	PlatformBaemin      Platform = "baemin"
	PlatformCoupangEats Platform = "coupangeats"
	PlatformYogiyo      Platform = "yogiyo"
	PlatformNaver       Platform = "naver"
)

// KnownPlatforms lists every platform an adapter can be registered for.
var KnownPlatforms = []Platform{PlatformBaemin, PlatformCoupangEats, PlatformYogiyo, PlatformNaver}

// ReplyStatus represents the processing state of a review's reply.
type ReplyStatus string

const (
	StatusPending        ReplyStatus = "pending"
	StatusGenerating     ReplyStatus = "generating"
	StatusQualityReview  ReplyStatus = "quality_review"
	StatusRegenerate     ReplyStatus = "regenerate"
	StatusReady          ReplyStatus = "ready"
	StatusPosting        ReplyStatus = "posting"
	StatusPosted         ReplyStatus = "posted"
	StatusFailed         ReplyStatus = "failed"
	StatusManualRequired ReplyStatus = "manual_required"
)

// ReviewRecord is one collected customer review plus its reply processing
// state. Identity and review attributes are immutable after ingestion; only
// the reply-side fields change.
type ReviewRecord struct {
	ID               string
	StoreCode        string
	Platform         Platform
	PlatformReviewID string // native id as exposed by the platform, may be synthetic
	ReviewerName     string
	Rating           int // 1-5; 0 when the platform exposes no rating
	Content          string
	OrderedItems     []string
	ReviewDate       time.Time
	DeliveryFeedback string
	HasOwnerReply    bool // owner reply already present on the platform at crawl time

	Status             ReplyStatus
	ReplyText          string
	GenerationAttempts int
	PostAttempts       int
	ErrorReason        string

	CreatedAt time.Time
	UpdatedAt time.Time
	PostedAt  *time.Time
}

// ReviewID derives the globally unique review id from platform, store code
// and the platform-native id. Deterministic so re-ingesting the same review
// maps onto the same record.
func ReviewID(platform Platform, storeCode, nativeID string) string {
	sum := sha256.Sum256([]byte(string(platform) + "|" + storeCode + "|" + nativeID))
	return fmt.Sprintf("%x", sum[:16])
}

// HasRating reports whether the platform exposed a star rating for this review.
func (r *ReviewRecord) HasRating() bool {
	return r.Rating > 0
}
