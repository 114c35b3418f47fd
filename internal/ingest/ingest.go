// Package ingest normalizes scraped platform reviews into canonical records
// and persists them idempotently. Re-running a scrape never duplicates work:
// identity is derived from the platform's own review id, so already-seen
// reviews are silently skipped.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/store"
)

// RawReview is a review as an adapter scraped it, before normalization.
type RawReview struct {
	Platform         models.Platform
	StoreCode        string
	NativeID         string
	ReviewerName     string
	Rating           int
	Content          string
	OrderedItems     []string
	DateText         string // absolute ("2026-08-14") or relative ("3 days ago")
	DeliveryFeedback string
	HasOwnerReply    bool
}

// Result summarizes one ingestion batch.
type Result struct {
	Inserted int
	Skipped  int // already known
	Invalid  int
}

// Ingestor normalizes and stores raw reviews.
type Ingestor struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Ingestor {
	return &Ingestor{store: s, now: time.Now}
}

// Ingest normalizes each raw review and upserts it. Invalid rows are counted
// and skipped rather than aborting the batch: one malformed scrape entry must
// not block the rest of the page.
func (in *Ingestor) Ingest(ctx context.Context, raws []RawReview) (Result, error) {
	var res Result
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := Normalize(raw, in.now())
		if err != nil {
			res.Invalid++
			continue
		}
		inserted, err := in.store.UpsertReview(ctx, rec)
		if err != nil {
			return res, fmt.Errorf("upsert review %s: %w", rec.ID, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// Normalize converts a scraped review into a canonical record: cleaned names,
// clamped ratings, absolute dates, deterministic id. Reviews that already
// carry an owner reply enter the store terminal so they are never claimed.
func Normalize(raw RawReview, now time.Time) (*models.ReviewRecord, error) {
	if raw.StoreCode == "" {
		return nil, fmt.Errorf("raw review missing store code")
	}
	if raw.Platform == "" {
		return nil, fmt.Errorf("raw review missing platform")
	}

	name := CleanName(raw.ReviewerName)
	content := strings.TrimSpace(raw.Content)

	nativeID := strings.TrimSpace(raw.NativeID)
	if nativeID == "" {
		// Some platforms expose no stable review id. Fall back to the
		// review's own visible fields, which is what the platform UI keys
		// matching on anyway.
		nativeID = name + "|" + content + "|" + strings.TrimSpace(raw.DateText)
	}

	rating := raw.Rating
	if rating < 0 || rating > 5 {
		rating = 0
	}

	date, err := ParseDate(raw.DateText, now)
	if err != nil {
		return nil, err
	}

	items := make([]string, 0, len(raw.OrderedItems))
	for _, it := range raw.OrderedItems {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}

	status := models.StatusPending
	if raw.HasOwnerReply {
		status = models.StatusPosted
	}

	return &models.ReviewRecord{
		ID:               models.ReviewID(raw.Platform, raw.StoreCode, nativeID),
		StoreCode:        raw.StoreCode,
		Platform:         raw.Platform,
		PlatformReviewID: nativeID,
		ReviewerName:     name,
		Rating:           rating,
		Content:          content,
		OrderedItems:     items,
		ReviewDate:       date,
		DeliveryFeedback: strings.TrimSpace(raw.DeliveryFeedback),
		HasOwnerReply:    raw.HasOwnerReply,
		Status:           status,
	}, nil
}

var nameNoise = regexp.MustCompile(`\s+`)

// CleanName collapses whitespace and strips masking characters platforms use
// in reviewer names. Empty names become "customer" so prompts and matching
// always have something to work with.
func CleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == '*' || r == '•' {
			return -1
		}
		return r
	}, s)
	s = nameNoise.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "customer"
	}
	return s
}

var relAgo = regexp.MustCompile(`^(\d+)\s+(day|week|month)s?\s+ago$`)

// ParseDate resolves the date text platforms display into an absolute date.
// Accepts the relative vocabulary ("today", "yesterday", "this week",
// "last week", "N days/weeks/months ago") and common absolute layouts.
func ParseDate(s string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(s)
	s = strings.ToLower(raw)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch s {
	case "", "today":
		return day, nil
	case "yesterday":
		return day.AddDate(0, 0, -1), nil
	case "this week":
		// Two days back keeps the date in the "this week" bucket (today and
		// yesterday have their own labels), clamped to the week's Monday.
		back := 2
		if weekday := int(day.Weekday()+6) % 7; weekday < back {
			back = weekday
		}
		return day.AddDate(0, 0, -back), nil
	case "last week":
		return day.AddDate(0, 0, -7), nil
	}

	if m := relAgo.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "day":
			return day.AddDate(0, 0, -n), nil
		case "week":
			return day.AddDate(0, 0, -7*n), nil
		case "month":
			return day.AddDate(0, -n, 0), nil
		}
	}

	for _, layout := range []string{"2006-01-02", "2006.01.02", "2006/01/02", "Jan 2, 2006"} {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized review date %q", raw)
}
