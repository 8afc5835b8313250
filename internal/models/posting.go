package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultMinDiscountPercent = 40
	DefaultMaxPostsPerDay     = 10
)

// PostingQuota is the posting configuration and daily counter.
type PostingQuota struct {
	ChannelID          string
	MinDiscountPercent decimal.Decimal
	MaxPostsPerDay     int
	PostsToday         int
	LastResetAt        time.Time
	LastPostAt         *time.Time
}

// Remaining returns how many posts are still allowed today.
func (q *PostingQuota) Remaining() int {
	if r := q.MaxPostsPerDay - q.PostsToday; r > 0 {
		return r
	}
	return 0
}

// ResetIfNewDay zeroes the counter when now falls on a later calendar day
// (in loc) than LastResetAt. It reports whether a reset happened.
func (q *PostingQuota) ResetIfNewDay(now time.Time, loc *time.Location) bool {
	if !StartOfDay(q.LastResetAt, loc).Before(StartOfDay(now, loc)) {
		return false
	}
	q.PostsToday = 0
	q.LastResetAt = now
	return true
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// PostStatus is the outcome of one delivery attempt.
type PostStatus string

const (
	PostSent   PostStatus = "sent"
	PostFailed PostStatus = "failed"
)

// ParsePostStatus converts an external string into a PostStatus.
func ParsePostStatus(s string) (PostStatus, error) {
	switch st := PostStatus(s); st {
	case PostSent, PostFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown post status %q", s)
}

// PostRecord is the immutable audit entry for one delivery attempt.
type PostRecord struct {
	ID              string
	AlertID         string
	ProductID       string
	Title           string
	OldPrice        decimal.NullDecimal
	NewPrice        decimal.NullDecimal
	PercentOff      decimal.NullDecimal
	ImageURL        string
	AffiliateLink   string
	Status          PostStatus
	DeliveryReceipt *string
	Error           *string
	CreatedAt       time.Time
}

// PostStats summarizes the post log.
type PostStats struct {
	TotalPosts int
	SentToday  int
	Failed     int
}
