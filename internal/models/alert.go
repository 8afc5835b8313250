package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType is the kind of change an alert reports.
type AlertType string

const (
	AlertPriceDrop     AlertType = "price_drop"
	AlertPriceIncrease AlertType = "price_increase"
	AlertBackInStock   AlertType = "back_in_stock"
)

// ParseAlertType converts an external string into an AlertType.
func ParseAlertType(s string) (AlertType, error) {
	switch t := AlertType(s); t {
	case AlertPriceDrop, AlertPriceIncrease, AlertBackInStock:
		return t, nil
	}
	return "", fmt.Errorf("unknown alert type %q", s)
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusPending   AlertStatus = "pending"
	StatusSent      AlertStatus = "sent"
	StatusDismissed AlertStatus = "dismissed"
)

// ParseAlertStatus converts an external string into an AlertStatus.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(s); st {
	case StatusPending, StatusSent, StatusDismissed:
		return st, nil
	}
	return "", fmt.Errorf("unknown alert status %q", s)
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Only pending alerts move, and only to sent or dismissed.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	return s == StatusPending && (next == StatusSent || next == StatusDismissed)
}

// Alert is a typed notification about a product change.
type Alert struct {
	ID            string
	ProductID     string
	Type          AlertType
	OldPrice      decimal.NullDecimal
	NewPrice      decimal.NullDecimal
	PercentChange decimal.NullDecimal // signed, one decimal place; negative is a drop
	Status        AlertStatus
	CreatedAt     time.Time
	SentAt        *time.Time
}

// IsDrop reports whether the alert is a price drop.
func (a *Alert) IsDrop() bool {
	return a.Type == AlertPriceDrop
}

// DiscountPercent returns the magnitude of the change, zero when unknown.
func (a *Alert) DiscountPercent() decimal.Decimal {
	if !a.PercentChange.Valid {
		return decimal.Zero
	}
	return a.PercentChange.Decimal.Abs()
}

// AlertView is an alert joined with the product fields the admin surfaces show.
type AlertView struct {
	Alert
	ProductSKU   string
	ProductTitle string
	ProductImage string
	ProductURL   string
}

// AlertFilter selects alerts for listing. Zero values mean "any".
type AlertFilter struct {
	Status *AlertStatus
	Type   *AlertType
	Limit  int
	Offset int
}

// AlertStats aggregates over the full alert set.
type AlertStats struct {
	Total          int
	Pending        int
	Sent           int
	TotalDrops     int
	AvgDropPercent decimal.Decimal // absolute value, one decimal place
	TodayCount     int
}
