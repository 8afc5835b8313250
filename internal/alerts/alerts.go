// Package alerts exposes querying and the one-directional lifecycle of alerts.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ksp-deals/internal/models"
)

// ErrInvalidTransition is returned when the state machine forbids a move.
var ErrInvalidTransition = errors.New("invalid alert transition")

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store is the alert persistence the service needs.
type Store interface {
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.AlertView, error)
	GetAlert(ctx context.Context, id string) (*models.AlertView, error)
	TransitionAlert(ctx context.Context, id string, to models.AlertStatus, at time.Time) (bool, error)
	AlertStats(ctx context.Context, since time.Time) (models.AlertStats, error)
	LastPostForAlert(ctx context.Context, alertID string) (*models.PostRecord, error)
}

// Service implements list/get/transition/stats over a Store.
type Service struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a service; loc defines the calendar day used by Stats.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns alerts matching f, newest first. The limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (s *Service) List(ctx context.Context, f models.AlertFilter) ([]models.AlertView, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListAlerts(ctx, f)
}

// Get returns one alert or models.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.AlertView, error) {
	return s.store.GetAlert(ctx, id)
}

// Detail is an alert with its most recent delivery attempt, if any.
type Detail struct {
	Alert       models.AlertView
	LastAttempt *models.PostRecord
}

// GetDetail returns the alert together with its last delivery attempt, so
// "never attempted", "attempted and failed" and "sent" can be told apart.
func (s *Service) GetDetail(ctx context.Context, id string) (*Detail, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Alert: *a}
	last, err := s.store.LastPostForAlert(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("last attempt for %s: %w", id, err)
	default:
		d.LastAttempt = last
	}
	return d, nil
}

// Transition moves an alert to status to, enforcing pending → sent|dismissed.
func (s *Service) Transition(ctx context.Context, id string, to models.AlertStatus) (*models.AlertView, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, a.Status, to)
	}
	ok, err := s.store.TransitionAlert(ctx, id, to, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: alert %s is no longer pending", ErrInvalidTransition, id)
	}
	return s.store.GetAlert(ctx, id)
}

// Dismiss is Transition(id, dismissed).
func (s *Service) Dismiss(ctx context.Context, id string) (*models.AlertView, error) {
	return s.Transition(ctx, id, models.StatusDismissed)
}

// Stats aggregates over all alerts; TodayCount uses the service's calendar day.
func (s *Service) Stats(ctx context.Context) (models.AlertStats, error) {
	return s.store.AlertStats(ctx, models.StartOfDay(s.now(), s.loc))
}
