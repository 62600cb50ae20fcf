// Package session holds the per-page prediction state machines. Each
// submission is tagged with a token; results of superseded submissions are
// discarded.
package session

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/metrics"
	"github.com/mikana/dashboard/internal/models"
)

// ErrSuperseded is returned to the caller of a submission whose result was
// discarded because a newer submission or a reset happened meanwhile.
var ErrSuperseded = errors.New("session: superseded by a newer submission")

// DefaultFanout bounds concurrent historical lookups.
const DefaultFanout = 8

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Forecaster is the part of the forecast client the prediction page uses.
type Forecaster interface {
	PredictOrders(ctx context.Context, req models.PredictionRequest) (*forecastapi.Forecast, error)
	FetchHistoricalPoint(ctx context.Context, q models.HistoricalQuery) (*models.HistoricalPoint, error)
}

// Recorder receives every session that reaches ready.
type Recorder interface {
	Append(models.PredictionSession) error
}

// Snapshot is an immutable view of the prediction page.
type Snapshot struct {
	State       State                         `json:"state"`
	Token       uint64                        `json:"token"`
	Form        models.PredictionRequest      `json:"form"`
	Predictions []models.Prediction           `json:"predictions"`
	Comparisons []models.HistoricalComparison `json:"comparisons"`
	ModelStats  *models.ModelStats            `json:"modelStats,omitempty"`
	Err         *forecastapi.Error            `json:"error,omitempty"`
	UpdatedAt   time.Time                     `json:"updatedAt"`
}

func (s Snapshot) clone() Snapshot {
	s.Predictions = slices.Clone(s.Predictions)
	s.Comparisons = slices.Clone(s.Comparisons)
	s.Form.Factors = slices.Clone(s.Form.Factors)
	if s.ModelStats != nil {
		ms := *s.ModelStats
		s.ModelStats = &ms
	}
	return s
}

type Config struct {
	// Fanout bounds concurrent historical lookups. Zero means DefaultFanout.
	Fanout int
	// EnabledFactors lists the factor tags a request may carry.
	EnabledFactors []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store is the prediction page state machine.
type Store struct {
	client  Forecaster
	history Recorder
	cfg     Config

	mu     sync.Mutex
	snap   Snapshot
	token  uint64
	cancel context.CancelFunc

	subs broadcaster[Snapshot]
}

func New(client Forecaster, history Recorder, cfg Config) *Store {
	if cfg.Fanout <= 0 {
		cfg.Fanout = DefaultFanout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		client:  client,
		history: history,
		cfg:     cfg,
		snap:    Snapshot{State: StateIdle},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Subscribe returns a channel that always yields the latest snapshot,
// starting with the current one, and a func to unsubscribe.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.subscribe(s.snap.clone())
}

// setLocked replaces the snapshot and notifies subscribers. s.mu must be held.
func (s *Store) setLocked(snap Snapshot) {
	snap.UpdatedAt = s.cfg.Now()
	s.snap = snap
	s.subs.publish(snap.clone())
}

// Submit runs one prediction. It blocks until the submission settles and
// returns the resulting snapshot. A submission overtaken by a newer one
// returns ErrSuperseded and leaves the state untouched.
func (s *Store) Submit(ctx context.Context, req models.PredictionRequest) (Snapshot, error) {
	s.mu.Lock()
	s.token++
	token := s.token
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	prev := s.snap.clone()

	if err := forecastapi.ValidatePredictionRequest(req, s.cfg.EnabledFactors); err != nil {
		next := prev
		next.State = StateFailed
		next.Token = token
		next.Form = req
		next.Err = forecastapi.AsError("predict", err)
		s.setLocked(next)
		metrics.SubmissionsTotal.WithLabelValues("prediction", "invalid").Inc()
		out := s.snap.clone()
		s.mu.Unlock()
		return out, err
	}

	next := prev
	next.State = StateSubmitting
	next.Token = token
	next.Form = req
	next.Err = nil
	s.setLocked(next)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	forecast, err := s.client.PredictOrders(ctx, req)
	if err != nil {
		return s.fail(token, prev, err)
	}

	comparisons := s.compare(ctx, req, forecast.Predictions)
	if ctx.Err() != nil {
		return s.fail(token, prev, forecastapi.AsError("predict", context.Cause(ctx)))
	}

	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		return Snapshot{}, ErrSuperseded
	}
	s.cancel = nil
	ready := Snapshot{
		State:       StateReady,
		Token:       token,
		Form:        req,
		Predictions: forecast.Predictions,
		Comparisons: comparisons,
		ModelStats:  forecast.ModelStats,
	}
	s.setLocked(ready)
	out := s.snap.clone()
	s.mu.Unlock()

	metrics.SubmissionsTotal.WithLabelValues("prediction", "ready").Inc()
	if s.history != nil {
		if err := s.history.Append(toSession(out, s.cfg.Now())); err != nil {
			log.Printf("session: append history: %v", err)
		}
	}
	return out, nil
}

// fail settles a submission that did not produce predictions. Cancellation
// restores the state held before the submission; other errors keep the
// previous predictions next to the error.
func (s *Store) fail(token uint64, prev Snapshot, err error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return Snapshot{}, ErrSuperseded
	}
	s.cancel = nil

	if forecastapi.IsAborted(err) {
		restored := prev
		restored.Err = nil
		switch {
		case len(restored.Predictions) > 0:
			restored.State = StateReady
		default:
			restored.State = StateIdle
		}
		s.setLocked(restored)
		metrics.SubmissionsTotal.WithLabelValues("prediction", "aborted").Inc()
		return s.snap.clone(), err
	}

	log.Printf("session: prediction failed: %v", err)
	failed := s.snap
	failed.State = StateFailed
	failed.Err = forecastapi.AsError("predict", err)
	s.setLocked(failed)
	metrics.SubmissionsTotal.WithLabelValues("prediction", "failed").Inc()
	return s.snap.clone(), err
}

// compare looks up the historical volumes for every predicted date with
// bounded concurrency. A failed lookup yields a zero row and never cancels
// its siblings.
func (s *Store) compare(ctx context.Context, req models.PredictionRequest, preds []models.Prediction) []models.HistoricalComparison {
	rows := make([]models.HistoricalComparison, len(preds))
	var g errgroup.Group
	g.SetLimit(s.cfg.Fanout)
	for i, p := range preds {
		rows[i] = models.HistoricalComparison{Date: p.Date, Prediction: p.Value}
		g.Go(func() error {
			day, err := time.Parse(models.DateLayout, p.Date)
			if err != nil {
				metrics.HistoricalLookupFailures.Inc()
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			point, err := s.client.FetchHistoricalPoint(ctx, models.HistoricalQuery{
				Establishment: req.Establishment,
				LinenType:     req.LinenType,
				Month:         int(day.Month()),
				Day:           day.Day(),
			})
			if err != nil {
				if !forecastapi.IsAborted(err) {
					metrics.HistoricalLookupFailures.Inc()
					log.Printf("session: historical lookup %s: %v", p.Date, err)
				}
				return nil
			}
			rows[i].Historical2024 = point.Value2024
			rows[i].Historical2023 = point.Value2023
			return nil
		})
	}
	g.Wait()
	return rows
}

// Reset cancels any in-flight submission and returns to idle.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setLocked(Snapshot{State: StateIdle, Token: s.token})
}

// Close resets the store and closes every subscription.
func (s *Store) Close() {
	s.Reset()
	s.subs.closeAll()
}

func toSession(snap Snapshot, now time.Time) models.PredictionSession {
	points := make([]models.SessionPoint, len(snap.Predictions))
	for i, p := range snap.Predictions {
		points[i] = models.SessionPoint{Date: p.Date, Value: p.Value}
	}
	return models.PredictionSession{
		Timestamp:     now.UTC(),
		Establishment: snap.Form.Establishment,
		LinenType:     snap.Form.LinenType,
		Predictions:   points,
	}
}
