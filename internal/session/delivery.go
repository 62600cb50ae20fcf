package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikana/dashboard/internal/charts"
	"github.com/mikana/dashboard/internal/forecastapi"
	"github.com/mikana/dashboard/internal/metrics"
	"github.com/mikana/dashboard/internal/models"
)

// DeliveryForecaster is the part of the forecast client the delivery page
// uses.
type DeliveryForecaster interface {
	PredictOrders(ctx context.Context, req models.PredictionRequest) (*forecastapi.Forecast, error)
	PredictDelivery(ctx context.Context, req models.DeliveryRequest) (*models.DeliveryPrediction, error)
}

type DeliveryForm struct {
	Date    string `json:"date"`
	Article string `json:"article"`
}

// DeliverySnapshot is an immutable view of the delivery page.
type DeliverySnapshot struct {
	State           State                      `json:"state"`
	Token           uint64                     `json:"token"`
	Form            DeliveryForm               `json:"form"`
	OrderedQuantity float64                    `json:"orderedQuantity"`
	Result          *models.DeliveryPrediction `json:"result,omitempty"`
	Pie             []charts.PieSlice          `json:"pie,omitempty"`
	Tone            charts.Tone                `json:"tone,omitempty"`
	Err             *forecastapi.Error         `json:"error,omitempty"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

func (s DeliverySnapshot) clone() DeliverySnapshot {
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	if s.Pie != nil {
		s.Pie = append([]charts.PieSlice(nil), s.Pie...)
	}
	return s
}

// DeliveryStore chains an order forecast into a delivery forecast: the
// predicted order quantity is the input of the delivery model.
type DeliveryStore struct {
	client DeliveryForecaster
	now    func() time.Time

	mu     sync.Mutex
	snap   DeliverySnapshot
	token  uint64
	cancel context.CancelFunc

	subs broadcaster[DeliverySnapshot]
}

func NewDelivery(client DeliveryForecaster) *DeliveryStore {
	return &DeliveryStore{client: client, now: time.Now, snap: DeliverySnapshot{State: StateIdle}}
}

func (d *DeliveryStore) Snapshot() DeliverySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.clone()
}

func (d *DeliveryStore) Subscribe() (<-chan DeliverySnapshot, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs.subscribe(d.snap.clone())
}

func (d *DeliveryStore) setLocked(snap DeliverySnapshot) {
	snap.UpdatedAt = d.now()
	d.snap = snap
	d.subs.publish(snap.clone())
}

// Submit predicts the delivery for one article on one date. If the order
// forecast fails the delivery model is not called.
func (d *DeliveryStore) Submit(ctx context.Context, form DeliveryForm) (DeliverySnapshot, error) {
	d.mu.Lock()
	d.token++
	token := d.token
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	prev := d.snap.clone()

	if err := validateDeliveryForm(form); err != nil {
		next := prev
		next.State = StateFailed
		next.Token = token
		next.Form = form
		next.Err = err
		d.setLocked(next)
		out := d.snap.clone()
		d.mu.Unlock()
		metrics.SubmissionsTotal.WithLabelValues("delivery", "invalid").Inc()
		return out, err
	}

	next := prev
	next.State = StateSubmitting
	next.Token = token
	next.Form = form
	next.Err = nil
	d.setLocked(next)

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	forecast, err := d.client.PredictOrders(ctx, models.PredictionRequest{
		DateType:  models.DateSingle,
		StartDate: form.Date,
		LinenType: form.Article,
		Factors:   []string{},
	})
	if err != nil {
		return d.fail(token, prev, err)
	}
	if len(forecast.Predictions) == 0 {
		return d.fail(token, prev, &forecastapi.Error{
			Kind: forecastapi.KindParse,
			Op:   "predict",
			Err:  fmt.Errorf("no order forecast for %s on %s", form.Article, form.Date),
		})
	}
	ordered := forecast.Predictions[0].Value

	result, err := d.client.PredictDelivery(ctx, models.DeliveryRequest{
		Date:     form.Date,
		Article:  form.Article,
		Quantity: ordered,
	})
	if err != nil {
		return d.fail(token, prev, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if token != d.token {
		return DeliverySnapshot{}, ErrSuperseded
	}
	d.cancel = nil
	d.setLocked(DeliverySnapshot{
		State:           StateReady,
		Token:           token,
		Form:            form,
		OrderedQuantity: ordered,
		Result:          result,
		Pie:             charts.DeliveryPie(ordered, result.PredictedQuantity),
		Tone:            charts.DeliveryRateTone(result.DeliveryRate),
	})
	metrics.SubmissionsTotal.WithLabelValues("delivery", "ready").Inc()
	return d.snap.clone(), nil
}

func (d *DeliveryStore) fail(token uint64, prev DeliverySnapshot, err error) (DeliverySnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if token != d.token {
		return DeliverySnapshot{}, ErrSuperseded
	}
	d.cancel = nil

	if forecastapi.IsAborted(err) {
		restored := prev
		restored.Err = nil
		if restored.Result != nil {
			restored.State = StateReady
		} else {
			restored.State = StateIdle
		}
		d.setLocked(restored)
		metrics.SubmissionsTotal.WithLabelValues("delivery", "aborted").Inc()
		return d.snap.clone(), err
	}

	log.Printf("session: delivery prediction failed: %v", err)
	failed := d.snap
	failed.State = StateFailed
	failed.Err = forecastapi.AsError("predict-delivery", err)
	d.setLocked(failed)
	metrics.SubmissionsTotal.WithLabelValues("delivery", "failed").Inc()
	return d.snap.clone(), err
}

func (d *DeliveryStore) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.setLocked(DeliverySnapshot{State: StateIdle, Token: d.token})
}

func (d *DeliveryStore) Close() {
	d.Reset()
	d.subs.closeAll()
}

func validateDeliveryForm(form DeliveryForm) *forecastapi.Error {
	if form.Article == "" {
		return forecastapi.ValidationError("predict-delivery", "Veuillez sélectionner un article.")
	}
	if _, err := time.Parse(models.DateLayout, form.Date); err != nil {
		return forecastapi.ValidationError("predict-delivery", "Veuillez choisir une date valide.")
	}
	return nil
}
