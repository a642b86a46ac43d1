package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/go-deadreckon/pkg/event"
)

// Collector exposes propagation activity as Prometheus metrics
type Collector struct {
	steps        *prometheus.CounterVec
	clamped      prometheus.Counter
	nonFinite    prometheus.Counter
	bodies       prometheus.Gauge
	bodySpeed    *prometheus.GaugeVec
	bodyHeading  *prometheus.GaugeVec
	bodyAltitude *prometheus.GaugeVec

	// step events are published after the engine lock is released, so a
	// removal can overtake them; per-body series only exist for live IDs
	mu   sync.Mutex
	live map[uint64]struct{}
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		live: make(map[uint64]struct{}),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deadreckon_steps_total",
				Help: "Kinematic updates applied, by command type",
			},
			[]string{"command"},
		),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deadreckon_turn_rate_clamped_total",
			Help: "Turn-rate commands limited by the vehicle class ceiling",
		}),
		nonFinite: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deadreckon_nonfinite_states_total",
			Help: "Bodies whose state became NaN or infinite",
		}),
		bodies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deadreckon_bodies",
			Help: "Bodies currently propagated",
		}),
		bodySpeed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deadreckon_body_speed_mps",
				Help: "Current speed of each body",
			},
			[]string{"body_id", "body"},
		),
		bodyHeading: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deadreckon_body_heading_radians",
				Help: "Current heading (theta) of each body",
			},
			[]string{"body_id", "body"},
		),
		bodyAltitude: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deadreckon_body_altitude_meters",
				Help: "Current z position of each body",
			},
			[]string{"body_id", "body"},
		),
	}

	reg.MustRegister(c.steps, c.clamped, c.nonFinite, c.bodies, c.bodySpeed, c.bodyHeading, c.bodyAltitude)
	return c
}

// Attach subscribes the collector to engine events on bus.
func (c *Collector) Attach(bus *event.Bus) {
	bus.Subscribe(event.BodyAdded, c.handleBodyAdded)
	bus.Subscribe(event.BodyRemoved, c.handleBodyRemoved)
	bus.Subscribe(event.StepCompleted, c.handleStep)
	bus.Subscribe(event.TurnRateClamped, func(event.Event) { c.clamped.Inc() })
	bus.Subscribe(event.NonFiniteState, func(event.Event) { c.nonFinite.Inc() })
}

func (c *Collector) handleBodyAdded(ev event.Event) {
	c.bodies.Inc()
	if body, ok := ev.(*event.BodyEvent); ok {
		c.mu.Lock()
		c.live[body.BodyID] = struct{}{}
		c.mu.Unlock()
	}
}

func (c *Collector) handleBodyRemoved(ev event.Event) {
	c.bodies.Dec()
	if body, ok := ev.(*event.BodyEvent); ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.live, body.BodyID)
		labels := []string{strconv.FormatUint(body.BodyID, 10), body.Name}
		c.bodySpeed.DeleteLabelValues(labels...)
		c.bodyHeading.DeleteLabelValues(labels...)
		c.bodyAltitude.DeleteLabelValues(labels...)
	}
}

func (c *Collector) handleStep(ev event.Event) {
	step, ok := ev.(*event.StepEvent)
	if !ok {
		return
	}
	c.steps.WithLabelValues(step.Command).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[step.BodyID]; !ok {
		return
	}
	id := strconv.FormatUint(step.BodyID, 10)
	c.bodySpeed.WithLabelValues(id, step.Name).Set(step.After.Speed())
	c.bodyHeading.WithLabelValues(id, step.Name).Set(step.After.Theta)
	c.bodyAltitude.WithLabelValues(id, step.Name).Set(step.After.Z)
}
