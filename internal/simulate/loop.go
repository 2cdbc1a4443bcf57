// internal/simulate/loop.go
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"bms-dashboard/internal/alerting"
	"bms-dashboard/internal/cache"
	"bms-dashboard/internal/metrics"
	"bms-dashboard/internal/model"
	"bms-dashboard/internal/store"
)

// Notifier receives the once-per-cycle "new data exists" signal. Clients are
// expected to refetch authoritative state through the query API.
type Notifier interface {
	BroadcastUpdate(ts time.Time)
}

// Loop is the background simulation: on a fixed period it synthesizes
// telemetry for every active device, evaluates thresholds, persists readings
// and alerts, and signals the notifier once per cycle.
//
// The loop is the availability core of the demo: any store failure inside a
// cycle is logged and contained, never fatal. It exits only when its context
// is cancelled.
type Loop struct {
	store    store.Store
	eval     *alerting.Evaluator
	notifier Notifier
	cache    *cache.Cache
	synth    *Synthesizer
	interval time.Duration
	now      func() time.Time
}

// NewLoop wires the simulation. cache may be nil.
func NewLoop(s store.Store, eval *alerting.Evaluator, n Notifier, c *cache.Cache, synth *Synthesizer, interval time.Duration) *Loop {
	if synth == nil {
		synth = NewSynthesizer(nil)
	}
	return &Loop{
		store:    s,
		eval:     eval,
		notifier: n,
		cache:    c,
		synth:    synth,
		interval: interval,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. One cycle runs immediately, then one per
// interval.
func (l *Loop) Run(ctx context.Context) {
	log.Printf("Simulation loop starting (interval %s)", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Simulation loop stopped")
			return
		case <-ticker.C:
			l.runCycle(ctx)
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) {
	metrics.SimulationCycles.Inc()

	devices, err := l.store.ActiveDevices(ctx)
	if err != nil {
		metrics.SimulationErrors.Inc()
		log.Printf("Simulation error: failed to list active devices: %v", err)
		return
	}

	ts := l.now().UTC()
	for _, device := range devices {
		if err := l.simulateDevice(ctx, device, ts); err != nil {
			metrics.SimulationErrors.Inc()
			log.Printf("Simulation error for device %s: %v", device.DeviceID, err)
			// A single device failure never terminates the cycle.
		}
	}

	l.cache.InvalidateDashboardStats(ctx)
	l.notifier.BroadcastUpdate(ts)
}

func (l *Loop) simulateDevice(ctx context.Context, device model.Device, ts time.Time) error {
	readings := l.synth.Synthesize(device.DeviceID)

	for _, metric := range MetricOrder {
		r := model.Reading{
			DeviceID:  device.ID,
			Metric:    metric,
			Value:     readings[metric],
			Timestamp: ts,
		}
		if err := l.store.InsertReading(ctx, &r); err != nil {
			return fmt.Errorf("insert %s reading: %w", metric, err)
		}
		metrics.ReadingsWritten.Inc()
	}
	l.cache.SetLatestTelemetry(ctx, device.DeviceID, readings)

	for _, alert := range l.eval.Check(readings) {
		alert.DeviceID = device.ID
		alert.TriggeredAt = ts
		if err := l.store.InsertAlert(ctx, &alert); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		metrics.AlertsTriggered.Inc()
		l.logAlert(ctx, device, alert)
	}
	return nil
}

// logAlert records the event; failures here are not worth failing the device
// cycle over.
func (l *Loop) logAlert(ctx context.Context, device model.Device, alert model.Alert) {
	ruleJSON, _ := json.Marshal(alert.Rule)
	entry := model.LogEntry{
		DeviceID:  &device.ID,
		EventType: "alert_triggered",
		Message:   fmt.Sprintf("Alert on %s: %s", device.DeviceID, ruleJSON),
		Timestamp: alert.TriggeredAt,
	}
	if err := l.store.InsertLog(ctx, &entry); err != nil {
		log.Printf("Failed to log alert for device %s: %v", device.DeviceID, err)
	}
}
