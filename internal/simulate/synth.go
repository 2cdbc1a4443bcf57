// internal/simulate/synth.go
package simulate

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"bms-dashboard/internal/model"
)

// Baselines the synthesized values cluster around.
const (
	baseTemperature = 25.0
	baseCO2         = 400.0
	baseHumidity    = 50.0
	basePower       = 5.0
)

// Status thresholds derived alongside the raw metrics.
const (
	warnTemperature  = 45.0
	warnCO2          = 1000.0
	faultTemperature = 50.0
	faultCO2         = 1300.0
)

// MetricOrder is the fixed set (and write order) of synthesized metrics.
var MetricOrder = []string{
	model.MetricTemperature,
	model.MetricCO2,
	model.MetricHumidity,
	model.MetricPower,
	model.MetricStatus,
}

// Synthesizer produces simulated telemetry for a device. Values cluster
// around a stable per-device baseline so repeated runs for the same device
// are not pure noise.
type Synthesizer struct {
	rng *rand.Rand
}

// NewSynthesizer builds a Synthesizer around the given RNG. A nil rng gets a
// time-seeded one; tests pass a fixed seed for reproducibility.
func NewSynthesizer(rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Synthesizer{rng: rng}
}

// deviceOffset reduces an FNV-1a hash of the identifier modulo 100. Stable
// across runs for the same identifier.
func deviceOffset(deviceID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(deviceID))
	return h.Sum64() % 100
}

func (s *Synthesizer) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

// Synthesize returns one reading set for the device: always exactly the five
// fixed metric keys, all finite.
func (s *Synthesizer) Synthesize(deviceID string) map[string]float64 {
	h := deviceOffset(deviceID)
	tempOffset := float64(h%10) - 5
	co2Offset := float64(h%200) - 100

	temperature := baseTemperature + tempOffset + s.uniform(-3, 8)
	co2 := baseCO2 + co2Offset + s.uniform(-50, 300)
	humidity := baseHumidity + s.uniform(-15, 25)
	power := basePower + s.uniform(-2, 3)

	// Fault injection keeps the alerting path exercised over many cycles.
	if s.rng.Float64() < 0.05 {
		temperature = s.uniform(46, 55)
	}
	if s.rng.Float64() < 0.03 {
		co2 = s.uniform(1100, 1500)
	}

	status := 0.0
	if temperature > warnTemperature || co2 > warnCO2 {
		status = 1
	}
	if temperature > faultTemperature || co2 > faultCO2 {
		status = 2
	}

	return map[string]float64{
		model.MetricTemperature: roundTo(temperature, 1),
		model.MetricCO2:         math.Round(co2),
		model.MetricHumidity:    roundTo(humidity, 1),
		model.MetricPower:       roundTo(power, 2),
		model.MetricStatus:      status,
	}
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
