// Package event produces the synthetic air-quality readings published each tick.
package event

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/mbrazalez/CEP4Pollution/pkg/types"
)

// Value ranges per reading kind. Lower bounds are inclusive, upper exclusive.
const (
	PollutantMin = 0.0
	PollutantMax = 200.0
	HumidityMin  = 90.0
	HumidityMax  = 100.0
)

// Generator builds one Event per call to Next. It is not safe for concurrent use.
type Generator struct {
	stations   []types.Station
	rng        *rand.Rand
	now        func() time.Time
	sharedDraw bool
}

type Option func(*Generator)

// WithRand sets the random source, e.g. a seeded PCG for reproducible events.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithClock sets the wall clock used for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSharedPollutantDraw controls whether PM2.5 and PM10 reuse one drawn value.
func WithSharedPollutantDraw(shared bool) Option {
	return func(g *Generator) { g.sharedDraw = shared }
}

// NewGenerator panics if stations is empty.
func NewGenerator(stations []types.Station, opts ...Option) *Generator {
	if len(stations) == 0 {
		panic("event: no stations")
	}
	g := &Generator{
		stations:   append([]types.Station(nil), stations...),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:        time.Now,
		sharedDraw: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next draws, in order: station, PM value, PM10 value (independent mode only), humidity.
func (g *Generator) Next() types.Event {
	ts := g.now().Unix()
	station := g.stations[g.rng.IntN(len(g.stations))]

	pm25 := g.uniform(PollutantMin, PollutantMax)
	pm10 := pm25
	if !g.sharedDraw {
		pm10 = g.uniform(PollutantMin, PollutantMax)
	}
	humidity := g.uniform(HumidityMin, HumidityMax)

	return types.Event{
		types.TopicPM25:     {Timestamp: ts, Value: pm25, Station: station},
		types.TopicPM10:     {Timestamp: ts, Value: pm10, Station: station},
		types.TopicHumidity: {Timestamp: ts, Value: humidity, Station: station},
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	// The conversion rounds the product before the add, so no platform fuses it.
	v := lo + float64(g.rng.Float64()*(hi-lo))
	// lo + f*(hi-lo) can round up to hi when f is just below 1.
	if v >= hi {
		return math.Nextafter(hi, lo)
	}
	return v
}
