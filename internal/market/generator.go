package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/metrics"
)

const quotePrecision = 4

// GeneratorConfig bounds the synthetic price range
type GeneratorConfig struct {
	Min          float64
	Max          float64
	HistoryLimit int
}

// DefaultGeneratorConfig returns the [30, 40] range used by the simulator
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Min:          30,
		Max:          40,
		HistoryLimit: 100,
	}
}

// Generator manufactures bounded-random quotes and records them in a History
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	min     float64
	max     float64
	history *History
	now     func() time.Time
}

// NewGenerator creates a generator seeded from the wall clock
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	seed := uint64(time.Now().UnixNano())
	return NewGeneratorWithRand(cfg, rand.New(rand.NewPCG(seed, seed>>1)))
}

// NewGeneratorWithRand creates a generator with an explicit random source
func NewGeneratorWithRand(cfg GeneratorConfig, rng *rand.Rand) (*Generator, error) {
	if cfg.Max < cfg.Min {
		return nil, fmt.Errorf("invalid quote range: min %v > max %v", cfg.Min, cfg.Max)
	}
	return &Generator{
		rng:     rng,
		min:     cfg.Min,
		max:     cfg.Max,
		history: NewHistory(cfg.HistoryLimit),
		now:     time.Now,
	}, nil
}

// History exposes the generator's quote history
func (g *Generator) History() *History {
	return g.history
}

// Generate picks a random instrument, builds a quote for it and appends it to the history.
// It returns the instrument, the new quote and the instrument's history after the append.
func (g *Generator) Generate() (Instrument, Quote, []Quote) {
	g.mu.Lock()
	inst := instruments[g.rng.IntN(len(instruments))]
	samples := make([]float64, 4)
	for i := range samples {
		samples[i] = g.min + g.rng.Float64()*(g.max-g.min)
	}
	g.mu.Unlock()

	slices.Sort(samples)

	q := Quote{
		MinAmount: decimal.NewFromFloat(samples[0]).Round(quotePrecision),
		Bid:       decimal.NewFromFloat(samples[1]).Round(quotePrecision),
		Offer:     decimal.NewFromFloat(samples[2]).Round(quotePrecision),
		MaxAmount: decimal.NewFromFloat(samples[3]).Round(quotePrecision),
		Timestamp: g.now().UTC(),
	}

	return inst, q, g.history.Append(inst, q)
}

// Broadcaster fans a quote event out to interested sessions and reports how many were offered it
type Broadcaster interface {
	Broadcast(inst Instrument, quotes []Quote) int
}

// QuotePublisher forwards generated quotes to an external sink
type QuotePublisher interface {
	PublishQuote(ctx context.Context, inst Instrument, q Quote) error
}

// Scheduler drives quote generation on a single periodic timer
type Scheduler struct {
	generator *Generator
	target    Broadcaster
	publisher QuotePublisher
	interval  time.Duration
	log       zerolog.Logger
}

// NewScheduler creates a scheduler; publisher may be nil
func NewScheduler(generator *Generator, target Broadcaster, publisher QuotePublisher, interval time.Duration) *Scheduler {
	return &Scheduler{
		generator: generator,
		target:    target,
		publisher: publisher,
		interval:  interval,
		log:       log.With().Str("component", "quote_scheduler").Logger(),
	}
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("quote interval must be positive, got %s", s.interval)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("Quote scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Quote scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one generate-and-broadcast cycle
func (s *Scheduler) Tick(ctx context.Context) {
	inst, q, quotes := s.generator.Generate()
	metrics.RecordQuoteGenerated(string(inst))

	offered := s.target.Broadcast(inst, quotes)

	s.log.Debug().
		Str("instrument", string(inst)).
		Str("bid", q.Bid.String()).
		Str("offer", q.Offer.String()).
		Int("history_len", len(quotes)).
		Int("sessions", offered).
		Msg("Quote generated")

	if s.publisher != nil {
		if err := s.publisher.PublishQuote(ctx, inst, q); err != nil {
			s.log.Warn().Err(err).Str("instrument", string(inst)).Msg("Failed to publish quote")
		}
	}
}
