package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/studio-suggest/internal/lifecycle"
	"github.com/sells-group/studio-suggest/internal/model"
)

// Generator turns one signal into a suggestion.
type Generator interface {
	Generate(ctx context.Context, sig model.Signal) (*lifecycle.GenerateResult, error)
}

// Summary counts the outcome of a feed.
type Summary struct {
	Read       int               `json:"read"`
	Created    int               `json:"created"`
	Merged     int               `json:"merged"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Feeder passes signals to a Generator no faster than its limiter allows.
type Feeder struct {
	gen     Generator
	limiter *rate.Limiter
}

// NewFeeder creates a feeder. A non-positive ratePerSec disables
// throttling.
func NewFeeder(gen Generator, ratePerSec float64, burst int) *Feeder {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &Feeder{gen: gen, limiter: rate.NewLimiter(limit, burst)}
}

// Run consumes signals until the channel closes or ctx is cancelled.
// Generation failures are counted and do not stop the feed; a source error
// from errCh is returned along with the partial summary.
func (f *Feeder) Run(ctx context.Context, sigCh <-chan model.Signal, errCh <-chan error) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Errors: map[string]string{}}
	log := zap.L().With(zap.String("component", "ingest.feeder"))

	for sig := range sigCh {
		if err := f.limiter.Wait(ctx); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, eris.Wrap(err, "ingest: rate limit wait")
		}
		sum.Read++

		res, err := f.gen.Generate(ctx, sig)
		if err != nil {
			key := fmt.Sprintf("%d:%s/%s/%s", sum.Read, sig.SourceType, sig.SourceID, sig.SignalType)
			sum.Failed++
			sum.Errors[key] = err.Error()
			log.Warn("signal rejected", zap.String("key", key), zap.Error(err))
			continue
		}
		switch {
		case res.Duplicate:
			sum.Duplicates++
		case res.Created:
			sum.Created++
		default:
			sum.Merged++
		}
	}

	sum.Elapsed = time.Since(start)
	if errCh != nil {
		if err := <-errCh; err != nil {
			return sum, err
		}
	}

	log.Info("ingest complete",
		zap.Int("read", sum.Read),
		zap.Int("created", sum.Created),
		zap.Int("merged", sum.Merged),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}
