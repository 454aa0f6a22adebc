package source

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
)

// ErrAllRegionsFailed is returned when no region answered, even after the
// scheme fallback.
var ErrAllRegionsFailed = errors.New("all region requests failed")

// Regions fans out one get_strikes_grid request per continent and
// concatenates the results in region order. A failing region contributes
// nothing; the remaining regions still make up the batch.
type Regions struct {
	caller      Caller
	fallback    Caller
	regions     []domain.Region
	params      GridParams
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewRegions creates a fan-out source. fallback may be nil; when set, the whole
// fan-out is re-issued through it once if the combined primary result is empty.
func NewRegions(caller, fallback Caller, regions []domain.Region, params GridParams, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Regions {
	if concurrency <= 0 {
		concurrency = len(regions)
	}
	return &Regions{
		caller:      caller,
		fallback:    fallback,
		regions:     regions,
		params:      params,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

func (r *Regions) Name() string { return "regions" }

func (r *Regions) Initial(ctx context.Context) (domain.Batch, error) {
	batch, failed, err := r.fanOut(ctx, r.caller)
	if err != nil {
		return domain.Batch{}, err
	}

	if len(batch.Strikes) == 0 && r.fallback != nil {
		r.metrics.SchemeFallbacks.Inc()
		r.logger.Info("empty fan-out result, retrying over https", "failed_regions", failed)
		retry, retryFailed, err := r.fanOut(ctx, r.fallback)
		if err != nil {
			return domain.Batch{}, err
		}
		// The primary result stands unless the retry reached at least one region.
		if retryFailed < len(r.regions) {
			batch, failed = retry, retryFailed
		}
	}

	if failed == len(r.regions) {
		return domain.Batch{}, ErrAllRegionsFailed
	}
	return batch, nil
}

// Incremental is a full fetch; grids have no cursor to resume from.
func (r *Regions) Incremental(ctx context.Context, _ domain.Cursor) (domain.Batch, error) {
	return r.Initial(ctx)
}

// fanOut requests every region in parallel and merges the successful results.
// It only fails when ctx is done.
func (r *Regions) fanOut(ctx context.Context, c Caller) (domain.Batch, int, error) {
	results := make([]*domain.Batch, len(r.regions))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, region := range r.regions {
		g.Go(func() error {
			b, err := fetchGrid(ctx, c, region, r.params)
			if err != nil {
				r.metrics.RegionFailures.WithLabelValues(region.String()).Inc()
				r.logger.Warn("region fetch failed", "region", region.String(), "error", err)
				return nil
			}
			results[i] = &b
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Batch{}, 0, err
	}

	merged := domain.Batch{Method: domain.MethodStrikesGrid}
	failed := 0
	for _, b := range results {
		if b == nil {
			failed++
			continue
		}
		merged.Strikes = append(merged.Strikes, b.Strikes...)
		merged.Skipped += b.Skipped
		if b.ReferenceTime.After(merged.ReferenceTime) {
			merged.ReferenceTime = b.ReferenceTime
		}
	}
	return merged, failed, nil
}
