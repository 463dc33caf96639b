package history

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/bars"
	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/timeframe"
)

// Ensurer is the optional remote hook asked to materialize the producer
// file before the local read. The producer HTTP client satisfies it.
type Ensurer interface {
	EnsureBars(ctx context.Context, symbol string, tf timeframe.Timeframe, start, end time.Time) error
}

// ParquetBackfill reads backfill bars from the producer's on-disk parquet
// tree, optionally asking the producer to materialize it first. The read
// itself stays consumer-only.
type ParquetBackfill struct {
	dataRoot string
	ensurer  Ensurer
}

// NewParquetBackfill builds the provider. ensurer may be nil for a pure
// disk read.
func NewParquetBackfill(dataRoot string, ensurer Ensurer) *ParquetBackfill {
	return &ParquetBackfill{dataRoot: dataRoot, ensurer: ensurer}
}

// FetchBars implements BackfillProvider.
func (p *ParquetBackfill) FetchBars(ctx context.Context, symbol, tf string, start, end time.Time) ([]domain.Bar, error) {
	parsed, err := timeframe.Parse(tf)
	if err != nil {
		return nil, err
	}
	if p.ensurer != nil {
		if err := p.ensurer.EnsureBars(ctx, symbol, parsed, start, end); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("producer ensure failed, reading what is on disk")
		}
	}
	path := bars.NewFetcher(p.dataRoot).ProducerPath(symbol, parsed)
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	rows, err := bars.ReadParquet(path)
	if err != nil {
		return nil, err
	}
	frame := &domain.BarFrame{Bars: rows}
	frame.SortAscending()
	return frame.Slice(start, end).Bars, nil
}
