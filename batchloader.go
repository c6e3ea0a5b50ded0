package permitloader

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// DefaultChunkSize is the number of rows inserted at once by default.
const DefaultChunkSize = 75000

var errInvalidChunkSize = errors.New("chunk size must be positive")

// LoadStats summarizes a load.
type LoadStats struct {
	Rows   int
	Chunks int
}

// BatchLoader inserts batches in fixed-size chunks, one after another.
type BatchLoader struct {
	Warehouse Warehouse
	ChunkSize int
}

// Load inserts every row of b into t in source order.
// An insert failure stops the load and is returned as a *LoadError; chunks
// inserted before it are kept.
func (l *BatchLoader) Load(ctx context.Context, t TableRef, c *Contract, b *Batch) (LoadStats, error) {
	if l.ChunkSize <= 0 {
		return LoadStats{}, errInvalidChunkSize
	}

	lg := log.Ctx(ctx)
	stats := LoadStats{}

	for i, chunk := range b.Chunks(l.ChunkSize) {
		if err := l.Warehouse.Insert(ctx, t, c, b.Columns, chunk); err != nil {
			return stats, &LoadError{Table: t, Chunk: i, Offset: stats.Rows, Err: err}
		}

		stats.Rows += len(chunk)
		stats.Chunks++

		lg.Debug().Str("table", t.String()).Int("chunk", i).Int("rows", len(chunk)).
			Int("total", stats.Rows).Msg("chunk inserted")
	}

	return stats, nil
}
