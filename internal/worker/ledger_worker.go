package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// LedgerWriter persists ledger rows.
type LedgerWriter interface {
	BulkInsert(ctx context.Context, entries []model.LedgerEntry) error
	Insert(ctx context.Context, e model.LedgerEntry) error
}

// LedgerWorker drains the attempt ledger queue into Postgres in batches.
type LedgerWorker struct {
	writer LedgerWriter
	rdb    *redis.Client
	log    zerolog.Logger

	requeueBackoff time.Duration
}

func NewLedgerWorker(writer LedgerWriter, rdb *redis.Client, log zerolog.Logger) *LedgerWorker {
	return &LedgerWorker{
		writer:         writer,
		rdb:            rdb,
		log:            log.With().Str("component", "ledger_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *LedgerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LedgerWorker started")

	buffer := make([]model.LedgerEntry, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var entry model.LedgerEntry
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed ledger entry")
			continue
		}
		buffer = append(buffer, entry)
	}
}

// flushSafe tries a bulk copy, then row-by-row inserts, then requeues
// whatever still failed for a reason other than bad data.
func (w *LedgerWorker) flushSafe(ctx context.Context, batch []model.LedgerEntry) {
	if err := w.writer.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		if retry := w.fallbackInsert(ctx, batch); len(retry) > 0 {
			w.requeue(ctx, retry)
		}
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Ledger batch persisted")
}

// fallbackInsert returns the entries worth retrying later.
func (w *LedgerWorker) fallbackInsert(ctx context.Context, batch []model.LedgerEntry) []model.LedgerEntry {
	var retry []model.LedgerEntry
	for _, e := range batch {
		err := w.writer.Insert(ctx, e)
		if err == nil {
			continue
		}
		if isDataError(err) {
			w.log.Error().Err(err).
				Str("entry_id", e.ID.String()).
				Str("session_id", e.SessionID.String()).
				Msg("Dropping ledger entry rejected by the database")
			continue
		}
		w.log.Error().Err(err).Str("entry_id", e.ID.String()).Msg("Insert failed, requeueing")
		retry = append(retry, e)
	}
	return retry
}

func (w *LedgerWorker) requeue(ctx context.Context, items []model.LedgerEntry) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue ledger entries. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed ledger entries")
	time.Sleep(w.requeueBackoff)
}

func (w *LedgerWorker) shutdown(buffer []model.LedgerEntry) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
}

// isDataError reports whether Postgres rejected the row itself
// (integrity constraint or data exception), in which case retrying is
// pointless.
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		return true
	}
	return false
}
