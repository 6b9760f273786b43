package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"castwatch/internal/metrics"
	"castwatch/internal/model"
)

// Source is one contract address and the signature topics fetched from it.
type Source struct {
	Address common.Address
	Topics  []common.Hash
}

// Handler decodes one event type and persists it.
type Handler func(ctx context.Context, log types.Log) error

// HandlerTable maps signature topics to handlers.
type HandlerTable map[common.Hash]Handler

// CursorStore persists watcher progress.
type CursorStore interface {
	LoadCursor(ctx context.Context, id string) (model.Cursor, bool, error)
	SaveCursor(ctx context.Context, id string, lastProcessed uint64, chunkSize *uint64) error
}

// LogSource reads the chain head and filtered logs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error)
}

// Config parameterizes one watcher identity.
type Config struct {
	ID          string
	StartBlock  uint64
	Interval    time.Duration
	Bounds      Bounds
	HeadRefresh int
}

// Watcher tails a set of contract sources and routes their logs through a
// handler table. One Watcher owns one cursor identity; running two instances
// against the same identity races cursor writes and must be prevented
// operationally.
type Watcher struct {
	cfg     Config
	chain   LogSource
	cursors CursorStore
	sources []Source
	table   HandlerTable
	idle    []func(context.Context) error
	logger  *zap.Logger
}

// New builds a Watcher. Idle hooks run once per tick after the watcher has
// caught up to the head.
func New(
	cfg Config,
	chain LogSource,
	cursors CursorStore,
	sources []Source,
	table HandlerTable,
	logger *zap.Logger,
	idleHooks ...func(context.Context) error,
) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		cfg:     cfg,
		chain:   chain,
		cursors: cursors,
		sources: sources,
		table:   table,
		idle:    idleHooks,
		logger:  logger.With(zap.String("watcher", cfg.ID)),
	}
}

// Run executes the watch loop until the context is canceled. Routine fetch,
// decode, and persistence failures are retried with backoff; only startup
// problems (no cursor access, unreachable RPC) are returned.
func (w *Watcher) Run(ctx context.Context) error {
	if w.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if w.cursors == nil {
		return fmt.Errorf("cursor store is nil")
	}
	if len(w.sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if len(w.table) == 0 {
		return fmt.Errorf("handler table is empty")
	}
	if w.cfg.StartBlock == 0 {
		return fmt.Errorf("start block must be positive")
	}

	cur, found, err := w.cursors.LoadCursor(ctx, w.cfg.ID)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !found {
		cur = model.Cursor{
			ID:            w.cfg.ID,
			LastProcessed: w.cfg.StartBlock - 1,
			ChunkSize:     w.cfg.Bounds.Initial,
		}
		chunk := cur.ChunkSize
		if err := w.cursors.SaveCursor(ctx, w.cfg.ID, cur.LastProcessed, &chunk); err != nil {
			return fmt.Errorf("init cursor: %w", err)
		}
		w.logger.Info("cursor initialized",
			zap.Uint64("last_processed", cur.LastProcessed), zap.Uint64("chunk", cur.ChunkSize))
	} else {
		w.logger.Info("cursor resumed",
			zap.Uint64("last_processed", cur.LastProcessed), zap.Uint64("chunk", cur.ChunkSize))
	}

	head, err := w.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("initial head: %w", err)
	}

	planner := NewPlanner(cur.LastProcessed+1, cur.ChunkSize, head, w.cfg.Bounds, w.cfg.HeadRefresh)
	metrics.HeadBlock.WithLabelValues(w.cfg.ID).Set(float64(head))
	metrics.CursorBlock.WithLabelValues(w.cfg.ID).Set(float64(cur.LastProcessed))
	metrics.ChunkSize.WithLabelValues(w.cfg.ID).Set(float64(planner.Chunk()))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.drain(ctx, planner); err != nil {
			return err
		}

		for _, hook := range w.idle {
			if err := hook(ctx); err != nil {
				w.logger.Error("idle hook failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain processes ranges until the planner reports caught-up. The dedup set
// lives for one drain pass only; idempotent sinks are the real correctness
// mechanism.
func (w *Watcher) drain(ctx context.Context, p *Planner) error {
	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.NeedsRefresh() {
			if head, err := w.chain.LatestBlockNumber(ctx); err != nil {
				w.logger.Warn("head refresh failed", zap.Error(err))
			} else {
				p.SetHead(head)
				metrics.HeadBlock.WithLabelValues(w.cfg.ID).Set(float64(head))
			}
		}

		rng, ok := p.Next()
		if !ok {
			w.logger.Debug("caught up", zap.Uint64("head", p.Head()))
			return nil
		}

		w.logger.Info("processing range",
			zap.Uint64("from", rng.From), zap.Uint64("to", rng.To), zap.Uint64("chunk", p.Chunk()))

		if err := w.processRange(ctx, rng, seen); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			chunk, shrank := p.Fail()
			metrics.RangesProcessed.WithLabelValues(w.cfg.ID, "failed").Inc()
			metrics.ChunkSize.WithLabelValues(w.cfg.ID).Set(float64(chunk))
			w.logger.Error("range failed",
				zap.Uint64("from", rng.From), zap.Uint64("to", rng.To),
				zap.Uint64("chunk", chunk), zap.Int("failures", p.Failures()), zap.Error(err))
			if shrank {
				if saveErr := w.cursors.SaveCursor(ctx, w.cfg.ID, p.LastProcessed(), &chunk); saveErr != nil {
					w.logger.Error("save chunk after failure", zap.Error(saveErr))
				}
			}
			if err := w.sleep(ctx, p.Backoff()); err != nil {
				return err
			}
			continue
		}

		chunk, grew := p.Advance(rng.To)
		var chunkPtr *uint64
		if grew {
			chunkPtr = &chunk
		}
		// A failed cursor save is not fatal: the sinks are idempotent, so a
		// lagging watermark only means replay after restart. The next
		// successful range rewrites it.
		if err := w.cursors.SaveCursor(ctx, w.cfg.ID, rng.To, chunkPtr); err != nil {
			w.logger.Error("save cursor", zap.Uint64("to", rng.To), zap.Error(err))
		}
		metrics.RangesProcessed.WithLabelValues(w.cfg.ID, "ok").Inc()
		metrics.CursorBlock.WithLabelValues(w.cfg.ID).Set(float64(rng.To))
		metrics.ChunkSize.WithLabelValues(w.cfg.ID).Set(float64(chunk))
	}
}

func (w *Watcher) processRange(ctx context.Context, rng Range, seen map[string]struct{}) error {
	var logs []types.Log
	for _, src := range w.sources {
		batch, err := w.chain.FilterLogs(ctx, rng.From, rng.To, []common.Address{src.Address}, src.Topics)
		if err != nil {
			return &TransientFetchError{From: rng.From, To: rng.To, Err: err}
		}
		logs = append(logs, batch...)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	handled := 0
	for _, log := range logs {
		key := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
		if _, dup := seen[key]; dup {
			continue
		}

		handler, ok := w.table[topic0(log)]
		if !ok {
			continue
		}

		if err := handler(ctx, log); err != nil {
			var decodeErr *DecodeError
			switch {
			case errors.Is(err, ErrReorgInvalidated):
				continue
			case errors.As(err, &decodeErr):
				metrics.DecodeFailures.WithLabelValues(w.cfg.ID).Inc()
				w.logger.Error("decode failed",
					zap.String("event", decodeErr.Event),
					zap.Uint64("block", decodeErr.Block),
					zap.String("tx_hash", decodeErr.TxHash),
					zap.Error(decodeErr.Err))
				continue
			default:
				return err
			}
		}

		seen[key] = struct{}{}
		handled++
	}

	if handled > 0 {
		w.logger.Info("events persisted",
			zap.Int("count", handled), zap.Uint64("from", rng.From), zap.Uint64("to", rng.To))
	}
	return nil
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func topic0(log types.Log) common.Hash {
	if len(log.Topics) == 0 {
		return common.Hash{}
	}
	return log.Topics[0]
}
