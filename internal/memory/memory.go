package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxMessages    = 200
	DefaultMaxSizeBytes   = 256 * 1024
	DefaultBatchSaveDelay = 2 * time.Second
	DefaultMaxBatchSize   = 10

	defaultRetryInitialInterval = 300 * time.Millisecond
	defaultRetryMaxAttempts     = 4 // one initial attempt plus three retries
	defaultScoreConcurrency     = 4
)

// ErrNilStore indicates a Memory was constructed without a snapshot store.
var ErrNilStore = errors.New("memory: nil snapshot store")

// Config controls a Memory instance.
type Config struct {
	// SessionID is the initially active session. A fresh UUID is generated
	// when empty.
	SessionID string

	// MaxMessages caps the buffer length; exceeding it triggers pruning.
	// Default: 200.
	MaxMessages int

	// MaxSizeBytes is the estimated-byte threshold that triggers a pruning
	// pass before an append. Pruning targets the message count, so this is
	// a trigger, not a strict bound. Default: 256 KiB.
	MaxSizeBytes int

	// BatchSaveDelay is the debounce window for coalescing durable writes.
	// Default: 2s.
	BatchSaveDelay time.Duration

	// MaxBatchSize is the pending-marker count that forces an immediate
	// flush, bypassing the debounce timer. Default: 10.
	MaxBatchSize int

	// RetryInitialInterval is the first backoff delay for failed durable
	// writes; it doubles each retry. Default: 300ms.
	RetryInitialInterval time.Duration

	// RetryMaxAttempts is the total number of save attempts, including the
	// first. Default: 4.
	RetryMaxAttempts uint

	// ScoreConcurrency bounds concurrent scoring calls during pruning and
	// relevance reads. Default: 4.
	ScoreConcurrency int

	// Logger receives degradation warnings and flush errors. Defaults to a
	// discard logger.
	Logger *slog.Logger

	// Metrics is the collector set. Defaults to a fresh, unregistered set.
	Metrics *Metrics

	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.BatchSaveDelay <= 0 {
		c.BatchSaveDelay = DefaultBatchSaveDelay
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = defaultRetryInitialInterval
	}
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.ScoreConcurrency <= 0 {
		c.ScoreConcurrency = defaultScoreConcurrency
	}
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Memory is the hybrid conversation store for one active session: an
// in-process buffer mirrored asynchronously to a durable snapshot store,
// kept within size limits by relevance-based pruning.
//
// The buffer is the source of truth for reads; durable state may lag behind
// it by up to the debounce window plus retry time. All failures of the
// durable store and the embedding capability are absorbed internally and
// surfaced only through logs and metrics.
type Memory struct {
	cfg     Config
	store   SnapshotStore
	scorer  Scorer
	logger  *slog.Logger
	metrics *Metrics
	sched   *batchScheduler
	buf     *Buffer

	mu sync.Mutex // serializes mutating operations

	sessMu  sync.RWMutex
	session string
}

// New creates a Memory backed by store, scoring with scorer (lexical
// fallback when nil). If the store is reachable, the active session's
// snapshot is loaded into the buffer; load failures leave it empty.
func New(ctx context.Context, store SnapshotStore, scorer Scorer, cfg Config) (*Memory, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	cfg = cfg.withDefaults()

	m := &Memory{
		cfg:     cfg,
		store:   store,
		scorer:  scorer,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		buf:     NewBuffer(),
		session: cfg.SessionID,
	}
	m.sched = newBatchScheduler(cfg.BatchSaveDelay, cfg.MaxBatchSize, m.persist, cfg.Logger, cfg.Metrics, cfg.Now)

	m.loadSession(ctx, cfg.SessionID)
	return m, nil
}

// SessionID returns the currently active session identifier.
func (m *Memory) SessionID() string {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	return m.session
}

func (m *Memory) setSession(id string) {
	m.sessMu.Lock()
	m.session = id
	m.sessMu.Unlock()
}

// AddMessage appends msg to the buffer, assigning a timestamp when the
// caller left it zero. When the buffer's estimated byte size or message
// count would exceed the configured caps, the least relevant messages
// relative to reference are evicted first. A durable write is scheduled;
// persistence failures never surface here.
func (m *Memory) AddMessage(ctx context.Context, msg Message, reference string) {
	if msg.Timestamp == 0 {
		msg.Timestamp = m.cfg.Now().UnixMilli()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Byte trigger: prune before appending. This only initiates a pruning
	// pass; when the count is still under cap, nothing is evicted and the
	// byte cap can remain exceeded.
	if m.buf.Size()+EstimateSize(msg) > m.cfg.MaxSizeBytes {
		m.prune(ctx, reference)
	}

	m.buf.Append(msg)

	// Count trigger: prune after appending.
	if m.buf.Len() > m.cfg.MaxMessages {
		m.prune(ctx, reference)
	}

	m.sched.Enqueue(markerAdd, 1)
	m.metrics.observeBuffer(m.buf)
}

// prune evicts the lowest-scoring messages until the buffer is back under
// MaxMessages, keeping survivors in their original order. Ties evict the
// earlier-inserted message first (stable sort on score alone). Returns the
// number of evicted messages. Caller must hold m.mu.
func (m *Memory) prune(ctx context.Context, reference string) int {
	msgs := m.buf.All()
	toRemove := len(msgs) - m.cfg.MaxMessages
	if toRemove <= 0 {
		return 0
	}

	scores := m.scoreAll(ctx, msgs, reference)

	order := make([]int, len(msgs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] < scores[order[j]]
	})

	evict := make([]bool, len(msgs))
	for _, idx := range order[:toRemove] {
		evict[idx] = true
	}

	kept := make([]Message, 0, len(msgs)-toRemove)
	for i := range msgs {
		if !evict[i] {
			kept = append(kept, msgs[i])
		}
	}
	m.buf.Replace(kept)

	m.metrics.PrunedMessages.Add(float64(toRemove))
	m.logger.Debug("pruned messages", "session", m.SessionID(), "removed", toRemove, "kept", len(kept))
	m.sched.Enqueue(markerPrune, toRemove)
	return toRemove
}

// scoreAll scores every message against reference. Calls run concurrently
// up to ScoreConcurrency; scoring order has no effect on the result.
func (m *Memory) scoreAll(ctx context.Context, msgs []Message, reference string) []float64 {
	scores := make([]float64, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ScoreConcurrency)
	for i := range msgs {
		g.Go(func() error {
			scores[i] = m.scorer.Score(gctx, msgs[i].Text, reference)
			return nil
		})
	}
	_ = g.Wait() // scorers degrade internally and never return errors

	return scores
}

// GetRelevantContext returns buffered messages ordered most-relevant-first
// against query, greedily packed under maxBytes of estimated size. Packing
// stops at the first message that would overflow the budget; later,
// lower-relevance messages are omitted, not truncated. A maxBytes of zero
// or less means no byte budget.
func (m *Memory) GetRelevantContext(ctx context.Context, query string, maxBytes int) []Message {
	msgs := m.buf.All()
	if len(msgs) == 0 {
		return nil
	}

	scores := m.scoreAll(ctx, msgs, query)

	order := make([]int, len(msgs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	var (
		out  []Message
		used int
	)
	for _, idx := range order {
		sz := EstimateSize(msgs[idx])
		if maxBytes > 0 && used+sz > maxBytes {
			break
		}
		out = append(out, msgs[idx])
		used += sz
	}
	return out
}

// GetAllMessages returns a copy of the full ordered buffer contents.
func (m *Memory) GetAllMessages() []Message {
	return m.buf.All()
}

// SwitchSession flushes pending writes for the current session, clears the
// buffer, and loads the new session's snapshot when the store is reachable.
// Identical ids are a no-op. The returned error reports only context
// cancellation; store failures degrade to an empty buffer.
func (m *Memory) SwitchSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == m.SessionID() {
		return nil
	}

	if err := m.sched.ForceFlush(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Persist failures are already logged by the save path; the old
		// session's durable state stays stale.
	}

	m.buf.Replace(nil)
	m.setSession(sessionID)
	m.loadSession(ctx, sessionID)
	m.metrics.observeBuffer(m.buf)
	return nil
}

// loadSession fills the buffer from the durable snapshot for sessionID.
// Unreachable store or load failure leaves the buffer empty.
func (m *Memory) loadSession(ctx context.Context, sessionID string) {
	if !m.store.IsConnected(ctx) {
		m.logger.Warn("durable store unreachable, starting session with empty history", "session", sessionID)
		return
	}
	msgs, err := m.store.Load(ctx, sessionID)
	if err != nil {
		m.logger.Warn("loading session snapshot failed, starting with empty history", "session", sessionID, "error", err)
		return
	}
	m.buf.Replace(msgs)
}

// Flush cancels any armed debounce timer and forces an immediate durable
// write when anything is pending. Store failures are absorbed and logged;
// only context cancellation is returned.
func (m *Memory) Flush(ctx context.Context) error {
	if err := m.sched.ForceFlush(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return nil
}

// Close flushes pending writes. The buffer remains readable afterwards.
func (m *Memory) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// PendingWrites reports the number of queued pending-write markers.
func (m *Memory) PendingWrites() int {
	return m.sched.PendingMarkers()
}

// persist writes the current buffer contents as a full snapshot, retrying
// transient failures with exponential backoff. An unreachable store is a
// degraded-mode no-op: the buffer stays authoritative, just not durable.
func (m *Memory) persist(ctx context.Context) error {
	session := m.SessionID()

	if !m.store.IsConnected(ctx) {
		m.metrics.DegradedSaves.Inc()
		m.logger.Warn("durable store unreachable, keeping snapshot in memory only", "session", session)
		return nil
	}

	snap := Snapshot{
		SessionID:   session,
		Messages:    m.buf.All(),
		LastUpdated: m.cfg.Now(),
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.RetryInitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2

	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			return struct{}{}, m.store.Save(ctx, snap)
		},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(m.cfg.RetryMaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.metrics.SaveRetries.Inc()
			m.logger.Warn("snapshot save failed, retrying", "session", session, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		m.metrics.SaveFailures.Inc()
		return fmt.Errorf("memory: save snapshot for session %s: %w", session, err)
	}

	m.metrics.Saves.Inc()
	m.logger.Debug("snapshot saved", "session", session, "messages", len(snap.Messages))
	return nil
}
