package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/nmathey/finahack/internal/metrics"
	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	apperrors "github.com/nmathey/finahack/internal/shared/errors"
	"github.com/nmathey/finahack/pkg/logger"
)

// Result describes a completed refresh.
type Result struct {
	SyncID      string    `json:"sync_id"`
	Assets      int       `json:"assets"`
	SnapshotID  uuid.UUID `json:"snapshot_id"`
	Pruned      int64     `json:"pruned"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Shared      bool      `json:"shared"`
}

// Service keeps the asset cache and snapshot history in step with the remote API
type Service struct {
	config     *Config
	provider   HoldingsProvider
	cache      CacheStore
	history    HistoryStore
	reconciler *holdings.Reconciler
	logger     *logger.Logger

	group singleflight.Group
	// mu serializes cache read-modify-write sequences
	mu  sync.Mutex
	now func() time.Time

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewService creates a new sync service
func NewService(
	config *Config,
	provider HoldingsProvider,
	cache CacheStore,
	historyStore HistoryStore,
	log *logger.Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()

	key := holdings.LegacyKey
	if config.StrictKeys {
		key = holdings.StrictKey
	}

	return &Service{
		config:     config,
		provider:   provider,
		cache:      cache,
		history:    historyStore,
		reconciler: holdings.NewReconciler(key),
		logger:     log.WithField("service", "sync"),
		now:        time.Now,
	}
}

// SetClock replaces the time source (useful for testing)
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run refreshes immediately, then on every poll interval until ctx is done
// or Stop is called.
func (s *Service) Run(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("sync service is disabled")
		return
	}

	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.runMu.Unlock()

	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
		close(doneCh)
	}()

	s.logger.Info("starting sync service", "poll_interval", s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.refreshInBackground(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopping (context done)")
			return
		case <-stopCh:
			s.logger.Info("sync service stopping (stop signal)")
			return
		case <-ticker.C:
			s.refreshInBackground(ctx)
		}
	}
}

// Stop stops Run and waits for it to return
func (s *Service) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.runMu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Service) refreshInBackground(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// Refresh fetches holdings, reconciles them with the cache, saves the cache and
// records a snapshot. Concurrent callers share the in-flight refresh.
//
// When the provider fails the cache and history are left untouched.
func (s *Service) Refresh(ctx context.Context) (*Result, error) {
	v, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if shared {
		metrics.SyncTotal.WithLabelValues("shared").Inc()
	}
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	res.Shared = shared
	return &res, nil
}

func (s *Service) refresh(ctx context.Context) (*Result, error) {
	syncID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.SyncIDKey, syncID)
	log := s.logger.WithContext(ctx)
	start := time.Now()

	fresh, err := s.provider.FetchAssets(ctx)
	if err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		log.Error("holdings fetch failed", "error", err)
		return nil, userFacing(err, "Could not refresh holdings from Finary")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.cache.Load(ctx)
	if err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		log.Error("cache load failed", "error", err)
		return nil, apperrors.Storage("Could not read the local asset cache", err)
	}
	if previous == nil {
		previous = &holdings.Cache{}
	}

	merged := s.reconciler.Merge(previous.Assets, fresh)
	now := s.now().UTC()

	if err := s.cache.Save(ctx, &holdings.Cache{Assets: merged, LastRefresh: now}); err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		log.Error("cache save failed", "error", err)
		return nil, apperrors.Storage("Could not save the local asset cache", err)
	}

	res := &Result{SyncID: syncID, Assets: len(merged), RefreshedAt: now}

	snap := history.NewSnapshot(now, merged)
	if err := s.history.Append(ctx, snap); err != nil {
		log.Error("snapshot append failed", "error", err)
	} else {
		res.SnapshotID = snap.ID
	}

	pruned, err := s.history.DeleteBefore(ctx, history.Cutoff(now, s.config.Retention))
	if err != nil {
		log.Warn("snapshot prune failed", "error", err)
	} else if pruned > 0 {
		metrics.SnapshotsPruned.Add(float64(pruned))
		res.Pruned = pruned
	}

	observeCache(merged)
	metrics.SyncTotal.WithLabelValues("success").Inc()
	metrics.SyncDuration.Observe(time.Since(start).Seconds())

	log.WithDuration(time.Since(start)).Info("holdings refreshed",
		"fetched", len(fresh),
		"cached", len(merged),
		"previous", len(previous.Assets),
		"pruned", pruned,
	)
	return res, nil
}

// Assets returns the current cache.
func (s *Service) Assets(ctx context.Context) (*holdings.Cache, error) {
	cache, err := s.cache.Load(ctx)
	if err != nil {
		return nil, apperrors.Storage("Could not read the local asset cache", err)
	}
	return cache, nil
}

// Annotate edits the annotations of every cached asset with the given key.
func (s *Service) Annotate(ctx context.Context, key string, note holdings.Annotation) (*holdings.Cache, error) {
	if key == "" {
		return nil, apperrors.Validation("asset key is required")
	}
	if note.MyAssetType == nil && note.VirtualEnvelop == nil {
		return nil, apperrors.Validation("nothing to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.cache.Load(ctx)
	if err != nil {
		return nil, apperrors.Storage("Could not read the local asset cache", err)
	}

	assets, n := s.reconciler.Annotate(cache.Assets, key, note)
	if n == 0 {
		return nil, apperrors.NotFound("asset " + key)
	}

	updated := &holdings.Cache{Assets: assets, LastRefresh: cache.LastRefresh}
	if err := s.cache.Save(ctx, updated); err != nil {
		return nil, apperrors.Storage("Could not save the local asset cache", err)
	}
	s.logger.Info("asset annotated", "key", key, "matched", n)
	return updated, nil
}

// ImportAnnotations copies non-empty annotations from records (typically read
// back from a CSV export) onto cached assets with the same reconciliation key. It returns the
// number of cached assets changed.
func (s *Service) ImportAnnotations(ctx context.Context, records []holdings.NormalizedAsset) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.cache.Load(ctx)
	if err != nil {
		return 0, apperrors.Storage("Could not read the local asset cache", err)
	}

	assets := cache.Assets
	changed := 0
	for _, r := range records {
		note := holdings.Annotation{}
		if r.MyAssetType != "" {
			note.MyAssetType = &r.MyAssetType
		}
		if r.VirtualEnvelop != "" {
			note.VirtualEnvelop = &r.VirtualEnvelop
		}
		if note.MyAssetType == nil && note.VirtualEnvelop == nil {
			continue
		}
		var n int
		assets, n = s.reconciler.Annotate(assets, s.reconciler.Key(r), note)
		changed += n
	}

	if changed == 0 {
		return 0, nil
	}
	if err := s.cache.Save(ctx, &holdings.Cache{Assets: assets, LastRefresh: cache.LastRefresh}); err != nil {
		return 0, apperrors.Storage("Could not save the local asset cache", err)
	}
	s.logger.Info("annotations imported", "records", len(records), "changed", changed)
	return changed, nil
}

// Movers computes top movers over r from the stored history.
func (s *Service) Movers(ctx context.Context, r history.Range) (*history.Report, error) {
	snapshots, err := s.history.List(ctx)
	if err != nil {
		return nil, apperrors.Storage("Could not read the snapshot history", err)
	}

	report, err := history.Delta(snapshots, r, s.now().UTC(), s.reconciler.KeyFunc())
	if errors.Is(err, history.ErrInsufficientData) {
		return nil, apperrors.InsufficientData("Not enough history yet: sync at least twice", err)
	}
	if err != nil {
		return nil, apperrors.Internal("Could not compute top movers", err)
	}
	return report, nil
}

// userFacing keeps an AppError raised below and wraps anything else.
func userFacing(err error, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Upstream("Holdings refresh was interrupted", err)
	}
	return apperrors.Upstream(message, err)
}

func observeCache(assets []holdings.NormalizedAsset) {
	totals := map[holdings.Category]decimal.Decimal{}
	for _, a := range assets {
		totals[a.Category] = totals[a.Category].Add(a.Value())
	}

	metrics.CachedAssets.Set(float64(len(assets)))
	metrics.CachedValue.Reset()
	for category, total := range totals {
		metrics.CachedValue.WithLabelValues(string(category)).Set(total.InexactFloat64())
	}
}
