package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"barefoot_sync/internal/domain"
)

const (
	opGetAllProperty = "GetAllProperty"
	runLeaseKey      = "barefoot:sync:lease"
)

// fallbackOps are tried, in order, when GetAllProperty yields nothing.
var fallbackOps = []string{"GetProperty", "GetPropertyExt", "GetLastUpdatedProperty"}

type SyncOptions struct {
	Enrich        bool
	EnrichWorkers int
	RateWindow    time.Duration
	LeaseTTL      time.Duration
	Now           func() time.Time
	// Observe receives every finished run (metrics).
	Observe func(domain.SyncResult)
}

// SyncService drives sync runs: connect, fetch, normalize, reconcile each
// record against the store, then report. At most one run is active per
// process, and across processes when a RunLease is configured.
type SyncService struct {
	client domain.BarefootClient
	store  domain.PropertyStore
	cache  domain.Cache    // optional
	lease  domain.RunLease // optional
	norm   Normalizer
	images Normalizer
	opts   SyncOptions

	running atomic.Bool
}

func NewSyncService(c domain.BarefootClient, s domain.PropertyStore, cache domain.Cache, lease domain.RunLease, opts SyncOptions) *SyncService {
	if opts.EnrichWorkers <= 0 {
		opts.EnrichWorkers = 3
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = 365 * 24 * time.Hour
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncService{
		client: c,
		store:  s,
		cache:  cache,
		lease:  lease,
		norm:   NewNormalizer(),
		images: NewNormalizer("Property.PropertyImg", "ImageInfo", "PropertyImg", "Info"),
		opts:   opts,
	}
}

// TriggerSync runs one full sync. It always returns a result; failures are
// reported in it rather than returned.
func (s *SyncService) TriggerSync(ctx context.Context) domain.SyncResult {
	rep := NewReporter(uuid.NewString(), s.opts.Now)
	logger := log.With().Str("run_id", rep.runID).Logger()

	release, ok := s.acquire(ctx, logger)
	if !ok {
		res := rep.Fail(domain.StateRejected, domain.ErrRunInProgress.Error())
		logger.Warn().Msg("sync rejected, another run holds the lease")
		s.observe(res)
		return res
	}
	defer release()

	logger.Info().Msg("sync started")
	res := s.run(ctx, rep, logger)
	s.finish(ctx, res, logger)
	return res
}

func (s *SyncService) run(ctx context.Context, rep *Reporter, logger zerolog.Logger) domain.SyncResult {
	rep.Transition(domain.StateConnecting)
	if err := s.client.Connect(ctx); err != nil {
		return rep.Fail(domain.StateConnectionFailed, "Failed to connect to Barefoot API: "+err.Error())
	}

	records, err := s.fetch(ctx, rep, logger)
	if err != nil {
		return rep.Fail(domain.StateFetchFailed, "Failed to fetch properties: "+err.Error())
	}
	rep.Fetched(len(records))

	rep.Transition(domain.StateReconciling)
	var touched []domain.LocalProperty
	for i, rec := range records {
		if ctx.Err() != nil {
			logger.Warn().Int("processed", i).Int("total", len(records)).Msg("sync cancelled")
			return rep.Cancel()
		}
		lp, err := s.reconcile(ctx, rec, rep)
		if err != nil {
			msg := recordErrorMessage(i, err)
			rep.AddError(msg)
			logger.Warn().Err(err).Str("remote_id", remoteIDOf(err)).Msg("record failed")
			continue
		}
		touched = append(touched, lp)
	}

	if s.opts.Enrich && len(touched) > 0 {
		s.enrich(ctx, touched, logger)
	}
	s.invalidate(ctx, touched)
	return rep.Freeze()
}

// fetch calls GetAllProperty and, when it yields nothing, the fallback
// operations, merging their records by remote id.
func (s *SyncService) fetch(ctx context.Context, rep *Reporter, logger zerolog.Logger) ([]Record, error) {
	rep.Transition(domain.StateFetching)
	reply, err := s.client.FetchProperties(ctx, opGetAllProperty)
	if err != nil {
		return nil, err
	}
	rep.Transition(domain.StateNormalizing)
	records, err := s.norm.Normalize(reply)
	if err != nil {
		// unrecognized shape counts as no data
		logger.Warn().Err(err).Str("op", opGetAllProperty).Msg("normalization gap")
	}
	if len(records) > 0 {
		return records, nil
	}

	seen := map[string]struct{}{}
	var merged []Record
	for _, op := range fallbackOps {
		if ctx.Err() != nil {
			break
		}
		rep.Transition(domain.StateFetching)
		reply, err := s.client.FetchProperties(ctx, op)
		if err != nil {
			logger.Info().Err(err).Str("op", op).Msg("fallback operation skipped")
			continue
		}
		rep.Transition(domain.StateNormalizing)
		recs, err := s.norm.Normalize(reply)
		if err != nil {
			logger.Warn().Err(err).Str("op", op).Msg("normalization gap")
			continue
		}
		for _, r := range recs {
			id := deref(firstString(r, propertyAliases, "remote_id"))
			if id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			merged = append(merged, r)
		}
		logger.Debug().Str("op", op).Int("records", len(recs)).Msg("fallback operation returned records")
	}
	return merged, nil
}

// reconcile maps one record and creates or updates its local entity.
func (s *SyncService) reconcile(ctx context.Context, rec Record, rep *Reporter) (domain.LocalProperty, error) {
	p, err := MapProperty(rec)
	if err != nil {
		return domain.LocalProperty{}, err
	}

	existing, err := s.store.FindByRemoteID(ctx, p.RemoteID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		lp, err := s.store.Create(ctx, p)
		if err != nil {
			return domain.LocalProperty{}, domain.RecordErr(domain.KindPersistence, p.RemoteID, err)
		}
		rep.Created()
		return lp, nil
	case err != nil:
		return domain.LocalProperty{}, domain.RecordErr(domain.KindPersistence, p.RemoteID, err)
	case existing.Checksum == p.Checksum && existing.PublishState == domain.StatusPublish:
		rep.Unchanged()
		return existing, nil
	}

	lp, err := s.store.Update(ctx, existing, p)
	if err != nil {
		return domain.LocalProperty{}, domain.RecordErr(domain.KindPersistence, p.RemoteID, err)
	}
	rep.Updated()
	return lp, nil
}

// enrich fetches images, rates and availability for each property. It is
// best effort: failures are logged and never affect the run result.
func (s *SyncService) enrich(ctx context.Context, props []domain.LocalProperty, logger zerolog.Logger) {
	from := s.opts.Now()
	to := from.Add(s.opts.RateWindow)

	var g errgroup.Group
	g.SetLimit(s.opts.EnrichWorkers)
	for _, lp := range props {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			l := logger.With().Str("remote_id", lp.RemoteID).Int64("property_id", lp.ID).Logger()
			if err := s.syncImages(ctx, lp); err != nil {
				l.Warn().Err(err).Msg("image sync failed")
			}
			if reply, err := s.client.GetPropertyRates(ctx, lp.RemoteID, from, to); err != nil {
				l.Debug().Err(err).Msg("rates unavailable")
			} else if err := s.saveSnapshot(ctx, reply, lp.ID, s.store.SaveRates); err != nil {
				l.Warn().Err(err).Msg("rates not saved")
			}
			if reply, err := s.client.GetPropertyBookingDates(ctx, lp.RemoteID, from, to); err != nil {
				l.Debug().Err(err).Msg("availability unavailable")
			} else if err := s.saveSnapshot(ctx, reply, lp.ID, s.store.SaveAvailability); err != nil {
				l.Warn().Err(err).Msg("availability not saved")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *SyncService) syncImages(ctx context.Context, lp domain.LocalProperty) error {
	reply, err := s.client.GetPropertyImages(ctx, lp.RemoteID)
	if err != nil {
		return err
	}
	recs, err := s.images.Normalize(reply)
	if err != nil {
		return err
	}
	imgs := MapImages(recs)
	if len(imgs) == 0 {
		return nil
	}
	return s.store.ReplaceImages(ctx, lp.ID, imgs)
}

func (s *SyncService) saveSnapshot(ctx context.Context, reply domain.RawReply, id int64, save func(context.Context, int64, []byte) error) error {
	recs, err := s.norm.Normalize(reply)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	return save(ctx, id, snapshotJSON(recs))
}

// CleanupOrphans moves local properties whose remote id the service no
// longer returns to draft. It refuses to act on an empty remote list.
func (s *SyncService) CleanupOrphans(ctx context.Context) domain.CleanupResult {
	logger := log.With().Str("action", "cleanup").Logger()
	release, ok := s.acquire(ctx, logger)
	if !ok {
		return domain.CleanupResult{Message: domain.ErrRunInProgress.Error()}
	}
	defer release()

	if err := s.client.Connect(ctx); err != nil {
		return domain.CleanupResult{Message: "Failed to connect to Barefoot API: " + err.Error()}
	}
	rep := NewReporter("cleanup", s.opts.Now)
	records, err := s.fetch(ctx, rep, logger)
	if err != nil {
		return domain.CleanupResult{Message: "Failed to fetch properties: " + err.Error()}
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := deref(firstString(r, propertyAliases, "remote_id")); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.CleanupResult{Message: "Refusing to clean up: the Barefoot API returned no property ids"}
	}

	drafted, err := s.store.MarkOrphans(ctx, ids)
	if err != nil {
		logger.Error().Err(err).Msg("mark orphans failed")
		return domain.CleanupResult{Message: "Cleanup failed: " + err.Error()}
	}
	s.evict(ctx, drafted)
	n := len(drafted)
	logger.Info().Int("drafted", n).Int("remote", len(ids)).Msg("orphan cleanup finished")
	return domain.CleanupResult{
		Success: true,
		Count:   n,
		Message: fmt.Sprintf("Moved %d orphaned properties to draft", n),
	}
}

func (s *SyncService) TestConnection(ctx context.Context) domain.ConnectionStatus {
	return s.client.TestConnection(ctx)
}

func (s *SyncService) PropertyOperations(ctx context.Context) ([]string, error) {
	return s.client.PropertyOperations(ctx)
}

// acquire takes the in-process flag, then the shared lease if configured.
// A lease backend error is logged and the run proceeds on the local flag.
func (s *SyncService) acquire(ctx context.Context, logger zerolog.Logger) (func(), bool) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, false
	}
	local := func() { s.running.Store(false) }
	if s.lease == nil {
		return local, true
	}
	unlock, err := s.lease.Acquire(ctx, runLeaseKey, s.opts.LeaseTTL)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		local()
		return nil, false
	case err != nil:
		logger.Warn().Err(err).Msg("run lease unavailable, continuing with local guard")
		return local, true
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("release run lease")
		}
		local()
	}, true
}

func (s *SyncService) finish(ctx context.Context, res domain.SyncResult, logger zerolog.Logger) {
	if err := s.store.RecordRun(context.WithoutCancel(ctx), res); err != nil {
		logger.Warn().Err(err).Msg("record sync run failed")
	}
	s.observe(res)
	logger.Info().
		Str("state", string(res.State)).
		Bool("success", res.Success).
		Int("count", res.Count).
		Int("errors", len(res.Errors)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg(res.Message)
}

func (s *SyncService) observe(res domain.SyncResult) {
	if s.opts.Observe != nil {
		s.opts.Observe(res)
	}
}

// invalidate drops cached views of every property the run touched.
func (s *SyncService) invalidate(ctx context.Context, props []domain.LocalProperty) {
	ids := make([]int64, len(props))
	for i, lp := range props {
		ids[i] = lp.ID
	}
	s.evict(ctx, ids)
}

// evict drops the cached read view of each local id.
func (s *SyncService) evict(ctx context.Context, ids []int64) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		_ = s.cache.Del(ctx, propertyCacheKey(id))
	}
}

func recordErrorMessage(i int, err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		if de.RemoteID != "" {
			return fmt.Sprintf("Error syncing property %s: %v", de.RemoteID, de.Err)
		}
		return fmt.Sprintf("Error syncing record %d: %v", i+1, de.Err)
	}
	return fmt.Sprintf("Error syncing record %d: %v", i+1, err)
}

func remoteIDOf(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.RemoteID
	}
	return ""
}
