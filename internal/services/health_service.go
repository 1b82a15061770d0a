// Package services – HealthService
//
// This file implements the record service with its availability fallback.
// Every operation routes per call: if the remote key-value store is
// available (per a 30-second-cached health probe) records go through the
// remote record store; otherwise they degrade to the device-local SQLite
// store. A remote operation that errors mid-call degrades that call only —
// the availability flag is refreshed exclusively by the explicit probe.
//
// Reads go through the TTL cache with in-flight coalescing; writes update
// the written key in place and invalidate the affected list cache, which is
// refetched on its next read rather than surgically edited.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/thaltrack/journal-backend/internal/cache"
	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/kv"
	"github.com/thaltrack/journal-backend/internal/repo"
)

// Cache TTLs per read class.
const (
	singleTTL = 10 * time.Minute
	listTTL   = 2 * time.Minute
	healthTTL = 30 * time.Second
)

// RecentAssessmentLimit caps ListRecentAssessments.
const RecentAssessmentLimit = 30

// Backend names which store served a write, so callers can surface a
// degraded-mode indicator when a save landed on the local device only.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// HealthService stores and retrieves the three record kinds for a user.
type HealthService struct {
	// Remote provides the key-value store connection.
	Remote Remote
	// Local is the device-local fallback database; nil in contexts without
	// local persistence, in which case a down backend fails operations.
	Local *gorm.DB
	// Cache is the read cache / request coalescer.
	Cache *cache.Cache

	migMu sync.Mutex
}

// NewHealthService constructs a HealthService.
func NewHealthService(remote Remote, local *gorm.DB, c *cache.Cache) *HealthService {
	return &HealthService{Remote: remote, Local: local, Cache: c}
}

func probeKey() cache.Key {
	return cache.Key{Kind: "health", Name: "probe"}
}

func recordKey(userID string, kind domain.RecordKind, key string) cache.Key {
	return cache.Key{UserID: userID, Kind: string(kind), Name: key}
}

func listKey(userID string, kind domain.RecordKind) cache.Key {
	return cache.Key{UserID: userID, Kind: kind.IndexName(), Name: "list"}
}

// IsBackendAvailable reports whether the remote store answered the liveness
// probe. Probe results (positive and negative) are cached for 30 seconds so
// UI polling cannot hammer a struggling backend. The first positive probe
// also triggers the one-shot local-to-remote migration.
func (s *HealthService) IsBackendAvailable(ctx context.Context) bool {
	v, err := s.Cache.GetOrFetch(ctx, probeKey(), healthTTL, false, func(ctx context.Context) (any, bool, error) {
		ok := s.Remote.Ping(ctx) == nil
		if ok {
			s.maybeMigrate(ctx)
		}
		return ok, true, nil
	})
	if err != nil {
		return false
	}
	ok, _ := v.(bool)
	return ok
}

// remoteStore returns a store handle when the probe says the backend is up
// and a connection can be produced.
func (s *HealthService) remoteStore(ctx context.Context) (kv.Store, bool) {
	if !s.IsBackendAvailable(ctx) {
		return nil, false
	}
	st, err := s.Remote.Acquire(ctx)
	if err != nil {
		return nil, false
	}
	return st, true
}

// SaveDailyAssessment validates and upserts the assessment for its date,
// merging into any existing record rather than replacing it. It returns the
// backend that served the write.
func (s *HealthService) SaveDailyAssessment(ctx context.Context, userID string, a *domain.DailyAssessment) (Backend, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	merged := a
	if existing, err := s.GetDailyAssessment(ctx, userID, a.Date, true); err == nil && existing != nil {
		existing.Merge(a)
		merged = existing
	}

	backend, err := s.putRecord(ctx, userID, domain.KindAssessment, merged.Date, merged)
	if err != nil {
		return "", err
	}
	s.Cache.Put(recordKey(userID, domain.KindAssessment, merged.Date), merged, singleTTL)
	s.Cache.Invalidate(listKey(userID, domain.KindAssessment))
	return backend, nil
}

// SaveFatigueScale validates and appends one questionnaire submission,
// assigning an id when the caller did not. Per-day uniqueness of a scale
// type is a caller-level policy, not enforced here.
func (s *HealthService) SaveFatigueScale(ctx context.Context, userID string, f *domain.FatigueScale) (Backend, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := f.Validate(); err != nil {
		return "", err
	}
	backend, err := s.putRecord(ctx, userID, domain.KindFatigueScale, f.ID, f)
	if err != nil {
		return "", err
	}
	s.Cache.Invalidate(listKey(userID, domain.KindFatigueScale))
	return backend, nil
}

// SaveExerciseSession validates and appends one workout record.
func (s *HealthService) SaveExerciseSession(ctx context.Context, userID string, sess *domain.ExerciseSession) (Backend, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := sess.Validate(); err != nil {
		return "", err
	}
	backend, err := s.putRecord(ctx, userID, domain.KindExerciseSession, sess.ID, sess)
	if err != nil {
		return "", err
	}
	s.Cache.Invalidate(listKey(userID, domain.KindExerciseSession))
	return backend, nil
}

// putRecord routes one write: remote when available, degrading to the local
// store when the backend is down or the remote write errors mid-call.
func (s *HealthService) putRecord(ctx context.Context, userID string, kind domain.RecordKind, key string, body any) (Backend, error) {
	if st, ok := s.remoteStore(ctx); ok {
		if err := repo.PutRecord(ctx, st, userID, kind, key, body); err == nil {
			return BackendRemote, nil
		} else {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("remote put failed, falling back to local store")
		}
	}
	if s.Local == nil {
		return "", ErrStoreUnavailable
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	if err := repo.PutLocalRecord(ctx, s.Local, userID, kind, key, string(raw)); err != nil {
		return "", errors.Join(ErrStoreUnavailable, err)
	}
	return BackendLocal, nil
}

// GetDailyAssessment returns the assessment for a date, or nil when none
// exists. Reads are cached for 10 minutes; forceRefresh bypasses the cache,
// used right after a write that must be visible on the same screen.
func (s *HealthService) GetDailyAssessment(ctx context.Context, userID, date string, forceRefresh bool) (*domain.DailyAssessment, error) {
	v, err := s.Cache.GetOrFetch(ctx, recordKey(userID, domain.KindAssessment, date), singleTTL, forceRefresh, func(ctx context.Context) (any, bool, error) {
		var out domain.DailyAssessment
		var remoteErr error
		if st, ok := s.remoteStore(ctx); ok {
			err := repo.GetRecord(ctx, st, userID, domain.KindAssessment, date, &out)
			if err == nil {
				return &out, true, nil
			}
			if errors.Is(err, repo.ErrNotFound) {
				return nil, false, nil
			}
			remoteErr = err
		}
		if s.Local == nil {
			if remoteErr != nil {
				return nil, false, errors.Join(ErrStoreUnavailable, remoteErr)
			}
			return nil, false, nil
		}
		raw, err := repo.GetLocalRecord(ctx, s.Local, userID, domain.KindAssessment, date)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, false, err
		}
		return &out, true, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*domain.DailyAssessment), nil
}

// ListRecentAssessments returns up to RecentAssessmentLimit assessments,
// most recent first. The full list is cached for 2 minutes.
func (s *HealthService) ListRecentAssessments(ctx context.Context, userID string) ([]domain.DailyAssessment, error) {
	all, err := s.listAssessments(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if len(all) > RecentAssessmentLimit {
		all = all[:RecentAssessmentLimit]
	}
	return all, nil
}

func (s *HealthService) listAssessments(ctx context.Context, userID string, force bool) ([]domain.DailyAssessment, error) {
	v, err := s.Cache.GetOrFetch(ctx, listKey(userID, domain.KindAssessment), listTTL, force, func(ctx context.Context) (any, bool, error) {
		raws, err := s.listRaw(ctx, userID, domain.KindAssessment)
		if err != nil {
			return nil, false, err
		}
		out := make([]domain.DailyAssessment, 0, len(raws))
		for _, raw := range raws {
			var a domain.DailyAssessment
			if err := json.Unmarshal(raw, &a); err != nil {
				log.Warn().Err(err).Msg("skipping undecodable assessment record")
				continue
			}
			out = append(out, a)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
		return out, true, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DailyAssessment), nil
}

// ListFatigueScales returns all questionnaire submissions, most recent first.
func (s *HealthService) ListFatigueScales(ctx context.Context, userID string) ([]domain.FatigueScale, error) {
	return s.listScales(ctx, userID, false)
}

func (s *HealthService) listScales(ctx context.Context, userID string, force bool) ([]domain.FatigueScale, error) {
	v, err := s.Cache.GetOrFetch(ctx, listKey(userID, domain.KindFatigueScale), listTTL, force, func(ctx context.Context) (any, bool, error) {
		raws, err := s.listRaw(ctx, userID, domain.KindFatigueScale)
		if err != nil {
			return nil, false, err
		}
		out := make([]domain.FatigueScale, 0, len(raws))
		for _, raw := range raws {
			var f domain.FatigueScale
			if err := json.Unmarshal(raw, &f); err != nil {
				log.Warn().Err(err).Msg("skipping undecodable fatigue scale record")
				continue
			}
			out = append(out, f)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
		return out, true, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.FatigueScale), nil
}

// ListExerciseSessions returns all workout records, most recent first.
func (s *HealthService) ListExerciseSessions(ctx context.Context, userID string) ([]domain.ExerciseSession, error) {
	return s.listSessions(ctx, userID, false)
}

func (s *HealthService) listSessions(ctx context.Context, userID string, force bool) ([]domain.ExerciseSession, error) {
	v, err := s.Cache.GetOrFetch(ctx, listKey(userID, domain.KindExerciseSession), listTTL, force, func(ctx context.Context) (any, bool, error) {
		raws, err := s.listRaw(ctx, userID, domain.KindExerciseSession)
		if err != nil {
			return nil, false, err
		}
		out := make([]domain.ExerciseSession, 0, len(raws))
		for _, raw := range raws {
			var sess domain.ExerciseSession
			if err := json.Unmarshal(raw, &sess); err != nil {
				log.Warn().Err(err).Msg("skipping undecodable exercise session record")
				continue
			}
			out = append(out, sess)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
		return out, true, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ExerciseSession), nil
}

// listRaw fetches the raw record bodies of one kind, remote when available,
// local otherwise. Missing index targets are skipped by the record store.
func (s *HealthService) listRaw(ctx context.Context, userID string, kind domain.RecordKind) ([]json.RawMessage, error) {
	var remoteErr error
	if st, ok := s.remoteStore(ctx); ok {
		raws, err := repo.ListRecords(ctx, st, userID, kind)
		if err == nil {
			return raws, nil
		}
		remoteErr = err
		log.Warn().Err(err).Str("kind", string(kind)).Msg("remote list failed, falling back to local store")
	}
	if s.Local == nil {
		if remoteErr != nil {
			return nil, errors.Join(ErrStoreUnavailable, remoteErr)
		}
		return nil, nil
	}
	values, err := repo.ListLocalRecords(ctx, s.Local, userID, kind)
	if err != nil {
		return nil, err
	}
	raws := make([]json.RawMessage, len(values))
	for i, v := range values {
		raws[i] = json.RawMessage(v)
	}
	return raws, nil
}

// DeleteRecord removes a record from whichever backend serves the call and
// always prunes any local copy so it cannot resurface through migration.
// Deleting a non-existent key succeeds.
func (s *HealthService) DeleteRecord(ctx context.Context, userID string, kind domain.RecordKind, key string) error {
	var firstErr error
	if st, ok := s.remoteStore(ctx); ok {
		if err := repo.DeleteRecord(ctx, st, userID, kind, key); err != nil {
			firstErr = err
			log.Warn().Err(err).Str("kind", string(kind)).Msg("remote delete failed")
		}
	}
	if s.Local != nil {
		if err := repo.DeleteLocalRecord(ctx, s.Local, userID, kind, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.Cache.Invalidate(recordKey(userID, kind, key))
	s.Cache.Invalidate(listKey(userID, kind))
	return firstErr
}

// ExportAllData bundles the user's three record lists, bypassing the read
// cache so the export reflects the latest stored state.
func (s *HealthService) ExportAllData(ctx context.Context, userID, username string) (*domain.HealthBundle, error) {
	assessments, err := s.listAssessments(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	scales, err := s.listScales(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	sessions, err := s.listSessions(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return &domain.HealthBundle{
		Assessments:      assessments,
		FatigueScales:    scales,
		ExerciseSessions: sessions,
		ExportDate:       time.Now().UTC(),
		Username:         username,
	}, nil
}

// ImportData replays a previously exported bundle through the normal save
// paths, so validation, merging, and index maintenance all apply.
func (s *HealthService) ImportData(ctx context.Context, userID string, bundle *domain.HealthBundle) error {
	for i := range bundle.Assessments {
		if _, err := s.SaveDailyAssessment(ctx, userID, &bundle.Assessments[i]); err != nil {
			return err
		}
	}
	for i := range bundle.FatigueScales {
		if _, err := s.SaveFatigueScale(ctx, userID, &bundle.FatigueScales[i]); err != nil {
			return err
		}
	}
	for i := range bundle.ExerciseSessions {
		if _, err := s.SaveExerciseSession(ctx, userID, &bundle.ExerciseSessions[i]); err != nil {
			return err
		}
	}
	return nil
}

// maybeMigrate moves device-local records into the remote store the first
// time the backend is seen healthy. The marker is only written after every
// record migrated, so a partial failure leaves local data intact and retries
// on a later healthy probe. Re-running with identical data cannot duplicate
// index entries because PutRecord skips keys already indexed.
func (s *HealthService) maybeMigrate(ctx context.Context) {
	if s.Local == nil {
		return
	}
	s.migMu.Lock()
	defer s.migMu.Unlock()

	done, err := repo.MigrationDone(ctx, s.Local)
	if err != nil || done {
		return
	}
	st, err := s.Remote.Acquire(ctx)
	if err != nil {
		return
	}
	recs, err := repo.AllLocalRecords(ctx, s.Local)
	if err != nil {
		log.Warn().Err(err).Msg("migration scan failed")
		return
	}
	for _, r := range recs {
		kind, err := domain.ParseRecordKind(r.Kind)
		if err != nil {
			log.Warn().Str("kind", r.Kind).Msg("skipping local record of unknown kind")
			continue
		}
		if err := repo.PutRecord(ctx, st, r.UserID, kind, r.Key, json.RawMessage(r.Value)); err != nil {
			log.Warn().Err(err).Msg("migration interrupted, will retry on next healthy probe")
			return
		}
	}
	if err := repo.SetMigrationDone(ctx, s.Local); err != nil {
		log.Warn().Err(err).Msg("failed to set migration marker")
		return
	}
	if len(recs) > 0 {
		log.Info().Int("records", len(recs)).Msg("migrated local records to remote store")
	}
}
