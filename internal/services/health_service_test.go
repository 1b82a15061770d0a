package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/thaltrack/journal-backend/internal/cache"
	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/repo"
)

// newHealthService builds a service over an in-memory remote store and a
// temp-file SQLite fallback. The returned advance function moves the cache
// clock, which is how tests expire the 30-second availability probe.
func newHealthService(t *testing.T) (*HealthService, *fakeRemote, func(time.Duration)) {
	t.Helper()

	remote := newFakeRemote()

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	c := cache.New()
	var mu sync.Mutex
	now := time.Now()
	c.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	return NewHealthService(remote, db, c), remote, advance
}

func morning(ratings [5]int) *domain.MorningAssessment {
	return &domain.MorningAssessment{
		SleepQuality:      ratings[0],
		EnergyWaking:      ratings[1],
		MentalClarity:     ratings[2],
		PhysicalReadiness: ratings[3],
		Motivation:        ratings[4],
	}
}

func TestSaveDailyAssessment_RemoteWriteAndReadBack(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	a := &domain.DailyAssessment{Date: "2025-06-01", Morning: morning([5]int{7, 6, 8, 5, 9})}
	backend, err := svc.SaveDailyAssessment(ctx, "u1", a)
	if err != nil {
		t.Fatalf("SaveDailyAssessment: %v", err)
	}
	if backend != BackendRemote {
		t.Fatalf("backend = %q, want remote", backend)
	}

	got, err := svc.GetDailyAssessment(ctx, "u1", "2025-06-01", false)
	if err != nil {
		t.Fatalf("GetDailyAssessment: %v", err)
	}
	if got == nil || got.Morning == nil {
		t.Fatalf("assessment not round-tripped: %+v", got)
	}
	if got.Morning.ExerciseReadinessScore != 35 {
		t.Fatalf("readiness = %d, want 35", got.Morning.ExerciseReadinessScore)
	}
}

func TestSaveDailyAssessment_MergesIntoExistingDate(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	first := &domain.DailyAssessment{Date: "2025-06-01", Morning: morning([5]int{7, 6, 8, 5, 9})}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := &domain.DailyAssessment{Date: "2025-06-01", DailyNotes: "short walk only"}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := svc.GetDailyAssessment(ctx, "u1", "2025-06-01", true)
	if err != nil || got == nil {
		t.Fatalf("GetDailyAssessment: %v, %v", got, err)
	}
	if got.Morning == nil || got.Morning.ExerciseReadinessScore != 35 {
		t.Fatalf("morning lost in merge: %+v", got.Morning)
	}
	if got.DailyNotes != "short walk only" {
		t.Fatalf("notes = %q", got.DailyNotes)
	}

	list, err := svc.ListRecentAssessments(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRecentAssessments: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1 merged record", len(list))
	}
}

func TestSaveDailyAssessment_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	bad := &domain.DailyAssessment{Date: "June 1st", Morning: morning([5]int{5, 5, 5, 5, 5})}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad date err = %v, want ErrValidation", err)
	}
	bad = &domain.DailyAssessment{Date: "2025-06-01", Morning: morning([5]int{0, 5, 5, 5, 5})}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad rating err = %v, want ErrValidation", err)
	}
}

func TestSaveDailyAssessment_FallsBackToLocalWhileDown(t *testing.T) {
	svc, remote, _ := newHealthService(t)
	ctx := context.Background()
	remote.setDown(true)

	a := &domain.DailyAssessment{Date: "2025-06-01", DailyNotes: "offline entry"}
	backend, err := svc.SaveDailyAssessment(ctx, "u1", a)
	if err != nil {
		t.Fatalf("SaveDailyAssessment while down: %v", err)
	}
	if backend != BackendLocal {
		t.Fatalf("backend = %q, want local", backend)
	}

	// The write is durable and visible through the normal read path.
	got, err := svc.GetDailyAssessment(ctx, "u1", "2025-06-01", true)
	if err != nil || got == nil {
		t.Fatalf("read-back while down: %v, %v", got, err)
	}
	if got.DailyNotes != "offline entry" {
		t.Fatalf("notes = %q", got.DailyNotes)
	}

	list, err := svc.ListRecentAssessments(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list while down = %v, %v", list, err)
	}
}

func TestMigration_ReplaysLocalRecordsOnceBackendReturns(t *testing.T) {
	svc, remote, advance := newHealthService(t)
	ctx := context.Background()

	remote.setDown(true)
	a := &domain.DailyAssessment{Date: "2025-06-01", DailyNotes: "offline entry"}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", a); err != nil {
		t.Fatalf("offline save: %v", err)
	}

	remote.setDown(false)
	advance(31 * time.Second) // expire the cached negative probe
	if !svc.IsBackendAvailable(ctx) {
		t.Fatal("backend should be available again")
	}

	// The offline record was replayed into the remote store.
	var got domain.DailyAssessment
	if err := repo.GetRecord(ctx, remote.store, "u1", domain.KindAssessment, "2025-06-01", &got); err != nil {
		t.Fatalf("migrated record missing from remote store: %v", err)
	}
	if got.DailyNotes != "offline entry" {
		t.Fatalf("migrated notes = %q", got.DailyNotes)
	}
	if done, err := repo.MigrationDone(ctx, svc.Local); err != nil || !done {
		t.Fatalf("migration marker = %v, %v", done, err)
	}

	// A later probe must not duplicate index entries.
	advance(31 * time.Second)
	svc.IsBackendAvailable(ctx)
	keys, err := repo.ListRecordKeys(ctx, remote.store, "u1", domain.KindAssessment)
	if err != nil || len(keys) != 1 {
		t.Fatalf("index keys = %v, %v; want exactly one", keys, err)
	}
}

func TestListRecentAssessments_SortsDescAndCaps(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	for day := 1; day <= 35; day++ {
		a := &domain.DailyAssessment{Date: fmt.Sprintf("2025-05-%02d", day), DailyNotes: "x"}
		if _, err := svc.SaveDailyAssessment(ctx, "u1", a); err != nil {
			t.Fatalf("save day %d: %v", day, err)
		}
	}

	list, err := svc.ListRecentAssessments(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRecentAssessments: %v", err)
	}
	if len(list) != RecentAssessmentLimit {
		t.Fatalf("list length = %d, want %d", len(list), RecentAssessmentLimit)
	}
	if list[0].Date != "2025-05-31" {
		t.Fatalf("first = %q, want most recent", list[0].Date)
	}
	for i := 1; i < len(list); i++ {
		if list[i].Date > list[i-1].Date {
			t.Fatalf("list not descending at %d: %q after %q", i, list[i].Date, list[i-1].Date)
		}
	}
}

func TestSaveFatigueScale_DerivesScoreAndInvalidatesList(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	if list, err := svc.ListFatigueScales(ctx, "u1"); err != nil || len(list) != 0 {
		t.Fatalf("initial list = %v, %v", list, err)
	}

	f := &domain.FatigueScale{
		Date:       "2025-06-01",
		Type:       domain.ScaleFACITF,
		Scores:     []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
		TotalScore: 999, // tampered, must be recomputed
	}
	if _, err := svc.SaveFatigueScale(ctx, "u1", f); err != nil {
		t.Fatalf("SaveFatigueScale: %v", err)
	}
	if f.ID == "" {
		t.Fatal("scale id not assigned")
	}

	// The stale empty list was invalidated by the save.
	list, err := svc.ListFatigueScales(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list after save = %v, %v", list, err)
	}
	if list[0].TotalScore != 26 {
		t.Fatalf("total = %v, want recomputed 26", list[0].TotalScore)
	}
}

func TestSaveExerciseSession_AssignsIDAndLists(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	s1 := &domain.ExerciseSession{Date: "2025-06-01", Exercise: "walking", Duration: 20}
	s2 := &domain.ExerciseSession{Date: "2025-06-03", Exercise: "swimming", Duration: 30}
	for _, s := range []*domain.ExerciseSession{s1, s2} {
		if _, err := svc.SaveExerciseSession(ctx, "u1", s); err != nil {
			t.Fatalf("SaveExerciseSession: %v", err)
		}
		if s.ID == "" {
			t.Fatal("session id not assigned")
		}
	}

	list, err := svc.ListExerciseSessions(ctx, "u1")
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if list[0].Exercise != "swimming" {
		t.Fatalf("first = %q, want most recent", list[0].Exercise)
	}
}

func TestDeleteRecord_RemovesAndStaysIdempotent(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	a := &domain.DailyAssessment{Date: "2025-06-01", DailyNotes: "x"}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.DeleteRecord(ctx, "u1", domain.KindAssessment, "2025-06-01"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if got, err := svc.GetDailyAssessment(ctx, "u1", "2025-06-01", false); err != nil || got != nil {
		t.Fatalf("after delete = %v, %v; want nil", got, err)
	}
	if list, err := svc.ListRecentAssessments(ctx, "u1"); err != nil || len(list) != 0 {
		t.Fatalf("list after delete = %v, %v", list, err)
	}
	// Deleting a missing key succeeds.
	if err := svc.DeleteRecord(ctx, "u1", domain.KindAssessment, "2025-06-01"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestExportImport_RoundTripsAcrossUsers(t *testing.T) {
	svc, _, _ := newHealthService(t)
	ctx := context.Background()

	a := &domain.DailyAssessment{Date: "2025-06-01", Morning: morning([5]int{7, 6, 8, 5, 9})}
	if _, err := svc.SaveDailyAssessment(ctx, "u1", a); err != nil {
		t.Fatalf("save assessment: %v", err)
	}
	f := &domain.FatigueScale{Date: "2025-06-01", Type: domain.ScaleFSS, Scores: []int{4, 4, 4, 4, 4, 4, 4, 4, 4}}
	if _, err := svc.SaveFatigueScale(ctx, "u1", f); err != nil {
		t.Fatalf("save scale: %v", err)
	}
	s := &domain.ExerciseSession{Date: "2025-06-02", Exercise: "walking", Duration: 15}
	if _, err := svc.SaveExerciseSession(ctx, "u1", s); err != nil {
		t.Fatalf("save session: %v", err)
	}

	bundle, err := svc.ExportAllData(ctx, "u1", "alice")
	if err != nil {
		t.Fatalf("ExportAllData: %v", err)
	}
	if bundle.Username != "alice" || bundle.ExportDate.IsZero() {
		t.Fatalf("bundle metadata: %+v", bundle)
	}
	if len(bundle.Assessments) != 1 || len(bundle.FatigueScales) != 1 || len(bundle.ExerciseSessions) != 1 {
		t.Fatalf("bundle sizes = %d/%d/%d", len(bundle.Assessments), len(bundle.FatigueScales), len(bundle.ExerciseSessions))
	}

	if err := svc.ImportData(ctx, "u2", bundle); err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	got, err := svc.GetDailyAssessment(ctx, "u2", "2025-06-01", false)
	if err != nil || got == nil || got.Morning == nil {
		t.Fatalf("imported assessment = %v, %v", got, err)
	}
	// Import stayed scoped to its target user.
	if list, err := svc.ListExerciseSessions(ctx, "u2"); err != nil || len(list) != 1 {
		t.Fatalf("imported sessions = %v, %v", list, err)
	}
}

func TestIsBackendAvailable_CachesProbeResult(t *testing.T) {
	svc, remote, advance := newHealthService(t)
	ctx := context.Background()

	if !svc.IsBackendAvailable(ctx) {
		t.Fatal("expected available")
	}
	// The cached positive probe masks the outage until it expires.
	remote.setDown(true)
	if !svc.IsBackendAvailable(ctx) {
		t.Fatal("probe result should still be cached")
	}
	advance(31 * time.Second)
	if svc.IsBackendAvailable(ctx) {
		t.Fatal("expired probe should observe the outage")
	}
}
