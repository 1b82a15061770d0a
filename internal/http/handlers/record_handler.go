// Health record HTTP handlers.
//
// This file exposes REST endpoints for the three record kinds and bulk data
// transfer:
//   - POST   /assessments            (merge-upsert by date)
//   - GET    /assessments            (recent list, most recent first)
//   - GET    /assessments/:date      (single day; ?refresh=1 bypasses cache)
//   - POST   /scales                 (append questionnaire submission)
//   - GET    /scales                 (list)
//   - POST   /sessions               (append workout record)
//   - GET    /sessions               (list)
//   - DELETE /records/:kind/:key     (delete one record)
//   - GET    /export                 (bundle of all three lists)
//   - POST   /import                 (replay a bundle through normal saves)
//   - GET    /availability           (remote store health, cached probe)
//
// Save responses include a "storage" field naming the backend that served the
// write ("remote" or "local"), so clients can show a degraded-mode indicator
// when the remote store is down.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thaltrack/journal-backend/internal/domain"
	"github.com/thaltrack/journal-backend/internal/http/middleware"
	"github.com/thaltrack/journal-backend/internal/services"
	"github.com/thaltrack/journal-backend/internal/utils"
)

// RecordService defines the record operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RecordService interface {
	IsBackendAvailable(ctx context.Context) bool
	SaveDailyAssessment(ctx context.Context, userID string, a *domain.DailyAssessment) (services.Backend, error)
	GetDailyAssessment(ctx context.Context, userID, date string, forceRefresh bool) (*domain.DailyAssessment, error)
	ListRecentAssessments(ctx context.Context, userID string) ([]domain.DailyAssessment, error)
	SaveFatigueScale(ctx context.Context, userID string, f *domain.FatigueScale) (services.Backend, error)
	ListFatigueScales(ctx context.Context, userID string) ([]domain.FatigueScale, error)
	SaveExerciseSession(ctx context.Context, userID string, s *domain.ExerciseSession) (services.Backend, error)
	ListExerciseSessions(ctx context.Context, userID string) ([]domain.ExerciseSession, error)
	DeleteRecord(ctx context.Context, userID string, kind domain.RecordKind, key string) error
	ExportAllData(ctx context.Context, userID, username string) (*domain.HealthBundle, error)
	ImportData(ctx context.Context, userID string, bundle *domain.HealthBundle) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for auth and health records. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	authSvc AuthService
	recSvc  RecordService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(authSvc AuthService, recSvc RecordService) *Handlers {
	return &Handlers{authSvc: authSvc, recSvc: recSvc}
}

//
// DTOs
//

// SaveRecordResponse wraps a saved record with the backend that stored it.
type SaveRecordResponse struct {
	Record  any    `json:"record"`
	Storage string `json:"storage"` // "remote" or "local"
}

// AvailabilityResponse reports remote store liveness.
type AvailabilityResponse struct {
	Available bool `json:"available"`
}

// mapRecordError translates record service errors into the error envelope.
func mapRecordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable, nothing was saved")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// clampLimit parses an optional ?limit= query parameter and bounds it to
// [1,max]. A missing or unparsable value yields def.
func clampLimit(c *gin.Context, def, max int) int {
	n := utils.AtoiDefault(c.Query("limit"), def)
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

//
// Handlers
//

// SaveAssessment godoc
// @ID          saveAssessment
// @Summary     Save a daily assessment
// @Description Upserts the assessment for its date, merging non-empty fields into any existing record. The readiness score is recomputed server-side.
// @Tags        Records
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
// @Param       body           body    domain.DailyAssessment  true  "Assessment payload"
//
// @Success     200  {object}  handlers.SaveRecordResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /assessments [post]
func (h *Handlers) SaveAssessment(c *gin.Context) {
	var a domain.DailyAssessment
	if err := c.ShouldBindJSON(&a); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	backend, err := h.recSvc.SaveDailyAssessment(c.Request.Context(), middleware.UserIDFrom(c), &a)
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, SaveRecordResponse{Record: &a, Storage: string(backend)})
}

// GetAssessment godoc
// @ID          getAssessment
// @Summary     Get the assessment for a date
// @Description Returns the assessment for a YYYY-MM-DD date. Pass ?refresh=1 to bypass the read cache right after a write.
// @Tags        Records
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer <token>"
// @Param       date           path    string  true   "Date (YYYY-MM-DD)"
// @Param       refresh        query   string  false  "Bypass read cache when truthy"
//
// @Success     200  {object}  domain.DailyAssessment
// @Failure     404  {object}  handlers.ErrorResponse  "No assessment for this date"
// @Router      /assessments/{date} [get]
func (h *Handlers) GetAssessment(c *gin.Context) {
	date := c.Param("date")
	force := c.Query("refresh") == "1" || c.Query("refresh") == "true"

	a, err := h.recSvc.GetDailyAssessment(c.Request.Context(), middleware.UserIDFrom(c), date, force)
	if err != nil {
		mapRecordError(c, err)
		return
	}
	if a == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no assessment for this date")
		return
	}
	ok(c, http.StatusOK, a)
}

// ListAssessments godoc
// @ID          listAssessments
// @Summary     List recent assessments
// @Description Returns up to 30 assessments (fewer with ?limit=), most recent first.
// @Tags        Records
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer <token>"
// @Param       limit          query   int     false  "Max records"  minimum(1) maximum(30) default(30)
//
// @Success     200  {object}  map[string][]domain.DailyAssessment
// @Router      /assessments [get]
func (h *Handlers) ListAssessments(c *gin.Context) {
	list, err := h.recSvc.ListRecentAssessments(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		mapRecordError(c, err)
		return
	}
	if limit := clampLimit(c, services.RecentAssessmentLimit, services.RecentAssessmentLimit); len(list) > limit {
		list = list[:limit]
	}
	ok(c, http.StatusOK, gin.H{"assessments": list})
}

// SaveScale godoc
// @ID          saveScale
// @Summary     Submit a fatigue scale
// @Description Appends an FSS or FACIT-F questionnaire submission. Total and interpretation are derived server-side.
// @Tags        Records
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
// @Param       body           body    domain.FatigueScale  true  "Scale payload"
//
// @Success     200  {object}  handlers.SaveRecordResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /scales [post]
func (h *Handlers) SaveScale(c *gin.Context) {
	var f domain.FatigueScale
	if err := c.ShouldBindJSON(&f); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	backend, err := h.recSvc.SaveFatigueScale(c.Request.Context(), middleware.UserIDFrom(c), &f)
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, SaveRecordResponse{Record: &f, Storage: string(backend)})
}

// ListScales godoc
// @ID          listScales
// @Summary     List fatigue scales
// @Tags        Records
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
//
// @Success     200  {object}  map[string][]domain.FatigueScale
// @Router      /scales [get]
func (h *Handlers) ListScales(c *gin.Context) {
	list, err := h.recSvc.ListFatigueScales(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"fatigueScales": list})
}

// SaveSession godoc
// @ID          saveSession
// @Summary     Record an exercise session
// @Tags        Records
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
// @Param       body           body    domain.ExerciseSession  true  "Session payload"
//
// @Success     200  {object}  handlers.SaveRecordResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /sessions [post]
func (h *Handlers) SaveSession(c *gin.Context) {
	var s domain.ExerciseSession
	if err := c.ShouldBindJSON(&s); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	backend, err := h.recSvc.SaveExerciseSession(c.Request.Context(), middleware.UserIDFrom(c), &s)
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, SaveRecordResponse{Record: &s, Storage: string(backend)})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List exercise sessions
// @Tags        Records
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
//
// @Success     200  {object}  map[string][]domain.ExerciseSession
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	list, err := h.recSvc.ListExerciseSessions(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"exerciseSessions": list})
}

// DeleteRecord godoc
// @ID          deleteRecord
// @Summary     Delete a record
// @Description Removes one record by kind (assessment, fatigue_scale, exercise_session) and key. Deleting a missing record succeeds.
// @Tags        Records
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
// @Param       kind           path    string  true  "Record kind"
// @Param       key            path    string  true  "Record key (date or id)"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown record kind"
// @Router      /records/{kind}/{key} [delete]
func (h *Handlers) DeleteRecord(c *gin.Context) {
	kind, err := domain.ParseRecordKind(c.Param("kind"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err := h.recSvc.DeleteRecord(c.Request.Context(), middleware.UserIDFrom(c), kind, c.Param("key")); err != nil {
		mapRecordError(c, err)
		return
	}
	noContent(c)
}

// ExportData godoc
// @ID          exportData
// @Summary     Export all records
// @Description Bundles the user's assessments, fatigue scales, and exercise sessions, bypassing the read cache.
// @Tags        Transfer
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
//
// @Success     200  {object}  domain.HealthBundle
// @Router      /export [get]
func (h *Handlers) ExportData(c *gin.Context) {
	username := ""
	if v, found := c.Get("username"); found {
		username, _ = v.(string)
	}
	bundle, err := h.recSvc.ExportAllData(c.Request.Context(), middleware.UserIDFrom(c), username)
	if err != nil {
		mapRecordError(c, err)
		return
	}
	ok(c, http.StatusOK, bundle)
}

// ImportData godoc
// @ID          importData
// @Summary     Import a record bundle
// @Description Replays a previously exported bundle through the normal save paths (validation and merging apply).
// @Tags        Transfer
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer <token>"
// @Param       body           body    domain.HealthBundle  true  "Bundle payload"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /import [post]
func (h *Handlers) ImportData(c *gin.Context) {
	var bundle domain.HealthBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.recSvc.ImportData(c.Request.Context(), middleware.UserIDFrom(c), &bundle); err != nil {
		mapRecordError(c, err)
		return
	}
	noContent(c)
}

// Availability godoc
// @ID          availability
// @Summary     Remote store availability
// @Description Reports whether the remote store answered the (cached) liveness probe. Clients poll this to drive an offline indicator.
// @Tags        Health
// @Produce     json
//
// @Success     200  {object}  handlers.AvailabilityResponse
// @Router      /availability [get]
func (h *Handlers) Availability(c *gin.Context) {
	ok(c, http.StatusOK, AvailabilityResponse{
		Available: h.recSvc.IsBackendAvailable(c.Request.Context()),
	})
}
