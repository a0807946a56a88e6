package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/internal/repository/contract"
	"deep-research-agent/pkg/validation"

	"github.com/tidwall/gjson"
)

var ErrSessionNotFound = errors.New("session not found")

const maxIDAttempts = 1000

type SessionServiceConfig struct {
	ReportsDir string
	ListLimit  int
	// StuckAfter is how long a session may stay in "created" before
	// CleanupIncomplete removes it.
	StuckAfter time.Duration
}

// ISessionService is the durable session store. Every error it returns is a
// *validation.ValidationError; I/O and decode failures are wrapped with their
// cause preserved.
type ISessionService interface {
	Create(ctx context.Context, query string, researchContext map[string]interface{}) (*entity.Session, error)
	Save(ctx context.Context, session *entity.Session) error
	Load(ctx context.Context, sessionID string) (*entity.Session, error)
	UpdateStage(ctx context.Context, sessionID string, result entity.StageResult) (*entity.Session, error)
	UpdateConclusions(ctx context.Context, sessionID string, conclusions *entity.FinalConclusions, confidence float64) (*entity.Session, error)
	UpdateReportPath(ctx context.Context, sessionID string, reportPath string) (*entity.Session, error)
	MarkFailed(ctx context.Context, sessionID string, reason string) (*entity.Session, error)
	List(ctx context.Context, limit int) ([]entity.SessionMetadata, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	CleanupOld(ctx context.Context, daysOld int) (int, error)
	CleanupIncomplete(ctx context.Context) (int, error)
}

type SessionServiceOption func(*sessionService)

// WithSessionClock replaces time.Now for timestamps and age checks.
func WithSessionClock(now func() time.Time) SessionServiceOption {
	return func(s *sessionService) {
		s.now = now
	}
}

type sessionService struct {
	backend   contract.SessionBackend
	validator *validation.Validator
	logger    logger.ILogger
	cfg       SessionServiceConfig
	now       func() time.Time

	idMu       sync.Mutex
	lastIssued time.Time
}

func NewSessionService(
	backend contract.SessionBackend,
	validator *validation.Validator,
	log logger.ILogger,
	cfg SessionServiceConfig,
	opts ...SessionServiceOption,
) ISessionService {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 20
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = constant.StuckSessionThresholdHours * time.Hour
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "./data/reports"
	}
	if validator == nil {
		validator = validation.New(validation.DefaultLimits())
	}

	s := &sessionService{
		backend:   backend,
		validator: validator,
		logger:    logger.OrNop(log),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sessionService) clock() time.Time {
	return s.now().UTC()
}

func (s *sessionService) Create(ctx context.Context, query string, researchContext map[string]interface{}) (*entity.Session, error) {
	cleanQuery, err := s.validator.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	cleanContext, err := s.validator.ValidateContextData(researchContext)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	id, err := s.newSessionID(ctx, now)
	if err != nil {
		return nil, err
	}

	session := &entity.Session{
		SessionID:  id,
		CreatedAt:  now,
		ModifiedAt: now,
		Query:      cleanQuery,
		Context:    cleanContext,
		ResearchResults: entity.ResearchResults{
			Stages:          []entity.StageResult{},
			ConfidenceScore: 0.0,
		},
		Status: entity.SessionStatusCreated,
	}

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info(constant.LogModuleSessionStore, "Session created", map[string]interface{}{
		"session_id": id,
	})
	return session, nil
}

// newSessionID derives an id from t with microsecond precision and steps
// forward one microsecond at a time until the id is unused. Ids issued by
// this process only move forward, even when the clock steps back.
func (s *sessionService) newSessionID(ctx context.Context, t time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	t = t.Truncate(time.Microsecond)
	if !s.lastIssued.IsZero() && !t.After(s.lastIssued) {
		t = s.lastIssued.Add(time.Microsecond)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := fmt.Sprintf("%s_%s_%06d",
			constant.SessionIDPrefix,
			t.Format(constant.SessionIDTimeLayout),
			t.Nanosecond()/int(time.Microsecond),
		)

		_, err := s.backend.Get(ctx, candidate)
		if errors.Is(err, contract.ErrRecordNotFound) {
			s.lastIssued = t
			return candidate, nil
		}
		if err != nil {
			return "", validation.Wrap("session_id", "cannot check for collisions", err)
		}
		t = t.Add(time.Microsecond)
	}
	return "", validation.Invalid("session_id", "no free identifier available")
}

func (s *sessionService) Save(ctx context.Context, session *entity.Session) error {
	if session == nil || session.SessionID == "" {
		return validation.Invalid("session_id", "is required")
	}
	if _, err := validation.ValidateSessionID(session.SessionID); err != nil {
		s.logger.Warn(constant.LogModuleSessionStore, "Saving session with non-conforming id", map[string]interface{}{
			"session_id": session.SessionID,
			"error":      err.Error(),
		})
	}

	if session.Context == nil {
		session.Context = map[string]interface{}{}
	}
	if session.ResearchResults.Stages == nil {
		session.ResearchResults.Stages = []entity.StageResult{}
	}
	session.ModifiedAt = s.clock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return validation.Wrap("session", "cannot be encoded", err)
	}
	if err := s.backend.Put(ctx, session.SessionID, data); err != nil {
		var vErr *validation.ValidationError
		if errors.As(err, &vErr) {
			return err
		}
		return validation.Wrap("session", "cannot be written", err)
	}
	return nil
}

func (s *sessionService) Load(ctx context.Context, sessionID string) (*entity.Session, error) {
	id, err := validation.ValidateSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := s.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, contract.ErrRecordNotFound) {
			return nil, validation.Wrap("session_id", fmt.Sprintf("no session %s", id), ErrSessionNotFound)
		}
		return nil, validation.Wrap("session", "cannot be read", err)
	}

	var session entity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, validation.Wrap("session", "record is corrupt", err)
	}
	return &session, nil
}

func (s *sessionService) UpdateStage(ctx context.Context, sessionID string, result entity.StageResult) (*entity.Session, error) {
	stage, err := s.validator.ValidateResearchStage(result.Stage)
	if err != nil {
		return nil, err
	}

	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result.Stage = stage
	result.Timestamp = s.clock()
	session.ResearchResults.Stages = append(session.ResearchResults.Stages, result)
	session.Status = entity.StageStatus(stage)

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) UpdateConclusions(ctx context.Context, sessionID string, conclusions *entity.FinalConclusions, confidence float64) (*entity.Session, error) {
	score, err := validation.ValidateConfidenceScore(confidence)
	if err != nil {
		return nil, err
	}

	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.ResearchResults.FinalConclusions = conclusions
	session.ResearchResults.ConfidenceScore = score
	session.Status = entity.SessionStatusCompleted
	session.Error = ""

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) UpdateReportPath(ctx context.Context, sessionID string, reportPath string) (*entity.Session, error) {
	resolved, err := s.resolveReportPath(reportPath)
	if err != nil {
		return nil, err
	}

	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.ReportPath = resolved
	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// resolveReportPath accepts a path relative to the reports directory, or an
// absolute path that already lies inside it.
func (s *sessionService) resolveReportPath(reportPath string) (string, error) {
	if filepath.IsAbs(reportPath) {
		root, err := filepath.Abs(s.cfg.ReportsDir)
		if err != nil {
			return "", validation.Wrap("reports_dir", "cannot be resolved", err)
		}
		rel, err := filepath.Rel(root, reportPath)
		if err != nil {
			return "", validation.Wrap("path", "is outside the reports directory", err)
		}
		reportPath = filepath.ToSlash(rel)
	}
	return validation.ValidateFilePath(reportPath, s.cfg.ReportsDir, false)
}

func (s *sessionService) MarkFailed(ctx context.Context, sessionID string, reason string) (*entity.Session, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.Status = entity.SessionStatusError
	session.Error = validation.SanitizeString(reason, 500)
	if session.Error == "" {
		session.Error = "research run failed"
	}

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context, limit int) ([]entity.SessionMetadata, error) {
	if limit <= 0 {
		limit = s.cfg.ListLimit
	}

	records, err := s.backend.List(ctx)
	if err != nil {
		return nil, validation.Wrap("sessions", "cannot be listed", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})

	result := make([]entity.SessionMetadata, 0, limit)
	for _, record := range records {
		if len(result) >= limit {
			break
		}
		data, err := s.backend.Get(ctx, record.ID)
		if err != nil {
			s.warnSkipped(record.ID, "read failed", err)
			continue
		}
		meta, err := probeMetadata(data)
		if err != nil {
			s.warnSkipped(record.ID, "unparseable record", err)
			continue
		}
		result = append(result, meta)
	}
	return result, nil
}

func probeMetadata(data []byte) (entity.SessionMetadata, error) {
	if !gjson.ValidBytes(data) {
		return entity.SessionMetadata{}, errors.New("invalid JSON")
	}
	fields := gjson.GetManyBytes(data, "session_id", "created_at", "query", "status", "research_results.confidence_score")
	if !fields[0].Exists() {
		return entity.SessionMetadata{}, errors.New("missing session_id")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields[1].String())
	if err != nil {
		return entity.SessionMetadata{}, fmt.Errorf("created_at: %w", err)
	}

	return entity.SessionMetadata{
		SessionID:       fields[0].String(),
		CreatedAt:       createdAt.UTC(),
		Query:           previewQuery(fields[2].String()),
		Status:          fields[3].String(),
		ConfidenceScore: fields[4].Float(),
	}, nil
}

func previewQuery(query string) string {
	if utf8.RuneCountInString(query) <= constant.ListQueryPreviewLength {
		return query
	}
	runes := []rune(query)
	return string(runes[:constant.ListQueryPreviewLength]) + "..."
}

func (s *sessionService) Delete(ctx context.Context, sessionID string) (bool, error) {
	id, err := validation.ValidateSessionID(sessionID)
	if err != nil {
		return false, err
	}
	return s.remove(ctx, id)
}

// remove deletes the report artifact (best effort) and then the record.
// It does not enforce the id grammar so sweeps can reach records that were
// saved with custom identifiers.
func (s *sessionService) remove(ctx context.Context, id string) (bool, error) {
	data, err := s.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, contract.ErrRecordNotFound) {
			return false, nil
		}
		s.logger.Warn(constant.LogModuleSessionStore, "Could not read session before delete", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
	} else if reportPath := gjson.GetBytes(data, "report_path").String(); reportPath != "" {
		s.removeReport(id, reportPath)
	}

	deleted, err := s.backend.Delete(ctx, id)
	if err != nil {
		var vErr *validation.ValidationError
		if errors.As(err, &vErr) {
			return false, err
		}
		return false, validation.Wrap("session", "cannot be deleted", err)
	}
	if deleted {
		s.logger.Info(constant.LogModuleSessionStore, "Session deleted", map[string]interface{}{
			"session_id": id,
		})
	}
	return deleted, nil
}

func (s *sessionService) removeReport(id, reportPath string) {
	resolved, err := s.resolveReportPath(reportPath)
	if err != nil {
		s.logger.Warn(constant.LogModuleSessionStore, "Report path outside reports directory, leaving it", map[string]interface{}{
			"session_id":  id,
			"report_path": reportPath,
		})
		return
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn(constant.LogModuleSessionStore, "Could not remove report", map[string]interface{}{
			"session_id":  id,
			"report_path": resolved,
			"error":       err.Error(),
		})
	}
}

func (s *sessionService) CleanupOld(ctx context.Context, daysOld int) (int, error) {
	if daysOld < 0 {
		return 0, validation.Invalid("days_old", "must not be negative")
	}
	cutoff := s.clock().Add(-time.Duration(daysOld) * 24 * time.Hour)

	records, err := s.backend.List(ctx)
	if err != nil {
		return 0, validation.Wrap("sessions", "cannot be listed", err)
	}

	deleted := 0
	for _, record := range records {
		if !record.ModifiedAt.Before(cutoff) {
			continue
		}
		ok, err := s.remove(ctx, record.ID)
		if err != nil {
			s.warnSkipped(record.ID, "delete failed", err)
			continue
		}
		if ok {
			deleted++
		}
	}

	s.logger.Info(constant.LogModuleSessionStore, "Old sessions cleaned up", map[string]interface{}{
		"days_old": daysOld,
		"deleted":  deleted,
	})
	return deleted, nil
}

func (s *sessionService) CleanupIncomplete(ctx context.Context) (int, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return 0, validation.Wrap("sessions", "cannot be listed", err)
	}

	now := s.clock()
	deleted := 0
	for _, record := range records {
		data, err := s.backend.Get(ctx, record.ID)
		if err != nil {
			if !errors.Is(err, contract.ErrRecordNotFound) {
				s.warnSkipped(record.ID, "read failed", err)
			}
			continue
		}

		reason := s.incompleteReason(data, now)
		if reason == "" {
			continue
		}

		ok, err := s.remove(ctx, record.ID)
		if err != nil {
			s.warnSkipped(record.ID, "delete failed", err)
			continue
		}
		if ok {
			deleted++
			s.logger.Info(constant.LogModuleSessionStore, "Incomplete session removed", map[string]interface{}{
				"session_id": record.ID,
				"reason":     reason,
			})
		}
	}
	return deleted, nil
}

var requiredSessionFields = []string{"session_id", "created_at", "query", "status"}

// incompleteReason returns why a raw record should be swept, or "" if it is healthy.
func (s *sessionService) incompleteReason(data []byte, now time.Time) string {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return "corrupt record"
	}
	for _, field := range requiredSessionFields {
		if !gjson.GetBytes(data, field).Exists() {
			return "missing " + field
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, gjson.GetBytes(data, "created_at").String())
	if err != nil {
		return "unparseable created_at"
	}

	var session entity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return "corrupt record"
	}

	if session.Status == entity.SessionStatusCreated && now.Sub(createdAt) > s.cfg.StuckAfter {
		return "stuck in created"
	}
	return ""
}

func (s *sessionService) warnSkipped(id, reason string, err error) {
	s.logger.Warn(constant.LogModuleSessionStore, "Skipping session record", map[string]interface{}{
		"session_id": id,
		"reason":     reason,
		"error":      err.Error(),
	})
}
