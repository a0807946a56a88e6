package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/entity"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/pkg/research"

	"github.com/google/uuid"
)

var ErrRunInProgress = errors.New("a research run is already in progress")

// ResearchRunner is the engine as seen by the service.
type ResearchRunner interface {
	Run(ctx context.Context, session *entity.Session) (*research.RunResult, error)
	TotalStages() int
}

type IResearchService interface {
	// Start creates the session and runs it in the background.
	Start(ctx context.Context, query string, researchContext map[string]interface{}) (*entity.Session, error)
	// Run creates the session and runs it to completion.
	Run(ctx context.Context, query string, researchContext map[string]interface{}) (*research.RunResult, error)
	// Active returns the session id of the run in flight, if any.
	Active() (string, bool)
	TotalStages() int
	// Shutdown cancels a background run and waits for it to record its outcome.
	Shutdown(ctx context.Context) error
}

type researchService struct {
	sessions ISessionService
	engine   ResearchRunner
	progress IProgressService
	logger   logger.ILogger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active string
	busy   bool
}

func NewResearchService(sessions ISessionService, engine ResearchRunner, progress IProgressService, log logger.ILogger) IResearchService {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &researchService{
		sessions: sessions,
		engine:   engine,
		progress: progress,
		logger:   logger.OrNop(log),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

func (s *researchService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *researchService) setActive(sessionID string) {
	s.mu.Lock()
	s.active = sessionID
	s.mu.Unlock()
}

func (s *researchService) release() {
	s.mu.Lock()
	s.busy = false
	s.active = ""
	s.mu.Unlock()
}

func (s *researchService) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.busy
}

func (s *researchService) TotalStages() int {
	return s.engine.TotalStages()
}

func (s *researchService) Start(ctx context.Context, query string, researchContext map[string]interface{}) (*entity.Session, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}

	session, err := s.sessions.Create(ctx, query, researchContext)
	if err != nil {
		s.release()
		return nil, err
	}
	s.setActive(session.SessionID)

	runCtx := WithRunID(s.baseCtx, uuid.NewString())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		_, _ = s.execute(runCtx, session)
	}()

	return session, nil
}

func (s *researchService) Run(ctx context.Context, query string, researchContext map[string]interface{}) (*research.RunResult, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}
	defer s.release()

	session, err := s.sessions.Create(ctx, query, researchContext)
	if err != nil {
		return nil, err
	}
	s.setActive(session.SessionID)

	return s.execute(WithRunID(ctx, uuid.NewString()), session)
}

func (s *researchService) execute(ctx context.Context, session *entity.Session) (*research.RunResult, error) {
	details := map[string]interface{}{
		"run_id":     RunIDFrom(ctx),
		"session_id": session.SessionID,
	}
	s.logger.Info(constant.LogModuleResearchService, "Research run accepted", details)

	result, err := s.engine.Run(ctx, session)
	if err != nil {
		reason := err.Error()
		// the run context may be the reason we are here
		failCtx := context.WithoutCancel(ctx)
		if _, markErr := s.sessions.MarkFailed(failCtx, session.SessionID, reason); markErr != nil {
			s.logger.Error(constant.LogModuleResearchService, "Failed to record run failure", map[string]interface{}{
				"session_id": session.SessionID,
				"error":      markErr.Error(),
			})
		}
		if s.progress != nil {
			s.progress.RunFailed(failCtx, session.SessionID, reason)
		}
		s.logger.Error(constant.LogModuleResearchService, "Research run failed", map[string]interface{}{
			"run_id":     RunIDFrom(ctx),
			"session_id": session.SessionID,
			"error":      reason,
		})
		return nil, fmt.Errorf("research run %s: %w", session.SessionID, err)
	}

	if s.progress != nil {
		s.progress.RunCompleted(ctx, result)
	}
	return result, nil
}

func (s *researchService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
