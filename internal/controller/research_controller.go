package controller

import (
	"errors"

	"deep-research-agent/internal/dto"
	"deep-research-agent/internal/pkg/serverutils"
	"deep-research-agent/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IResearchController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	StartRun(ctx *fiber.Ctx) error
	ActiveRun(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	SetReportPath(ctx *fiber.Ctx) error
	CleanupOld(ctx *fiber.Ctx) error
	CleanupIncomplete(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type researchController struct {
	research      service.IResearchService
	sessions      service.ISessionService
	retentionDays int
}

func NewResearchController(research service.IResearchService, sessions service.ISessionService, retentionDays int) IResearchController {
	return &researchController{
		research:      research,
		sessions:      sessions,
		retentionDays: retentionDays,
	}
}

func (c *researchController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/research/v1")
	h.Get("/health", c.Health)

	h.Use(auth)
	h.Post("/runs", c.StartRun)
	h.Get("/runs/active", c.ActiveRun)

	h.Get("/sessions", c.ListSessions)
	h.Post("/sessions/cleanup", c.CleanupOld)
	h.Post("/sessions/cleanup-incomplete", c.CleanupIncomplete)
	h.Get("/sessions/:id", c.GetSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Put("/sessions/:id/report", c.SetReportPath)
}

// mapError gives store and run errors their HTTP status.
func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRunInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

func (c *researchController) StartRun(ctx *fiber.Ctx) error {
	var req dto.StartResearchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	session, err := c.research.Start(ctx.UserContext(), req.Query, req.Context)
	if err != nil {
		return mapError(err)
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Research run started", dto.StartResearchResponse{
		SessionID:   session.SessionID,
		Status:      session.Status,
		TotalStages: c.research.TotalStages(),
		CreatedAt:   session.CreatedAt,
	}))
}

func (c *researchController) ActiveRun(ctx *fiber.Ctx) error {
	sessionID, running := c.research.Active()
	return ctx.JSON(serverutils.SuccessResponse("Active run", dto.ActiveRunResponse{
		Running:   running,
		SessionID: sessionID,
	}))
}

func (c *researchController) ListSessions(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 0)
	if limit < 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "limit must not be negative"))
	}

	items, err := c.sessions.List(ctx.UserContext(), limit)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Sessions", dto.ToSessionSummaries(items)))
}

func (c *researchController) GetSession(ctx *fiber.Ctx) error {
	session, err := c.sessions.Load(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session", session))
}

func (c *researchController) DeleteSession(ctx *fiber.Ctx) error {
	sessionID := ctx.Params("id")
	if active, running := c.research.Active(); running && active == sessionID {
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponse(409, "session is being researched"))
	}

	deleted, err := c.sessions.Delete(ctx.UserContext(), sessionID)
	if err != nil {
		return mapError(err)
	}
	if !deleted {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "session not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Session deleted", nil))
}

func (c *researchController) SetReportPath(ctx *fiber.Ctx) error {
	var req dto.SetReportPathRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	session, err := c.sessions.UpdateReportPath(ctx.UserContext(), ctx.Params("id"), req.ReportPath)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Report path updated", session))
}

func (c *researchController) CleanupOld(ctx *fiber.Ctx) error {
	req := dto.CleanupRequest{DaysOld: c.retentionDays}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	deleted, err := c.sessions.CleanupOld(ctx.UserContext(), req.DaysOld)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Old sessions removed", dto.CleanupResponse{Deleted: deleted}))
}

func (c *researchController) CleanupIncomplete(ctx *fiber.Ctx) error {
	deleted, err := c.sessions.CleanupIncomplete(ctx.UserContext())
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Incomplete sessions removed", dto.CleanupResponse{Deleted: deleted}))
}

func (c *researchController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{"service": "deep-research-agent"}))
}
