package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/flow"
	"github.com/berfenger/virtualdevices/internal/plugin"
	"github.com/berfenger/virtualdevices/internal/storage"
	"github.com/berfenger/virtualdevices/pkg/gpioline"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const healthTimeout = 10 * time.Second

type startFlowRequest struct {
	Handler string `json:"handler"`
	EntryId string `json:"entry_id"`
}

type configureFlowRequest struct {
	StepId string         `json:"step_id"`
	Input  map[string]any `json:"input"`
}

type entityCommandResponse struct {
	UniqueId string `json:"unique_id"`
	IsOn     *bool  `json:"is_on,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/plugins", s.ListPluginsHandler)
	api.GET("/entries", s.ListEntriesHandler)
	api.DELETE("/entries/:entry_id", s.DeleteEntryHandler)
	api.GET("/entities", s.ListEntitiesHandler)
	api.POST("/entities/:unique_id/:command", s.EntityCommandHandler)
	api.POST("/flows", s.StartFlowHandler)
	api.POST("/flows/:flow_id", s.ConfigureFlowHandler)
	api.DELETE("/flows/:flow_id", s.AbortFlowHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	healthy, err := s.deps.Host.Health(ctx)
	if err != nil || !healthy {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	return c.String(http.StatusOK, "health_check: OK")
}

func (s *Server) ListPluginsHandler(c echo.Context) error {
	plugins, err := s.deps.Catalog.Catalog()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, plugins)
}

func (s *Server) ListEntriesHandler(c echo.Context) error {
	entries, err := s.deps.Store.ListEntries(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) DeleteEntryHandler(c echo.Context) error {
	ctx := c.Request().Context()
	entryId := c.Param("entry_id")
	if _, err := s.deps.Store.GetEntry(ctx, entryId); err != nil {
		return s.fail(c, err)
	}
	if err := s.deps.Host.UnloadEntry(ctx, entryId); err != nil {
		return s.fail(c, err)
	}
	if err := s.deps.Store.DeleteEntry(ctx, entryId); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ListEntitiesHandler(c echo.Context) error {
	entities, err := s.deps.Host.Entities(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entities)
}

func (s *Server) EntityCommandHandler(c echo.Context) error {
	resp, err := s.deps.Host.Command(c.Request().Context(), c.Param("unique_id"), c.Param("command"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, entityCommandResponse{UniqueId: resp.UniqueId, IsOn: resp.IsOn})
}

func (s *Server) StartFlowHandler(c echo.Context) error {
	var req startFlowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	ctx := c.Request().Context()
	var res *flow.Result
	var err error
	switch req.Handler {
	case flow.HANDLER_CONFIG:
		res, err = s.deps.Flows.StartConfigFlow(ctx)
	case flow.HANDLER_OPTIONS:
		if req.EntryId == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "entry_id is required"})
		}
		res, err = s.deps.Flows.StartOptionsFlow(ctx, req.EntryId)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown handler"})
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) ConfigureFlowHandler(c echo.Context) error {
	var req configureFlowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	res, err := s.deps.Flows.Configure(c.Request().Context(), c.Param("flow_id"), req.Input)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) AbortFlowHandler(c echo.Context) error {
	if err := s.deps.Flows.Abort(c.Param("flow_id")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("http: request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var unknown domain.UnknownEntityError
	var unsupported domain.UnsupportedCommandError
	switch {
	case errors.Is(err, flow.ErrFlowNotFound),
		errors.Is(err, storage.ErrEntryNotFound),
		errors.Is(err, plugin.ErrPluginNotFound),
		errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &unsupported), errors.Is(err, flow.ErrUnknownStep):
		return http.StatusBadRequest
	case errors.Is(err, gpioline.ErrResourceBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
