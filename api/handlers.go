package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

type InvokeRequest struct {
	Message                   string `json:"message"`
	UserID                    string `json:"user_id"`
	HumanInterventionResponse bool   `json:"human_intervention_response,omitempty"`
	ResumeToken               string `json:"resume_token,omitempty"`
}

type PendingApproval struct {
	ResumeToken string     `json:"resume_token"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type InvokeResponse struct {
	AIResponse      string           `json:"ai_response"`
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`
}

type IngestRequest struct {
	URLs []string `json:"urls"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleInvoke(c echo.Context) error {
	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}

	reply, err := s.invoker.Invoke(c.Request().Context(), orchestrator.Request{
		UserID:        req.UserID,
		Message:       req.Message,
		HumanResponse: req.HumanInterventionResponse,
		ResumeToken:   req.ResumeToken,
	})
	if err != nil {
		return err
	}

	if reply.Pending == nil {
		return c.JSON(http.StatusOK, InvokeResponse{AIResponse: reply.Text})
	}
	pending := &PendingApproval{
		ResumeToken: reply.Pending.ResumeToken,
		Description: reply.Pending.Description,
	}
	if !reply.Pending.ExpiresAt.IsZero() {
		expires := reply.Pending.ExpiresAt
		pending.ExpiresAt = &expires
	}
	return c.JSON(http.StatusAccepted, InvokeResponse{AIResponse: reply.Text, PendingApproval: pending})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}
	report, err := s.ingester.Ingest(c.Request().Context(), req.URLs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func invalidBody(err error) error {
	return &echo.HTTPError{Code: http.StatusBadRequest, Message: "invalid request body", Internal: err}
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, contractx.ErrInputRejected), errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, contractx.ErrNoPendingApproval),
		errors.Is(err, contractx.ErrApprovalPending),
		errors.Is(err, contractx.ErrResumeTokenMismatch):
		return http.StatusConflict
	case errors.Is(err, contractx.ErrApprovalExpired):
		return http.StatusGone
	case errors.Is(err, contractx.ErrOutputRejected), errors.Is(err, contractx.ErrRoutingExhausted):
		return http.StatusInternalServerError
	case errors.Is(err, contractx.ErrCollaboratorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := StatusFor(err), ErrorResponse{Error: err.Error(), Category: contractx.Category(err)}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = ErrorResponse{Error: http.StatusText(he.Code), Category: "http"}
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		}
		if he.Code == http.StatusBadRequest {
			body.Category = "validation"
		}
	}
	if status >= http.StatusInternalServerError {
		// Internal details stay in the log.
		log.Ctx(c.Request().Context()).Error().Err(err).Int("status", status).Msg("request failed")
		if body.Category == "internal" || body.Category == "collaborator_unavailable" {
			body.Error = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if err := c.JSON(status, body); err != nil {
		log.Ctx(c.Request().Context()).Warn().Err(err).Msg("write error response")
	}
}
