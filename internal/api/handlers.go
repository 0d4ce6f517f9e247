package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/engine"
	"signal-engine/internal/risk"
	"signal-engine/internal/signal"
	"signal-engine/internal/weights"
)

// statusFor maps a generate response to an HTTP status. Rejections and HOLD
// answers are valid results and return 200.
func statusFor(resp *engine.Response) int {
	switch resp.Kind {
	case signal.KindInvalidRequest:
		return http.StatusBadRequest
	case signal.KindTimeout:
		return http.StatusGatewayTimeout
	case signal.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// handleGenerate runs the signal pipeline for one request
func (s *Server) handleGenerate(c *gin.Context) {
	var req engine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	resp := s.engine.Generate(c.Request.Context(), req)
	c.JSON(statusFor(resp), resp)
}

// handleOutcome records how an emitted proposal closed
func (s *Server) handleOutcome(c *gin.Context) {
	var req engine.OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	resp, err := s.engine.RecordOutcome(c.Request.Context(), req)
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, weights.ErrOutcomeUnknown):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   true,
			"kind":    signal.KindOutcomeUnknown,
			"message": err.Error(),
		})
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, "Failed to record outcome: "+err.Error())
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// handleWeights returns the published weight snapshot
func (s *Server) handleWeights(c *gin.Context) {
	snap := s.engine.Weights()
	c.JSON(http.StatusOK, gin.H{
		"weights":       snap.Layer1(),
		"precision":     snap.Precision,
		"sample_counts": snap.SampleCounts,
		"outcomes":      snap.Outcomes,
		"updated_at":    snap.UpdatedAt,
	})
}

// handleGuard answers the news/time guard for ?symbol=&at=
func (s *Server) handleGuard(c *gin.Context) {
	if s.guard == nil {
		errorResponse(c, http.StatusServiceUnavailable, "News guard is not configured")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	at := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "at must be an RFC3339 time")
			return
		}
		at = t.UTC()
	}

	status := s.guard.Check(c.Request.Context(), at, symbol)
	c.JSON(http.StatusOK, gin.H{
		"symbol":       symbol,
		"at":           at,
		"status":       status.Level,
		"reason":       status.Reason,
		"next_safe_at": status.NextSafeAt,
	})
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// handleEvents returns recorded bus events, newest first, for ?limit=
func (s *Server) handleEvents(c *gin.Context) {
	if s.history == nil {
		errorResponse(c, http.StatusServiceUnavailable, "Event history requires the postgres store")
		return
	}
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	list, err := s.history.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read event history")
		errorResponse(c, http.StatusInternalServerError, "Failed to read event history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"count":  len(list),
	})
}

type priceUpdateRequest struct {
	Price float64 `json:"price" binding:"required,gt=0"`
}

// handlePriceUpdate feeds a price to the trail manager of an open proposal
func (s *Server) handlePriceUpdate(c *gin.Context) {
	var req priceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	id := c.Param("id")
	trailer := s.engine.Trailer()
	st, ok := trailer.State(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "Proposal is not being trailed")
		return
	}
	update := trailer.Update(id, req.Price)
	if update == nil {
		// stop unchanged
		update = &risk.StopUpdate{ProposalID: id, OldStopLoss: st.CurrentStopLoss, NewStopLoss: st.CurrentStopLoss}
	}
	c.JSON(http.StatusOK, gin.H{
		"proposal_id":   update.ProposalID,
		"old_stop_loss": update.OldStopLoss,
		"new_stop_loss": update.NewStopLoss,
		"triggered":     update.IsTriggered,
		"trigger_price": update.TriggerPrice,
	})
}

// handleHealth reports server and dependency health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	deps := make(map[string]string, len(s.checks))
	for name, hc := range s.checks {
		if err := hc.HealthCheck(ctx); err != nil {
			healthy = false
			deps[name] = "unhealthy"
			s.logger.Warn("Health check failed", "dependency", name, "error", err)
			continue
		}
		deps[name] = "healthy"
	}

	body := gin.H{
		"status":       "healthy",
		"dependencies": deps,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"outcomes":     s.engine.Weights().Outcomes,
	}
	if s.hub != nil {
		body["ws_clients"] = s.hub.GetClientCount()
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
