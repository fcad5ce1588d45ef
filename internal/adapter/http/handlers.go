package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

type labelRequest struct {
	Label   json.RawMessage `json:"label"`
	Segment *int            `json:"segment"`
}

type bulkLabelRequest struct {
	Label json.RawMessage `json:"label"`
	Count int             `json:"count"`
}

type jumpRequest struct {
	By int `json:"by"`
}

func (s *Server) handlePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": domain.PresetNames()})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	board, err := s.annotator.Leaderboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": board})
}

func (s *Server) handleOpen(c *gin.Context) {
	var req pipeline.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode request: %v: %w", err, domain.ErrMalformedInput))
		return
	}
	session, err := s.annotator.Open(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.View(c.Request.Context()))
}

func (s *Server) handleView(c *gin.Context) {
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleClose(c *gin.Context) {
	if err := s.annotator.Close(c.Request.Context(), c.Param("device")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLabel(c *gin.Context) {
	var req labelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode request: %v: %w", err, domain.ErrMalformedInput))
		return
	}
	label, err := parseLabel(req.Label)
	if err != nil {
		writeError(c, err)
		return
	}
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		if req.Segment != nil {
			session.Label(ctx, *req.Segment, label)
		} else {
			session.LabelCurrent(ctx, label)
		}
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleBulkLabel(c *gin.Context) {
	var req bulkLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode request: %v: %w", err, domain.ErrMalformedInput))
		return
	}
	if req.Count <= 0 {
		writeError(c, fmt.Errorf("count must be positive: %w", domain.ErrMalformedInput))
		return
	}
	label, err := parseLabel(req.Label)
	if err != nil {
		writeError(c, err)
		return
	}
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		session.BulkLabel(ctx, req.Count, label)
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleAdvance(c *gin.Context) {
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		session.Advance()
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleRetreat(c *gin.Context) {
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		session.Retreat()
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleJump(c *gin.Context) {
	var req jumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("decode request: %v: %w", err, domain.ErrMalformedInput))
		return
	}
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		session.Jump(req.By)
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleRewind(c *gin.Context) {
	s.withSession(c, func(ctx context.Context, session *pipeline.Session) {
		session.Rewind()
		c.JSON(http.StatusOK, session.View(ctx))
	})
}

func (s *Server) handleExport(c *gin.Context) {
	s.withSession(c, func(_ context.Context, session *pipeline.Session) {
		records := session.Export()
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.Key().DeviceID+".csv"))
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		if err := w.WriteAll(records); err != nil {
			_ = c.Error(err)
		}
	})
}

// withSession resolves the :device parameter to its open session.
func (s *Server) withSession(c *gin.Context, fn func(context.Context, *pipeline.Session)) {
	session, err := s.annotator.Session(c.Param("device"))
	if err != nil {
		writeError(c, err)
		return
	}
	fn(c.Request.Context(), session)
}

// parseLabel decodes a required label value. null clears a label.
func parseLabel(raw json.RawMessage) (domain.Label, error) {
	if len(raw) == 0 {
		return domain.LabelUnset, fmt.Errorf("label is required: %w", domain.ErrMalformedInput)
	}
	var l domain.Label
	if err := json.Unmarshal(raw, &l); err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return domain.LabelUnset, err
		}
		return domain.LabelUnset, fmt.Errorf("%v: %w", err, domain.ErrMalformedInput)
	}
	return l, nil
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
