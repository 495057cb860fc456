// Package api serves alignments over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/internal/metrics"
	"github.com/samcharles93/diagwarp/pkg/device"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

type Server struct {
	store     *AlignmentStore
	dtw       *dtw.Context
	metrics   *metrics.Metrics
	validate  *validator.Validate
	blockSize int
	log       logger.Logger
	clock     func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger handed to alignments.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithBlockSize caps the threads per launch block for every alignment.
func WithBlockSize(n int) Option {
	return func(s *Server) { s.blockSize = n }
}

func NewServer(store *AlignmentStore, dc *dtw.Context, m *metrics.Metrics, opts ...Option) *Server {
	if store == nil {
		store = NewAlignmentStore()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		store:    store,
		dtw:      dc,
		metrics:  m,
		validate: newValidator(),
		log:      logger.Discard(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/alignments", s.handleCreateAlignment)
	e.GET("/v1/alignments/:id", s.handleGetAlignment)
	e.DELETE("/v1/alignments/:id", s.handleDeleteAlignment)
	e.GET("/v1/device", s.handleDevice)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleCreateAlignment(c *echo.Context) error {
	if s.dtw == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "alignment context not configured", "", "")
	}
	req, err := decodeJSON[AlignRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON body: "+err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return writeInvalid(c, validationError(err))
	}

	resp, snap, err := s.align(c.Request().Context(), &req)
	if err != nil {
		var ie *invalidRequestError
		if errors.As(err, &ie) {
			return writeInvalid(c, ie)
		}
		status, errType := alignStatus(err)
		return writeError(c, status, errType, err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, s.store.Create(resp, snap))
}

func (s *Server) align(ctx context.Context, req *AlignRequest) (AlignmentResponse, *dtw.Snapshot, error) {
	x, err := cloud.FromPoints(req.X)
	if err != nil {
		return AlignmentResponse{}, nil, newInvalidRequest("x", "%v", err)
	}
	y, err := cloud.FromPoints(req.Y)
	if err != nil {
		return AlignmentResponse{}, nil, newInvalidRequest("y", "%v", err)
	}
	dist, err := dtw.DistanceByName(req.Distance)
	if err != nil {
		return AlignmentResponse{}, nil, newInvalidRequest("distance", "%v", err)
	}

	opts := dtw.Options{
		SaveAt:    req.SaveAt,
		StopAt:    req.StopAt,
		Box:       req.Box,
		Reverse:   req.Reverse != nil && *req.Reverse,
		Debug:     req.Debug,
		Distance:  dist,
		Stats:     s.metrics.Distances,
		BlockSize: s.blockSize,
	}
	if req.ResumeFrom != "" {
		rec, ok := s.store.Get(req.ResumeFrom)
		if !ok {
			return AlignmentResponse{}, nil, newInvalidRequest("resume_from", "alignment %s not found", req.ResumeFrom)
		}
		if rec.Snapshot == nil {
			return AlignmentResponse{}, nil, newInvalidRequest("resume_from", "alignment %s has no snapshot", req.ResumeFrom)
		}
		snap := rec.Snapshot
		// Omitted geometry follows the snapshot; given geometry must match it.
		if req.Box == nil {
			box := snap.Box()
			opts.Box = &box
		} else if *req.Box != snap.Box() {
			return AlignmentResponse{}, nil, newInvalidRequest("box", "box %+v does not match the box %+v of alignment %s", *req.Box, snap.Box(), req.ResumeFrom)
		}
		if req.Reverse == nil {
			opts.Reverse = snap.Reverse
		} else if *req.Reverse != snap.Reverse {
			return AlignmentResponse{}, nil, newInvalidRequest("reverse", "reverse=%v conflicts with alignment %s taken with reverse=%v", *req.Reverse, req.ResumeFrom, snap.Reverse)
		}
		opts.Resume = snap
	}

	ctx = logger.WithContext(ctx, s.log)
	start := s.clock()
	res, err := s.dtw.Align(ctx, x, y, opts)
	elapsed := s.clock().Sub(start)
	s.metrics.Observe(res, err, elapsed)
	s.log.Debug("alignment request served",
		"rows", x.RawMatrix().Rows, "cols", y.RawMatrix().Rows,
		"status", metrics.Status(res, err), "elapsed", elapsed)
	if err != nil {
		return AlignmentResponse{}, nil, err
	}

	resp := AlignmentResponse{
		CreatedAt:  start.Unix(),
		Status:     metrics.Status(res, nil),
		Cost:       res.Cost,
		Diagonals:  res.Diagonals,
		Stopped:    res.Stopped,
		ResumeFrom: req.ResumeFrom,
		Snapshot:   res.Snapshot,
		Debug:      debugResponse(res.Debug),
	}
	if res.Stopped {
		at := res.StoppedAt
		resp.StoppedAt = &at
	}
	return resp, res.Snapshot, nil
}

func (s *Server) handleGetAlignment(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeNotFound(c, "alignment not found")
	}
	rec, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "alignment not found")
	}
	return c.JSON(http.StatusOK, rec.Response)
}

func (s *Server) handleDeleteAlignment(c *echo.Context) error {
	id := c.Param("id")
	if id == "" || !s.store.Delete(id) {
		return writeNotFound(c, "alignment not found")
	}
	return c.JSON(http.StatusOK, DeleteAlignmentResp{
		ID:      id,
		Object:  "alignment",
		Deleted: true,
	})
}

func (s *Server) handleDevice(c *echo.Context) error {
	if s.dtw == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "alignment context not configured", "", "")
	}
	dev := s.dtw.Device()
	return c.JSON(http.StatusOK, DeviceResponse{
		Backend:    dev.Name(),
		Available:  device.Available(),
		Properties: dev.Properties(),
		Distances:  dtw.DistanceNames(),
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"alignments": s.store.Len(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
