package api

import (
	"github.com/samcharles93/diagwarp/pkg/device"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"gonum.org/v1/gonum/mat"
)

// AlignRequest is the body of POST /v1/alignments.
type AlignRequest struct {
	X [][]float64 `json:"x" validate:"required,min=1,dive,min=1"`
	Y [][]float64 `json:"y" validate:"required,min=1,dive,min=1"`
	// Box restricts the alignment; omitted means the full grid, or the box of
	// the resumed snapshot. {} is the single cell at the origin.
	Box *dtw.Box `json:"box,omitempty"`
	// Reverse defaults to false, or to the direction of the resumed snapshot.
	Reverse  *bool  `json:"reverse,omitempty"`
	Debug    bool   `json:"debug,omitempty"`
	SaveAt   *int   `json:"save_at,omitempty" validate:"omitempty,min=0"`
	StopAt   *int   `json:"stop_at,omitempty" validate:"omitempty,min=0"`
	Distance string `json:"distance,omitempty" validate:"omitempty,oneof=euclidean sqeuclidean manhattan chebyshev"`
	// ResumeFrom names a stored alignment whose snapshot seeds this run.
	ResumeFrom string `json:"resume_from,omitempty" validate:"omitempty,uuid4"`
}

type AlignmentResponse struct {
	ID         string         `json:"id"`
	Object     string         `json:"object"`
	CreatedAt  int64          `json:"created_at"`
	Status     string         `json:"status"`
	Cost       float64        `json:"cost"`
	Diagonals  int            `json:"diagonals"`
	Stopped    bool           `json:"stopped"`
	StoppedAt  *int           `json:"stopped_at,omitempty"`
	ResumeFrom string         `json:"resume_from,omitempty"`
	Snapshot   *dtw.Snapshot  `json:"snapshot,omitempty"`
	Debug      *DebugResponse `json:"debug,omitempty"`
}

// DebugResponse carries the debug matrices as row-major point lists.
type DebugResponse struct {
	U  [][]float64 `json:"u"`
	L  [][]float64 `json:"l"`
	UL [][]float64 `json:"ul"`
	S  [][]float64 `json:"s"`
}

type DeleteAlignmentResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type DeviceResponse struct {
	Backend    string            `json:"backend"`
	Available  string            `json:"available"`
	Properties device.Properties `json:"properties"`
	Distances  []string          `json:"distances"`
}

func debugResponse(d *dtw.DebugMatrices) *DebugResponse {
	if d == nil {
		return nil
	}
	return &DebugResponse{
		U:  rows(d.U),
		L:  rows(d.L),
		UL: rows(d.UL),
		S:  rows(d.S),
	}
}

func rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(make([]float64, c), i, m)
	}
	return out
}
