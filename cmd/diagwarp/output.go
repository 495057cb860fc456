package main

import (
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

// writeJSON writes v indented to path, or to w when path is empty or "-".
func writeJSON(w io.Writer, path string, v any) (err error) {
	if path != "" && path != "-" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type debugOutput struct {
	U  [][]float64 `json:"u"`
	L  [][]float64 `json:"l"`
	UL [][]float64 `json:"ul"`
	S  [][]float64 `json:"s"`
}

func debugMatrices(d *dtw.DebugMatrices) *debugOutput {
	if d == nil {
		return nil
	}
	return &debugOutput{
		U:  cloud.ToPoints(d.U),
		L:  cloud.ToPoints(d.L),
		UL: cloud.ToPoints(d.UL),
		S:  cloud.ToPoints(d.S),
	}
}
