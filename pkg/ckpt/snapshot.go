package ckpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

const sectionVersion = 1

// Meta describes the alignment a snapshot was taken from.
type Meta struct {
	Diagonal int      `json:"diagonal"`
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	DiagLen  int      `json:"diag_len"`
	RowStart int      `json:"row_start"`
	ColStart int      `json:"col_start"`
	Box      *dtw.Box `json:"box,omitempty"`
	Reverse  bool     `json:"reverse"`
	Distance string   `json:"distance,omitempty"`
	Cost     float64  `json:"cost"`
}

// Save writes snap and its metadata to path. Geometry fields of meta,
// including Reverse, are filled from the snapshot. A meta Box that does not
// describe the snapshot's box is an error.
func Save(path string, snap *dtw.Snapshot, meta Meta) (err error) {
	if snap == nil {
		return errors.New("ckpt: nil snapshot")
	}
	if meta.Box != nil && *meta.Box != snap.Box() {
		return fmt.Errorf("ckpt: box %+v does not match snapshot box %+v", *meta.Box, snap.Box())
	}
	meta.Diagonal = snap.Diagonal
	meta.Rows = snap.Rows
	meta.Cols = snap.Cols
	meta.DiagLen = snap.DiagLen()
	meta.RowStart = snap.RowStart
	meta.ColStart = snap.ColStart
	meta.Reverse = snap.Reverse
	meta.Cost = snap.Cost()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w, err := NewWriter(f)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("ckpt: encode meta: %w", err)
	}
	if err := w.WriteSection(SectionMeta, sectionVersion, raw); err != nil {
		return err
	}
	for i, name := range dtw.SnapshotBuffers {
		if err := w.WriteSection(bufferSections[i], sectionVersion, encodeFloats(snap.Buffer(name))); err != nil {
			return fmt.Errorf("ckpt: write %s: %w", name, err)
		}
	}
	return w.Finalise()
}

// Load reads a checkpoint written by Save.
func Load(path string) (*dtw.Snapshot, Meta, error) {
	f, err := Open(path)
	if err != nil {
		return nil, Meta{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode extracts the snapshot and metadata of an opened checkpoint. The
// result does not reference f.
func Decode(f *File) (*dtw.Snapshot, Meta, error) {
	var meta Meta
	sec := f.Section(SectionMeta)
	if sec == nil {
		return nil, meta, fmt.Errorf("%w: missing meta section", ErrCorruptFile)
	}
	if err := json.Unmarshal(f.SectionData(sec), &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: meta: %w", ErrCorruptFile, err)
	}
	diagLen := min(meta.Rows, meta.Cols)
	if diagLen < 1 || meta.DiagLen != diagLen {
		return nil, meta, fmt.Errorf("%w: meta geometry %dx%d with diag_len %d", ErrCorruptFile, meta.Rows, meta.Cols, meta.DiagLen)
	}

	snap := &dtw.Snapshot{
		Diagonal: meta.Diagonal,
		Rows:     meta.Rows,
		Cols:     meta.Cols,
		RowStart: meta.RowStart,
		ColStart: meta.ColStart,
		Reverse:  meta.Reverse,
	}
	for i, name := range dtw.SnapshotBuffers {
		sec := f.Section(bufferSections[i])
		if sec == nil {
			return nil, meta, fmt.Errorf("%w: missing %s section", ErrCorruptFile, name)
		}
		data := f.SectionData(sec)
		if len(data) != diagLen*4 {
			return nil, meta, fmt.Errorf("%w: %s has %d bytes, want %d", ErrCorruptFile, name, len(data), diagLen*4)
		}
		snap.SetBuffer(name, decodeFloats(data))
	}
	return snap, meta, nil
}

func encodeFloats(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
