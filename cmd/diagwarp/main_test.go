package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
)

// runApp runs the CLI with args and returns stdout and the action error.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"diagwarp", "--log-format", "text"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseBox(t *testing.T) {
	tests := []struct {
		in      string
		want    *dtw.Box
		wantErr bool
	}{
		{"", nil, false},
		{"1:3,0:2", &dtw.Box{RowStart: 1, RowEnd: 3, ColStart: 0, ColEnd: 2}, false},
		{" 0 : 4 , 2 : 2 ", &dtw.Box{RowStart: 0, RowEnd: 4, ColStart: 2, ColEnd: 2}, false},
		{"1:3", nil, true},
		{"1-3,0:2", nil, true},
		{"a:3,0:2", nil, true},
		{"1:3,0:b", nil, true},
	}
	for _, tc := range tests {
		got, err := parseBox(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseBox(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("parseBox(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestLoadConfigAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, writeFile(t, dir, "config.yaml", `
backend: cpu
workers: 3
block_size: 64
distance: manhattan
server_address: 0.0.0.0:9090
batch_concurrency: 5
`))

	cfg := LoadConfig()
	if cfg.Backend != "cpu" || cfg.Workers == nil || *cfg.Workers != 3 || cfg.MemoryLimit != nil {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	var (
		addr        = "127.0.0.1:8080"
		concurrency int64
	)
	cmd := &cli.Command{
		Name:  "probe",
		Flags: append(append(commonDeviceFlags(), distanceFlag()), &cli.StringFlag{Name: "addr"}, &cli.Int64Flag{Name: "concurrency"}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, cfg, &addr)
			applyBatchConfig(cmd, cfg, &concurrency)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"probe", "--block-size", "128"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if backend != "cpu" || workers != 3 || distanceName != "manhattan" {
		t.Fatalf("config not applied: backend=%q workers=%d distance=%q", backend, workers, distanceName)
	}
	if blockSize != 128 {
		t.Fatalf("explicit flag should win: block size %d", blockSize)
	}
	if addr != "0.0.0.0:9090" || concurrency != 5 {
		t.Fatalf("serve/batch config not applied: addr=%q concurrency=%d", addr, concurrency)
	}
}

func TestLoadConfigMissingOrInvalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "missing.yaml"))
	if diff := cmp.Diff(Config{}, LoadConfig()); diff != "" {
		t.Fatalf("missing config should be zero (-want +got):\n%s", diff)
	}
	t.Setenv(envConfigPath, writeFile(t, dir, "bad.yaml", "workers: [1, 2"))
	if diff := cmp.Diff(Config{}, LoadConfig()); diff != "" {
		t.Fatalf("invalid config should be zero (-want +got):\n%s", diff)
	}
}

func TestAlignCheckpointResume(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))
	x := writeFile(t, dir, "x.json", `[[0], [1], [2]]`)
	y := writeFile(t, dir, "y.yaml", "- [0]\n- [2]\n")
	ck := filepath.Join(dir, "run.dwc")

	decode := func(s string) alignOutput {
		t.Helper()
		var out alignOutput
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		return out
	}

	stdout, err := runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y, "--matrices")
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	full := decode(stdout)
	if full.Cost != 1 || full.Diagonals != 4 || full.Distances != 6 {
		t.Fatalf("unexpected full result: %+v", full)
	}
	if diff := cmp.Diff([][]float64{{0, 2}, {1, 1}, {3, 1}}, full.Debug.S); diff != "" {
		t.Fatalf("S mismatch (-want +got):\n%s", diff)
	}

	stdout, err = runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y,
		"--save-at", "2", "--stop-at", "2", "--checkpoint", ck)
	if err != nil {
		t.Fatalf("partial align: %v", err)
	}
	partial := decode(stdout)
	if !partial.Stopped || partial.StoppedAt == nil || *partial.StoppedAt != 2 || partial.Checkpoint != ck {
		t.Fatalf("unexpected partial result: %+v", partial)
	}

	outPath := filepath.Join(dir, "resumed.json")
	if _, err := runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y, "--resume", ck, "-o", outPath); err != nil {
		t.Fatalf("resumed align: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	resumed := decode(string(data))
	if resumed.Cost != full.Cost || resumed.Diagonals != 1 || resumed.ResumedAt == nil || *resumed.ResumedAt != 2 {
		t.Fatalf("unexpected resumed result: %+v", resumed)
	}
}

func TestAlignResumeKeepsCheckpointGeometry(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))
	x := writeFile(t, dir, "x.json", `[[0], [1], [2], [3], [1]]`)
	y := writeFile(t, dir, "y.json", `[[0], [2], [2], [1]]`)
	ck := filepath.Join(dir, "rev.dwc")

	decode := func(s string) alignOutput {
		t.Helper()
		var out alignOutput
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		return out
	}

	stdout, err := runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y, "--box", "1:4,1:3", "--reverse")
	if err != nil {
		t.Fatalf("full align: %v", err)
	}
	full := decode(stdout)
	if _, err := runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y, "--box", "1:4,1:3", "--reverse",
		"--save-at", "2", "--stop-at", "2", "--checkpoint", ck); err != nil {
		t.Fatalf("partial align: %v", err)
	}

	stdout, err = runApp(t, "align", "--backend", "cpu", "--x", x, "--y", y, "--resume", ck)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed := decode(stdout); resumed.Cost != full.Cost {
		t.Fatalf("resumed cost %v, uninterrupted %v", resumed.Cost, full.Cost)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"conflicting reverse", []string{"--reverse=false"}, "conflicts with checkpoint"},
		{"shifted box", []string{"--box", "0:3,0:2"}, "does not match checkpoint box"},
		{"full grid box", []string{"--box", ""}, "does not match checkpoint box"},
		{"stop before checkpoint", []string{"--stop-at", "1"}, "snapshot does not match"},
	}
	for _, tc := range tests {
		args := append([]string{"align", "--backend", "cpu", "--x", x, "--y", y, "--resume", ck}, tc.args...)
		_, err := runApp(t, args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAlignErrors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))
	x := writeFile(t, dir, "x.json", `[[0, 1], [1, 1]]`)
	y := writeFile(t, dir, "y.json", `[[0], [2]]`)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"dimension mismatch", []string{"--x", x, "--y", y}, "differ in dimensionality"},
		{"missing file", []string{"--x", filepath.Join(dir, "nope.json"), "--y", y}, "load x"},
		{"checkpoint without save-at", []string{"--x", x, "--y", x, "--checkpoint", filepath.Join(dir, "c.dwc")}, "requires --save-at"},
		{"bad box", []string{"--x", x, "--y", x, "--box", "0:5,0:1"}, "invalid bounding box"},
		{"unknown distance", []string{"--x", x, "--y", x, "--distance", "cosine"}, "unknown distance"},
		{"unknown backend", []string{"--x", x, "--y", x, "--backend", "tpu"}, "unknown backend"},
	}
	for _, tc := range tests {
		_, err := runApp(t, append([]string{"align"}, tc.args...)...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestVerifyRandomTrials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))

	stdout, err := runApp(t, "verify", "--backend", "cpu", "--trials", "6", "--rows", "12", "--cols", "9", "--dim", "2", "--json")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var cases []verifyCase
	if err := json.Unmarshal([]byte(stdout), &cases); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cases) != 6 {
		t.Fatalf("got %d cases want 6", len(cases))
	}
	for _, vc := range cases {
		if !vc.OK {
			t.Fatalf("case %d outside tolerance: %+v", vc.Trial, vc)
		}
		if single := vc.Rows == 1 && vc.Cols == 1; single != (vc.CornerStep == "none") {
			t.Fatalf("case %d %dx%d has corner step %q", vc.Trial, vc.Rows, vc.Cols, vc.CornerStep)
		}
	}
}

func TestVerifyReportsCornerStep(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))
	x := writeFile(t, dir, "x.json", `[[0], [1], [2]]`)
	y := writeFile(t, dir, "y.json", `[[0], [2]]`)

	stdout, err := runApp(t, "verify", "--backend", "cpu", "--x", x, "--y", y, "--json")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var cases []verifyCase
	if err := json.Unmarshal([]byte(stdout), &cases); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []verifyCase{{Rows: 3, Cols: 2, Device: 1, Reference: 1, OK: true, CornerStep: "diag"}}
	if diff := cmp.Diff(want, cases); diff != "" {
		t.Fatalf("verify mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigPath, filepath.Join(dir, "none.yaml"))
	writeFile(t, dir, "x.json", `[[0], [1], [2]]`)
	manifest := writeFile(t, dir, "pairs.yaml", `
pairs:
  - name: worked
    x: x.json
    y: [[0], [2]]
  - name: single
    x: [[0, 0]]
    y: [[3, 4]]
`)

	stdout, err := runApp(t, "batch", "--backend", "cpu", "-f", manifest, "-j", "2")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var outcomes []struct {
		Name string  `json:"name"`
		Cost float64 `json:"cost"`
	}
	if err := json.Unmarshal([]byte(stdout), &outcomes); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(outcomes) != 2 || outcomes[0].Name != "worked" || outcomes[0].Cost != 1 || outcomes[1].Cost != 5 {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestVersionJSON(t *testing.T) {
	stdout, err := runApp(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, `"version"`) || !strings.Contains(stdout, `"go_version"`) {
		t.Fatalf("unexpected version output: %s", stdout)
	}
}
