package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxeltk/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Parallel.Workers = 3
	cfg.Phantom.Size = []int{24, 24, 8}
	cfg.Phantom.Spacing = []float64{1, 1, 2}
	cfg.Phantom.Noise = 0
	cfg.Registration.Parameters = []float64{3, -2, 0, 0, 0, 10, 100, 100, 100, 0, 0, 0}
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Slices = true

	p, err := New(cfg)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"phantom", "smooth", "gradient", "resample", "restore", "similarity", "landmarks", "output"}, names)

	assert.Equal(t, res.Phantom.Attributes(), res.Resampled.Attributes())
	assert.Equal(t, 1, res.Gradient.T())

	// Undoing the transformation brings the volume back into alignment.
	assert.Greater(t, res.Aligned.NCC, res.Misaligned.NCC)
	assert.Less(t, res.Aligned.RMSE, res.Misaligned.RMSE)
	assert.Greater(t, res.Aligned.NCC, 0.9)

	assert.Greater(t, res.LandmarkError, 0.0)
	assert.LessOrEqual(t, res.ClosestPointError, res.LandmarkError)
	assert.InDelta(t, 0, res.LandmarkResidual, 1e-9)

	// Five volumes plus one slice per z for two volumes.
	assert.Len(t, res.Files, 5+2*8)
	for _, f := range res.Files {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, "gradient.vtk"))
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, "slices", "restored", "slice_z_007.tiff"))
}

func TestRunVariants(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"spectral", func(c *config.Config) { c.Filter.Spectral = true }},
		{"cubic", func(c *config.Config) { c.Registration.Interpolation = "cubic" }},
		{"unsmoothed", func(c *config.Config) { c.Filter.Sigma = 0 }},
		{"frames", func(c *config.Config) { c.Phantom.Frames = 2 }},
		{"gaussian error", func(c *config.Config) { c.Registration.ErrorFunction = "gaussian" }},
		{"distance error", func(c *config.Config) { c.Registration.ErrorFunction = "distance" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Output.VTK = false
			tt.modify(cfg)

			p, err := New(cfg)
			require.NoError(t, err)
			res, err := p.Run(context.Background())
			require.NoError(t, err)
			assert.Empty(t, res.Files)
			assert.Greater(t, res.Aligned.NCC, res.Misaligned.NCC)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Registration.Bins = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunUsesConfiguredWorkers(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	for _, spectral := range []bool{false, true} {
		buf.Reset()
		cfg := testConfig(t)
		cfg.Parallel.Workers = 1
		cfg.Filter.Spectral = spectral
		cfg.Output.Slices = true

		p, err := New(cfg)
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)

		traversals := 0
		sc := bufio.NewScanner(&buf)
		for sc.Scan() {
			if !bytes.Contains(sc.Bytes(), []byte(`"component":"voxel"`)) {
				continue
			}
			var rec struct {
				Workers *int `json:"workers"`
			}
			require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
			require.NotNil(t, rec.Workers, sc.Text())
			assert.Equal(t, 1, *rec.Workers, sc.Text())
			traversals++
		}
		require.NoError(t, sc.Err())
		// phantom, smoothing, gradient, two resamples, four similarity
		// reductions and the slice windows at least.
		assert.Greater(t, traversals, 8, "spectral %v", spectral)
	}
}
