package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCalibration = `
source: court2.mp4
fps: 25
frame: {width: 1280, height: 720}
corners:
  baseline_left:  {x: 100, y: 700}
  baseline_right: {x: 1180, y: 700}
  far_right:      {x: 900, y: 150}
  far_left:       {x: 380, y: 150}
`

func TestParseCalibration(t *testing.T) {
	cal, err := ParseCalibration([]byte(validCalibration))
	require.NoError(t, err)

	want := &Calibration{
		Source: "court2.mp4",
		FPS:    25,
		Frame:  &FrameSize{Width: 1280, Height: 720},
		Corners: Corners{
			BaselineLeft:  Point{100, 700},
			BaselineRight: Point{1180, 700},
			FarRight:      Point{900, 150},
			FarLeft:       Point{380, 150},
		},
	}
	if diff := cmp.Diff(want, cal); diff != "" {
		t.Errorf("calibration mismatch (-want +got):\n%s", diff)
	}

	ordered := cal.Corners.Ordered()
	assert.Equal(t, Point{100, 700}, ordered[0])
	assert.Equal(t, Point{380, 150}, ordered[3])

	w, l := cal.CourtDimensions(EmptyTuningConfig())
	assert.Equal(t, 10.0, w)
	assert.Equal(t, 20.0, l)
}

func TestParseCalibrationCourtOverride(t *testing.T) {
	data := validCalibration + "court: {width_m: 8, length_m: 18}\n"
	cal, err := ParseCalibration([]byte(data))
	require.NoError(t, err)

	w, l := cal.CourtDimensions(EmptyTuningConfig())
	assert.Equal(t, 8.0, w)
	assert.Equal(t, 18.0, l)
}

func TestCalibrationFrameDimensions(t *testing.T) {
	cal, err := ParseCalibration([]byte(validCalibration))
	require.NoError(t, err)
	w, h := cal.FrameDimensions()
	if w != 1280 || h != 720 {
		t.Errorf("FrameDimensions() = %dx%d, want 1280x720", w, h)
	}

	cal.Frame = nil
	if w, h := cal.FrameDimensions(); w != 0 || h != 0 {
		t.Errorf("FrameDimensions() without frame = %dx%d, want 0x0", w, h)
	}
}

func TestValidateCalibrationRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: ""},
		{name: "missing corners", yaml: "fps: 30\n"},
		{name: "missing fps", yaml: `
corners:
  baseline_left:  {x: 1, y: 2}
  baseline_right: {x: 3, y: 4}
  far_right:      {x: 5, y: 6}
  far_left:       {x: 7, y: 8}
`},
		{name: "zero fps", yaml: `
fps: 0
corners:
  baseline_left:  {x: 1, y: 2}
  baseline_right: {x: 3, y: 4}
  far_right:      {x: 5, y: 6}
  far_left:       {x: 7, y: 8}
`},
		{name: "missing far_left", yaml: `
fps: 30
corners:
  baseline_left:  {x: 1, y: 2}
  baseline_right: {x: 3, y: 4}
  far_right:      {x: 5, y: 6}
`},
		{name: "unknown key", yaml: validCalibration + "zoom: 2\n"},
		{name: "string coordinate", yaml: `
fps: 30
corners:
  baseline_left:  {x: left, y: 2}
  baseline_right: {x: 3, y: 4}
  far_right:      {x: 5, y: 6}
  far_left:       {x: 7, y: 8}
`},
		{name: "negative court width", yaml: validCalibration + "court: {width_m: -1, length_m: 20}\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, ValidateCalibration([]byte(tt.yaml)))
		})
	}
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCalibration), 0644))

	cal, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, cal.FPS)

	_, err = LoadCalibration(filepath.Join(dir, "cal.json"))
	assert.Error(t, err)

	_, err = LoadCalibration(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleCalibrationFile(t *testing.T) {
	for _, p := range []string{"../../config/calibration.example.yaml", "config/calibration.example.yaml"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cal, err := LoadCalibration(p)
		require.NoError(t, err)
		assert.Equal(t, 30.0, cal.FPS)
		return
	}
	t.Skip("example calibration not found")
}
