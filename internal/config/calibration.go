package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// calibrationSchema constrains calibration files. Definitions are closed, so
// misspelled keys are rejected rather than silently ignored.
const calibrationSchema = `
#Point: {
	x: number
	y: number
}

#Calibration: {
	source?: string
	fps:     number & >0 & <=1000
	frame?: {
		width:  int & >0
		height: int & >0
	}
	court?: {
		width_m:  number & >0
		length_m: number & >0
	}
	corners: {
		baseline_left:  #Point
		baseline_right: #Point
		far_right:      #Point
		far_left:       #Point
	}
}
`

// Point is a pixel coordinate in a calibration file.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Corners lists the four court corners clockwise from the near baseline.
type Corners struct {
	BaselineLeft  Point `yaml:"baseline_left" json:"baseline_left"`
	BaselineRight Point `yaml:"baseline_right" json:"baseline_right"`
	FarRight      Point `yaml:"far_right" json:"far_right"`
	FarLeft       Point `yaml:"far_left" json:"far_left"`
}

// Ordered returns the corners in construction order.
func (c Corners) Ordered() [4]Point {
	return [4]Point{c.BaselineLeft, c.BaselineRight, c.FarRight, c.FarLeft}
}

// FrameSize is the expected video frame size in pixels.
type FrameSize struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// CourtSize is the real-world court size in metres.
type CourtSize struct {
	WidthM  float64 `yaml:"width_m" json:"width_m"`
	LengthM float64 `yaml:"length_m" json:"length_m"`
}

// Calibration describes one fixed camera view of one court.
type Calibration struct {
	Source  string     `yaml:"source" json:"source"`
	FPS     float64    `yaml:"fps" json:"fps"`
	Frame   *FrameSize `yaml:"frame" json:"frame,omitempty"`
	Court   *CourtSize `yaml:"court" json:"court,omitempty"`
	Corners Corners    `yaml:"corners" json:"corners"`
}

// CourtDimensions returns the calibrated court size, falling back to the
// tuning defaults when the file does not name one.
func (c *Calibration) CourtDimensions(tuning *TuningConfig) (width, length float64) {
	if c.Court != nil {
		return c.Court.WidthM, c.Court.LengthM
	}
	return tuning.GetCourtWidthM(), tuning.GetCourtLengthM()
}

// FrameDimensions returns the calibrated frame size, or zeros when the
// file does not name one.
func (c *Calibration) FrameDimensions() (width, height int) {
	if c.Frame == nil {
		return 0, 0
	}
	return c.Frame.Width, c.Frame.Height
}

// LoadCalibration reads a YAML calibration file, validates it against the
// calibration schema and decodes it.
func LoadCalibration(path string) (*Calibration, error) {
	cleanPath := filepath.Clean(path)
	switch filepath.Ext(cleanPath) {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("calibration file must have .yaml or .yml extension, got %q", filepath.Ext(cleanPath))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	return ParseCalibration(data)
}

// ParseCalibration validates and decodes calibration YAML.
func ParseCalibration(data []byte) (*Calibration, error) {
	if err := ValidateCalibration(data); err != nil {
		return nil, err
	}

	var cal Calibration
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("cannot decode calibration: %w", err)
	}
	return &cal, nil
}

// ValidateCalibration checks calibration YAML against the CUE schema.
func ValidateCalibration(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cannot unmarshal calibration YAML: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("calibration file is empty")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(calibrationSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("calibration schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Calibration"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("cannot encode calibration: %w", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("calibration validation failed: %w", err)
	}
	return nil
}
