package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Fields are pointers so that a partial file only overrides what it names;
// the Get* methods supply the built-in default for anything left unset.
type TuningConfig struct {
	// Detection adapter
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`

	// Video detector
	NMSThreshold   *float64 `json:"nms_threshold,omitempty"`
	ModelInputSize *int     `json:"model_input_size,omitempty"`

	// Court model
	MaxConditionNumber *float64 `json:"max_condition_number,omitempty"`
	CourtWidthM        *float64 `json:"court_width_m,omitempty"`
	CourtLengthM       *float64 `json:"court_length_m,omitempty"`

	// Track store
	HitsToConfirm            *int     `json:"hits_to_confirm,omitempty"`
	MaxAge                   *int     `json:"max_age,omitempty"`
	MinIoU                   *float64 `json:"min_iou,omitempty"`
	PlayerPlausibilityMargin *float64 `json:"player_plausibility_margin,omitempty"`
	BallPlausibilityMargin   *float64 `json:"ball_plausibility_margin,omitempty"`

	// Ball filter (pixel units)
	ProcessNoisePos       *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel       *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise      *float64 `json:"measurement_noise,omitempty"`
	InitialVelocityVar    *float64 `json:"initial_velocity_var,omitempty"`
	BallGateMahalanobisSq *float64 `json:"ball_gate_mahalanobis_sq,omitempty"`
	MaxBallSpeedPx        *float64 `json:"max_ball_speed_px,omitempty"`
	BallMaxCoastFrames    *int     `json:"ball_max_coast_frames,omitempty"`
	MaxCovarianceTrace    *float64 `json:"max_covariance_trace,omitempty"`
	BounceMinVelocityPx   *float64 `json:"bounce_min_velocity_px,omitempty"`
	BounceCoastCorrection *bool    `json:"bounce_coast_correction,omitempty"`

	// Event engine (court units)
	FPS                   *float64 `json:"fps,omitempty"`
	MotionThresholdMps    *float64 `json:"motion_threshold_mps,omitempty"`
	MotionOnFrames        *int     `json:"motion_on_frames,omitempty"`
	MotionOffFrames       *int     `json:"motion_off_frames,omitempty"`
	TouchWindow           *int     `json:"touch_window,omitempty"`
	TouchAngleDeg         *float64 `json:"touch_angle_deg,omitempty"`
	TouchMinDisplacementM *float64 `json:"touch_min_displacement_m,omitempty"`
	ProximityRadiusM      *float64 `json:"proximity_radius_m,omitempty"`
	TouchCooldownFrames   *int     `json:"touch_cooldown_frames,omitempty"`
	TieEpsilonM           *float64 `json:"tie_epsilon_m,omitempty"`
	FaultMarginM          *float64 `json:"fault_margin_m,omitempty"`
	WallRegionDepthM      *float64 `json:"wall_region_depth_m,omitempty"`

	// Statistics
	HeatmapCellSizeM *float64 `json:"heatmap_cell_size_m,omitempty"`

	// Pipeline
	Workers       *int `json:"workers,omitempty"`
	QueueSize     *int `json:"queue_size,omitempty"`
	ProgressEvery *int `json:"progress_every,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and parent directories up to the repo
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/padel/l3tracks/
		"../../../../" + DefaultConfigPath, // from internal/padel/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceFloor != nil && (*c.ConfidenceFloor < 0 || *c.ConfidenceFloor > 1) {
		return fmt.Errorf("confidence_floor must be between 0 and 1, got %f", *c.ConfidenceFloor)
	}
	if c.NMSThreshold != nil && (*c.NMSThreshold <= 0 || *c.NMSThreshold > 1) {
		return fmt.Errorf("nms_threshold must be in (0, 1], got %f", *c.NMSThreshold)
	}
	if c.MinIoU != nil && (*c.MinIoU < 0 || *c.MinIoU > 1) {
		return fmt.Errorf("min_iou must be between 0 and 1, got %f", *c.MinIoU)
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"max_condition_number", c.MaxConditionNumber},
		{"court_width_m", c.CourtWidthM},
		{"court_length_m", c.CourtLengthM},
		{"measurement_noise", c.MeasurementNoise},
		{"ball_gate_mahalanobis_sq", c.BallGateMahalanobisSq},
		{"max_ball_speed_px", c.MaxBallSpeedPx},
		{"max_covariance_trace", c.MaxCovarianceTrace},
		{"fps", c.FPS},
		{"touch_angle_deg", c.TouchAngleDeg},
		{"proximity_radius_m", c.ProximityRadiusM},
		{"heatmap_cell_size_m", c.HeatmapCellSizeM},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"player_plausibility_margin", c.PlayerPlausibilityMargin},
		{"ball_plausibility_margin", c.BallPlausibilityMargin},
		{"process_noise_pos", c.ProcessNoisePos},
		{"process_noise_vel", c.ProcessNoiseVel},
		{"initial_velocity_var", c.InitialVelocityVar},
		{"bounce_min_velocity_px", c.BounceMinVelocityPx},
		{"motion_threshold_mps", c.MotionThresholdMps},
		{"touch_min_displacement_m", c.TouchMinDisplacementM},
		{"tie_epsilon_m", c.TieEpsilonM},
		{"fault_margin_m", c.FaultMarginM},
		{"wall_region_depth_m", c.WallRegionDepthM},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.v)
		}
	}

	atLeastOne := []struct {
		name string
		v    *int
	}{
		{"hits_to_confirm", c.HitsToConfirm},
		{"max_age", c.MaxAge},
		{"motion_on_frames", c.MotionOnFrames},
		{"motion_off_frames", c.MotionOffFrames},
		{"touch_window", c.TouchWindow},
		{"workers", c.Workers},
		{"queue_size", c.QueueSize},
		{"model_input_size", c.ModelInputSize},
	}
	for _, p := range atLeastOne {
		if p.v != nil && *p.v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", p.name, *p.v)
		}
	}

	if c.BallMaxCoastFrames != nil && *c.BallMaxCoastFrames < 0 {
		return fmt.Errorf("ball_max_coast_frames must be non-negative, got %d", *c.BallMaxCoastFrames)
	}
	if c.TouchCooldownFrames != nil && *c.TouchCooldownFrames < 0 {
		return fmt.Errorf("touch_cooldown_frames must be non-negative, got %d", *c.TouchCooldownFrames)
	}
	if c.ProgressEvery != nil && *c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be non-negative, got %d", *c.ProgressEvery)
	}
	if c.BallMaxCoastFrames != nil && *c.BallMaxCoastFrames > c.GetMaxAge() {
		return fmt.Errorf("ball_max_coast_frames (%d) must not exceed max_age (%d)", *c.BallMaxCoastFrames, c.GetMaxAge())
	}

	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetConfidenceFloor returns the confidence_floor value or the default.
func (c *TuningConfig) GetConfidenceFloor() float64 { return getFloat(c.ConfidenceFloor, 0.25) }

// GetNMSThreshold returns the nms_threshold value or the default.
func (c *TuningConfig) GetNMSThreshold() float64 { return getFloat(c.NMSThreshold, 0.45) }

// GetModelInputSize returns the model_input_size value or the default.
func (c *TuningConfig) GetModelInputSize() int { return getInt(c.ModelInputSize, 640) }

// GetMaxConditionNumber returns the max_condition_number value or the default.
func (c *TuningConfig) GetMaxConditionNumber() float64 {
	return getFloat(c.MaxConditionNumber, 1e6)
}

// GetCourtWidthM returns the court_width_m value or the default (padel: 10m).
func (c *TuningConfig) GetCourtWidthM() float64 { return getFloat(c.CourtWidthM, 10) }

// GetCourtLengthM returns the court_length_m value or the default (padel: 20m).
func (c *TuningConfig) GetCourtLengthM() float64 { return getFloat(c.CourtLengthM, 20) }

// GetHitsToConfirm returns the hits_to_confirm value or the default.
func (c *TuningConfig) GetHitsToConfirm() int { return getInt(c.HitsToConfirm, 3) }

// GetMaxAge returns the max_age value or the default.
func (c *TuningConfig) GetMaxAge() int { return getInt(c.MaxAge, 30) }

// GetMinIoU returns the min_iou value or the default.
func (c *TuningConfig) GetMinIoU() float64 { return getFloat(c.MinIoU, 0.1) }

// GetPlayerPlausibilityMargin returns the player_plausibility_margin value or the default.
func (c *TuningConfig) GetPlayerPlausibilityMargin() float64 {
	return getFloat(c.PlayerPlausibilityMargin, 5)
}

// GetBallPlausibilityMargin returns the ball_plausibility_margin value or the default.
func (c *TuningConfig) GetBallPlausibilityMargin() float64 {
	return getFloat(c.BallPlausibilityMargin, 8)
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 { return getFloat(c.ProcessNoisePos, 16) }

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 { return getFloat(c.ProcessNoiseVel, 256) }

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 { return getFloat(c.MeasurementNoise, 16) }

// GetInitialVelocityVar returns the initial_velocity_var value or the default.
func (c *TuningConfig) GetInitialVelocityVar() float64 {
	return getFloat(c.InitialVelocityVar, 900)
}

// GetBallGateMahalanobisSq returns the ball_gate_mahalanobis_sq value or the default.
func (c *TuningConfig) GetBallGateMahalanobisSq() float64 {
	return getFloat(c.BallGateMahalanobisSq, 16)
}

// GetMaxBallSpeedPx returns the max_ball_speed_px value or the default.
func (c *TuningConfig) GetMaxBallSpeedPx() float64 { return getFloat(c.MaxBallSpeedPx, 150) }

// GetBallMaxCoastFrames returns the ball_max_coast_frames value or the default.
func (c *TuningConfig) GetBallMaxCoastFrames() int { return getInt(c.BallMaxCoastFrames, 10) }

// GetMaxCovarianceTrace returns the max_covariance_trace value or the default.
func (c *TuningConfig) GetMaxCovarianceTrace() float64 {
	return getFloat(c.MaxCovarianceTrace, 1e6)
}

// GetBounceMinVelocityPx returns the bounce_min_velocity_px value or the default.
func (c *TuningConfig) GetBounceMinVelocityPx() float64 {
	return getFloat(c.BounceMinVelocityPx, 2)
}

// GetBounceCoastCorrection returns the bounce_coast_correction value or the default.
func (c *TuningConfig) GetBounceCoastCorrection() bool {
	if c.BounceCoastCorrection == nil {
		return false
	}
	return *c.BounceCoastCorrection
}

// GetFPS returns the fps value or the default.
func (c *TuningConfig) GetFPS() float64 { return getFloat(c.FPS, 30) }

// GetMotionThresholdMps returns the motion_threshold_mps value or the default.
func (c *TuningConfig) GetMotionThresholdMps() float64 {
	return getFloat(c.MotionThresholdMps, 2.0)
}

// GetMotionOnFrames returns the motion_on_frames value or the default.
func (c *TuningConfig) GetMotionOnFrames() int { return getInt(c.MotionOnFrames, 3) }

// GetMotionOffFrames returns the motion_off_frames value or the default.
func (c *TuningConfig) GetMotionOffFrames() int { return getInt(c.MotionOffFrames, 5) }

// GetTouchWindow returns the touch_window value or the default.
func (c *TuningConfig) GetTouchWindow() int { return getInt(c.TouchWindow, 3) }

// GetTouchAngleDeg returns the touch_angle_deg value or the default.
func (c *TuningConfig) GetTouchAngleDeg() float64 { return getFloat(c.TouchAngleDeg, 60) }

// GetTouchMinDisplacementM returns the touch_min_displacement_m value or the default.
func (c *TuningConfig) GetTouchMinDisplacementM() float64 {
	return getFloat(c.TouchMinDisplacementM, 0.05)
}

// GetProximityRadiusM returns the proximity_radius_m value or the default.
func (c *TuningConfig) GetProximityRadiusM() float64 { return getFloat(c.ProximityRadiusM, 1.5) }

// GetTouchCooldownFrames returns the touch_cooldown_frames value or the default.
func (c *TuningConfig) GetTouchCooldownFrames() int { return getInt(c.TouchCooldownFrames, 5) }

// GetTieEpsilonM returns the tie_epsilon_m value or the default.
func (c *TuningConfig) GetTieEpsilonM() float64 { return getFloat(c.TieEpsilonM, 1e-6) }

// GetFaultMarginM returns the fault_margin_m value or the default.
func (c *TuningConfig) GetFaultMarginM() float64 { return getFloat(c.FaultMarginM, 1.0) }

// GetWallRegionDepthM returns the wall_region_depth_m value or the default.
func (c *TuningConfig) GetWallRegionDepthM() float64 { return getFloat(c.WallRegionDepthM, 0.5) }

// GetHeatmapCellSizeM returns the heatmap_cell_size_m value or the default.
func (c *TuningConfig) GetHeatmapCellSizeM() float64 { return getFloat(c.HeatmapCellSizeM, 1.0) }

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int { return getInt(c.Workers, 4) }

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int { return getInt(c.QueueSize, 16) }

// GetProgressEvery returns the progress_every value or the default.
func (c *TuningConfig) GetProgressEvery() int { return getInt(c.ProgressEvery, 300) }
