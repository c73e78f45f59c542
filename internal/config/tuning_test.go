package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "confidence_floor": 0.4,
  "hits_to_confirm": 5,
  "ball_max_coast_frames": 6,
  "bounce_coast_correction": true,
  "fps": 50
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.GetConfidenceFloor())
	assert.Equal(t, 5, cfg.GetHitsToConfirm())
	assert.Equal(t, 6, cfg.GetBallMaxCoastFrames())
	assert.True(t, cfg.GetBounceCoastCorrection())
	assert.Equal(t, 50.0, cfg.GetFPS())

	// Unset fields keep their defaults.
	assert.Equal(t, 30, cfg.GetMaxAge())
	assert.Equal(t, 1.5, cfg.GetProximityRadiusM())
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	assert.Error(t, err)
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"confidence_floor": "high"`), 0644))

	_, err := LoadTuningConfig(configPath)
	assert.Error(t, err)
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("config/tuning.defaults.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json extension")
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "huge.json")
	big := `{"fps": 30, "pad": "` + strings.Repeat("x", 1024*1024) + `"}`
	require.NoError(t, os.WriteFile(configPath, []byte(big), 0644))

	_, err := LoadTuningConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"fps": 0}`), 0644))

	_, err := LoadTuningConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr string
	}{
		{name: "empty config is valid", cfg: &TuningConfig{}},
		{name: "floor above one", cfg: &TuningConfig{ConfidenceFloor: ptrFloat64(1.2)}, wantErr: "confidence_floor"},
		{name: "negative floor", cfg: &TuningConfig{ConfidenceFloor: ptrFloat64(-0.1)}, wantErr: "confidence_floor"},
		{name: "zero nms threshold", cfg: &TuningConfig{NMSThreshold: ptrFloat64(0)}, wantErr: "nms_threshold"},
		{name: "zero input size", cfg: &TuningConfig{ModelInputSize: ptrInt(0)}, wantErr: "model_input_size"},
		{name: "min_iou above one", cfg: &TuningConfig{MinIoU: ptrFloat64(2)}, wantErr: "min_iou"},
		{name: "zero measurement noise", cfg: &TuningConfig{MeasurementNoise: ptrFloat64(0)}, wantErr: "measurement_noise"},
		{name: "negative margin", cfg: &TuningConfig{FaultMarginM: ptrFloat64(-1)}, wantErr: "fault_margin_m"},
		{name: "zero hits", cfg: &TuningConfig{HitsToConfirm: ptrInt(0)}, wantErr: "hits_to_confirm"},
		{name: "zero workers", cfg: &TuningConfig{Workers: ptrInt(0)}, wantErr: "workers"},
		{name: "negative coast", cfg: &TuningConfig{BallMaxCoastFrames: ptrInt(-1)}, wantErr: "ball_max_coast_frames"},
		{name: "coast beyond max age", cfg: &TuningConfig{BallMaxCoastFrames: ptrInt(40), MaxAge: ptrInt(30)}, wantErr: "must not exceed max_age"},
		{name: "zero cooldown allowed", cfg: &TuningConfig{TouchCooldownFrames: ptrInt(0)}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	require.NotNil(t, cfg)

	// Every field in the defaults file must agree with the built-in fallbacks.
	empty := EmptyTuningConfig()
	assert.Equal(t, empty.GetConfidenceFloor(), cfg.GetConfidenceFloor())
	assert.Equal(t, empty.GetMaxConditionNumber(), cfg.GetMaxConditionNumber())
	assert.Equal(t, empty.GetCourtWidthM(), cfg.GetCourtWidthM())
	assert.Equal(t, empty.GetCourtLengthM(), cfg.GetCourtLengthM())
	assert.Equal(t, empty.GetHitsToConfirm(), cfg.GetHitsToConfirm())
	assert.Equal(t, empty.GetMaxAge(), cfg.GetMaxAge())
	assert.Equal(t, empty.GetMinIoU(), cfg.GetMinIoU())
	assert.Equal(t, empty.GetPlayerPlausibilityMargin(), cfg.GetPlayerPlausibilityMargin())
	assert.Equal(t, empty.GetBallPlausibilityMargin(), cfg.GetBallPlausibilityMargin())
	assert.Equal(t, empty.GetProcessNoisePos(), cfg.GetProcessNoisePos())
	assert.Equal(t, empty.GetProcessNoiseVel(), cfg.GetProcessNoiseVel())
	assert.Equal(t, empty.GetMeasurementNoise(), cfg.GetMeasurementNoise())
	assert.Equal(t, empty.GetInitialVelocityVar(), cfg.GetInitialVelocityVar())
	assert.Equal(t, empty.GetBallGateMahalanobisSq(), cfg.GetBallGateMahalanobisSq())
	assert.Equal(t, empty.GetMaxBallSpeedPx(), cfg.GetMaxBallSpeedPx())
	assert.Equal(t, empty.GetBallMaxCoastFrames(), cfg.GetBallMaxCoastFrames())
	assert.Equal(t, empty.GetMaxCovarianceTrace(), cfg.GetMaxCovarianceTrace())
	assert.Equal(t, empty.GetBounceMinVelocityPx(), cfg.GetBounceMinVelocityPx())
	assert.Equal(t, empty.GetBounceCoastCorrection(), cfg.GetBounceCoastCorrection())
	assert.Equal(t, empty.GetFPS(), cfg.GetFPS())
	assert.Equal(t, empty.GetMotionThresholdMps(), cfg.GetMotionThresholdMps())
	assert.Equal(t, empty.GetMotionOnFrames(), cfg.GetMotionOnFrames())
	assert.Equal(t, empty.GetMotionOffFrames(), cfg.GetMotionOffFrames())
	assert.Equal(t, empty.GetTouchWindow(), cfg.GetTouchWindow())
	assert.Equal(t, empty.GetTouchAngleDeg(), cfg.GetTouchAngleDeg())
	assert.Equal(t, empty.GetTouchMinDisplacementM(), cfg.GetTouchMinDisplacementM())
	assert.Equal(t, empty.GetProximityRadiusM(), cfg.GetProximityRadiusM())
	assert.Equal(t, empty.GetTouchCooldownFrames(), cfg.GetTouchCooldownFrames())
	assert.Equal(t, empty.GetTieEpsilonM(), cfg.GetTieEpsilonM())
	assert.Equal(t, empty.GetFaultMarginM(), cfg.GetFaultMarginM())
	assert.Equal(t, empty.GetWallRegionDepthM(), cfg.GetWallRegionDepthM())
	assert.Equal(t, empty.GetHeatmapCellSizeM(), cfg.GetHeatmapCellSizeM())
	assert.Equal(t, empty.GetWorkers(), cfg.GetWorkers())
	assert.Equal(t, empty.GetQueueSize(), cfg.GetQueueSize())
	assert.Equal(t, empty.GetProgressEvery(), cfg.GetProgressEvery())
	assert.Equal(t, empty.GetNMSThreshold(), cfg.GetNMSThreshold())
	assert.Equal(t, empty.GetModelInputSize(), cfg.GetModelInputSize())
}
