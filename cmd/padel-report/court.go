package main

import (
	"fmt"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
)

// loadTuning reads the tuning file at path, or returns the built-in
// defaults when path is empty.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// courtFromCalibration builds the court model of a calibration file.
func courtFromCalibration(cal *config.Calibration, tuning *config.TuningConfig) (*l2court.Model, error) {
	var corners [4]l2court.PixelPoint
	for i, p := range cal.Corners.Ordered() {
		corners[i] = l2court.PixelPoint{X: p.X, Y: p.Y}
	}
	width, length := cal.CourtDimensions(tuning)
	m, err := l2court.New(corners, l2court.Dimensions{Width: width, Length: length}, l2court.ModelConfigFromTuning(tuning))
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	return m, nil
}
