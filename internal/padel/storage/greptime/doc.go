// Package greptime exports match trajectories and touches to GreptimeDB
// as time series, one row per track sample, for dashboarding alongside
// other match telemetry.
//
// Rows are timestamped at the video clock: the run's start time plus
// frame_index / fps.
package greptime
