// Package sqlite persists match analyses in a SQLite database.
//
// A run's artifact is stored relationally (runs, tracks, track samples,
// rallies, touches, faults) so trajectories and events can be queried
// directly; aggregate blocks (player stats, summary, warnings, court
// calibration) are kept as JSON columns. LoadAnalysis rebuilds the same
// result.Analysis that was persisted.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary; Open brings a database up to the latest version.
package sqlite
