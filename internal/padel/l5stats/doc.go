// Package l5stats owns Layer 5 (Statistics) of the padel data model.
//
// Responsibilities: per-player zone time, touch counts, duel lengths,
// rallies played, hit errors and court heatmaps, plus match totals. Every
// figure is recomputed from the complete track histories and rallies; no
// counter is maintained incrementally.
// Key types: Stats, PlayerStats, MatchStats.
//
// Dependency rule: L5 may depend on L1-L4. No SQL/database code is
// allowed in this package.
package l5stats
