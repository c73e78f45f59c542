// Package l3tracks owns Layer 3 (Tracks) of the padel data model.
//
// Responsibilities: per-class data association (IoU cost, Hungarian
// assignment), the tentative/confirmed/lost/removed lifecycle, the fixed
// four-player identity universe, and the single ball track with its
// Kalman motion filter, plausibility gate and bounce heuristic.
// Key types: Tracker, Track, HistoryPoint.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4 and above.
// No SQL/database code is allowed in this package. A Tracker is owned by
// one analysis run and is not safe for concurrent use.
package l3tracks
