// Package l2court owns Layer 2 (Court) of the padel data model.
//
// Responsibilities: the planar homography between camera pixels and court
// metres, bounds tests with a noise margin, and the zone, side and wall
// geometry that events and statistics are expressed in.
// Key types: Model, PixelPoint, CourtPosition, Zone.
//
// Dependency rule: L2 may depend on L1 but never on L3 and above.
// A Model is immutable once constructed and safe for concurrent use.
package l2court
