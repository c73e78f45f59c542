// Package l4events owns Layer 4 (Events) of the padel data model.
//
// Responsibilities: rally segmentation from court-space ball speed, touch
// inference from direction changes near a player, fault inference
// (out of bounds, direct wall contact) and deterministic tie-breaking of
// touch attribution.
// Key types: Engine, FrameState, Rally, TouchEvent, FaultEvent.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5 and above.
// No SQL/database code is allowed in this package. The engine sees only
// per-frame track samples, so replaying stored histories reproduces the
// live output exactly.
package l4events
