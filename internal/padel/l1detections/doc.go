// Package l1detections owns Layer 1 (Detections) of the padel data model.
//
// Responsibilities: the detector and frame-source capability interfaces,
// normalisation of raw detector output into typed per-frame Detections
// (class mapping, confidence floor, bbox clipping) and JSONL replay of
// recorded detector output.
// Key types: Detection, RawDetection, Frame, Adapter.
//
// Dependency rule: L1 depends on nothing above it. The adapter is a pure
// per-frame transform and never looks at other frames.
package l1detections
