// Package pipeline runs one match analysis end to end: detection, tracking,
// event inference and aggregation, producing a result.Analysis.
//
// This package is the composition root: it imports from the layer
// packages (l1detections, l2court, l3tracks, l4events, l5stats) and result,
// but none of those packages import pipeline/.
//
// Detection is the only concurrent stage. Frames are read in order and
// handed to a bounded set of detector workers; their results are consumed
// strictly in frame order by the single-threaded tracking stage. A full
// queue stalls the reader rather than dropping frames.
//
// Each Run owns its tracker and event engine, so independent matches may
// be analysed concurrently with separate Runners.
package pipeline
