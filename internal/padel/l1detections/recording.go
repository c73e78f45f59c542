package l1detections

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// RecordedFrame is one line of a detection recording.
type RecordedFrame struct {
	FrameIndex int            `json:"frame_index"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Detections []RawDetection `json:"detections"`
}

// Recording replays detector output captured to JSONL, one frame per line.
// It acts as both the FrameSource and the Detector for a run, so the core
// can be exercised without video decoding or model inference.
type Recording struct {
	scanner *bufio.Scanner
	line    int

	mu      sync.Mutex
	pending map[int][]RawDetection
}

// NewRecording reads a recording from r.
func NewRecording(r io.Reader) *Recording {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Recording{scanner: sc, pending: make(map[int][]RawDetection)}
}

// Next returns the next recorded frame, or io.EOF.
func (r *Recording) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("read recording: %w", err)
			}
			return Frame{}, io.EOF
		}
		r.line++
		data := r.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec RecordedFrame
		if err := json.Unmarshal(data, &rec); err != nil {
			return Frame{}, fmt.Errorf("recording line %d: %w", r.line, err)
		}
		r.mu.Lock()
		r.pending[rec.FrameIndex] = rec.Detections
		r.mu.Unlock()
		return Frame{Index: rec.FrameIndex, Width: rec.Width, Height: rec.Height}, nil
	}
}

// Detect returns the recorded detections for frame. Each frame's
// detections are handed out once.
func (r *Recording) Detect(_ context.Context, frame Frame, _ float64) ([]RawDetection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dets, ok := r.pending[frame.Index]
	if !ok {
		return nil, fmt.Errorf("no recorded detections for frame %d", frame.Index)
	}
	delete(r.pending, frame.Index)
	return dets, nil
}

// RecordingWriter writes detector output as JSONL.
type RecordingWriter struct {
	enc *json.Encoder
}

// NewRecordingWriter creates a writer over w.
func NewRecordingWriter(w io.Writer) *RecordingWriter {
	return &RecordingWriter{enc: json.NewEncoder(w)}
}

// Write appends one frame.
func (w *RecordingWriter) Write(frame Frame, dets []RawDetection) error {
	if dets == nil {
		dets = []RawDetection{}
	}
	return w.enc.Encode(RecordedFrame{
		FrameIndex: frame.Index,
		Width:      frame.Width,
		Height:     frame.Height,
		Detections: dets,
	})
}
