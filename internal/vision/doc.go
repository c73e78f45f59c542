// Package vision binds the detection layer to OpenCV.
//
// Responsibilities: decoding video files into frames (VideoSource) and
// running a YOLO-style ONNX model over them (ONNXDetector). Both satisfy
// the l1detections FrameSource and Detector contracts.
//
// The OpenCV bindings are cgo and are compiled only with the "opencv"
// build tag. Without it the constructors return ErrNoOpenCV and the rest of
// the pipeline (recorded detections, storage, reports) is unaffected.
// Output decoding and suppression are pure Go and always built.
package vision
