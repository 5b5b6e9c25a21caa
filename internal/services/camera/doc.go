// Package camera turns a camera's HTTP snapshot endpoint into a stream of
// frame messages for the ingest pipeline.
//
// Each tick of the frame interval yields one message whose id is the capture
// time in Unix milliseconds and whose only attachment is the snapshot URL.
// The stream ends when the runtime limit elapses.
package camera
