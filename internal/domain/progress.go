package domain

import "time"

// ProgressUpdate is one tick of the composition's progress surface (§4.9):
// which input streams have been fully consumed so far and the highest
// output timestamp reached, fanned out over the websocket hub and/or
// written to the stats file at completion.
type ProgressUpdate struct {
	ProcessedStreamIDs []MediaStreamID `json:"processed_stream_ids"`
	MaxTimestamp       time.Duration   `json:"max_timestamp"`
	Done               bool            `json:"done"`
}
