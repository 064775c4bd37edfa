package storage

import "slack-logger/internal/model"

// Recorder is the durable message log.
// Load returns records in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Append(rec model.Record) error
	Load() ([]model.Record, error)
}
