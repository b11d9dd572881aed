// Package progress receives diagnostic import progress. Nothing reported
// here feeds back into the pipeline.
package progress

import (
	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// Sink receives progress of entity imports.
type Sink interface {
	// Page is called after every committed page or chunk with the count so
	// far and the last id seen.
	Page(entity models.EntityType, count int, lastID int64)
	// Completed is called once an entity import has finished.
	Completed(entity models.EntityType, total, errors int)
	// Failed is called when an entity import aborts, with the count
	// committed before the fault.
	Failed(entity models.EntityType, message string, count int)
}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Page(entity models.EntityType, count int, lastID int64) {
	for _, s := range m {
		s.Page(entity, count, lastID)
	}
}

func (m Multi) Completed(entity models.EntityType, total, errors int) {
	for _, s := range m {
		s.Completed(entity, total, errors)
	}
}

func (m Multi) Failed(entity models.EntityType, message string, count int) {
	for _, s := range m {
		s.Failed(entity, message, count)
	}
}

// LogSink writes progress to the structured log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Page(entity models.EntityType, count int, lastID int64) {
	s.log.Info("Import progress", map[string]interface{}{
		"entity":  entity,
		"count":   count,
		"last_id": lastID,
	})
}

func (s *LogSink) Completed(entity models.EntityType, total, errors int) {
	fields := map[string]interface{}{
		"entity": entity,
		"total":  total,
		"errors": errors,
	}
	if errors > 0 {
		s.log.Warn("Import completed with errors", fields)
		return
	}
	s.log.Info("Import completed", fields)
}

func (s *LogSink) Failed(entity models.EntityType, message string, count int) {
	s.log.Warn("Import failed", map[string]interface{}{
		"entity":   entity,
		"error":    message,
		"imported": count,
	})
}
