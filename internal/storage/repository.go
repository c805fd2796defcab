// Package storage persists engine state between runs: named request
// descriptors, recently used targets, and request history. The JSON
// implementation writes one file per saved request plus flat list files,
// all via atomic replace so a crash never leaves a half-written file.
package storage

import (
	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/domain"
)

// Repository defines persistence operations for the engine.
type Repository interface {
	// Saved request operations
	SaveRequest(name string, req descriptor.RequestDescriptor) error
	LoadRequest(name string) (*descriptor.RequestDescriptor, error)
	ListRequests() ([]string, error)
	DeleteRequest(name string) error

	// Recent targets
	SaveRecentTarget(target domain.Target) error
	GetRecentTargets() ([]domain.Target, error)
	ClearRecentTargets() error

	// History operations
	AddHistoryEntry(entry domain.HistoryEntry) error
	GetHistory(limit int) ([]domain.HistoryEntry, error)
	ClearHistory() error
}
