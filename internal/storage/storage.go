package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/channel-relay/internal/domain"
)

// Package storage holds the dedup ledger of processed source messages.

// Ledger records which (message, channel) pairs were already handled.
// Marking an already-recorded key is a no-op, never an error.
type Ledger interface {
	Close() error
	HasProcessed(key domain.MessageKey) (bool, error)
	MarkProcessed(key domain.MessageKey) error
	// Prune drops records past retention if the cleanup interval has elapsed.
	Prune() error
}

// Options controls retention characteristics for concrete ledger implementations.
type Options struct {
	Retention       time.Duration
	CleanupInterval time.Duration
}

const (
	defaultRetention       = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewLedger creates the configured ledger backend.
func NewLedger(typ, path string, opts Options) (Ledger, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopLedger{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt ledger requires a path")
		}
		return openBolt(path, opts)
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite ledger requires a path")
		}
		return openSQLite(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopLedger struct{}

func (noopLedger) Close() error                                 { return nil }
func (noopLedger) HasProcessed(domain.MessageKey) (bool, error) { return false, nil }
func (noopLedger) MarkProcessed(domain.MessageKey) error        { return nil }
func (noopLedger) Prune() error                                 { return nil }
