// Package sync pushes WBS elements and activities to Jira, pulls remote
// edits back, and processes Jira webhooks. Every operation, ignores
// included, leaves exactly one record in the append-only audit log.
package sync

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
)

// AuditLog is the append-only sync history, partitioned by integration.
// Records are never mutated or removed; within one integration they keep
// insertion order.
type AuditLog struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]domain.SyncLogEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{entries: make(map[uuid.UUID][]domain.SyncLogEntry)}
}

// Record appends one entry. The ID and timestamp are assigned here if
// the caller left them zero.
func (l *AuditLog) Record(entry domain.SyncLogEntry) domain.SyncLogEntry {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.entries[entry.IntegrationID] = append(l.entries[entry.IntegrationID], entry)
	l.mu.Unlock()

	log.Debug().
		Str("integration_id", entry.IntegrationID.String()).
		Str("type", string(entry.SyncType)).
		Str("status", string(entry.Status)).
		Str("action", entry.Action).
		Msg("Sync audit record written")

	return entry
}

// Query returns the entries for an integration within [start, end], in
// insertion order. Zero bounds are open.
func (l *AuditLog) Query(integrationID uuid.UUID, start, end time.Time) []domain.SyncLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []domain.SyncLogEntry
	for _, e := range l.entries[integrationID] {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// ByMapping returns every entry that references the mapping, across the
// integration's history.
func (l *AuditLog) ByMapping(integrationID, mappingID uuid.UUID) []domain.SyncLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []domain.SyncLogEntry
	for _, e := range l.entries[integrationID] {
		if e.MappingID != nil && *e.MappingID == mappingID {
			result = append(result, e)
		}
	}
	return result
}

// Count reports the number of entries for an integration.
func (l *AuditLog) Count(integrationID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[integrationID])
}

// Load reads an integration's history from its JSONL file. A missing
// file is an empty history, not an error.
func (l *AuditLog) Load(dir string, integrationID uuid.UUID) error {
	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", integrationID))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var entries []domain.SyncLogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e domain.SyncLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.Warn().Err(err).Str("integration_id", integrationID.String()).Msg("Skipping invalid audit log line")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading audit log: %w", err)
	}

	l.mu.Lock()
	l.entries[integrationID] = entries
	l.mu.Unlock()

	log.Info().Str("integration_id", integrationID.String()).Int("count", len(entries)).Msg("Loaded sync audit log")
	return nil
}

// Save persists an integration's history to a JSONL file via an atomic
// rename.
func (l *AuditLog) Save(dir string, integrationID uuid.UUID) error {
	l.mu.RLock()
	entries := l.entries[integrationID]
	l.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.jsonl", integrationID))
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp audit file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, e := range entries {
		if err := encoder.Encode(e); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode audit entry: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush audit file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close audit file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename audit file: %w", err)
	}

	log.Info().Str("integration_id", integrationID.String()).Int("count", len(entries)).Msg("Sync audit log saved")
	return nil
}
