package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

func TestAuditRecordAssignsIdentity(t *testing.T) {
	audit := NewAuditLog()
	integrationID := uuid.New()

	entry := audit.Record(domain.SyncLogEntry{
		IntegrationID: integrationID,
		SyncType:      domain.SyncPush,
		Status:        domain.SyncSuccess,
	})

	if entry.ID == uuid.Nil {
		t.Error("record should assign an ID")
	}
	if entry.Timestamp.IsZero() {
		t.Error("record should assign a timestamp")
	}
	if audit.Count(integrationID) != 1 {
		t.Errorf("count = %d, want 1", audit.Count(integrationID))
	}
}

func TestAuditQueryTimeRange(t *testing.T) {
	audit := NewAuditLog()
	integrationID := uuid.New()

	times := []time.Time{
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	for i, ts := range times {
		audit.Record(domain.SyncLogEntry{
			IntegrationID: integrationID,
			SyncType:      domain.SyncPush,
			Status:        domain.SyncSuccess,
			ItemsSynced:   i + 1,
			Timestamp:     ts,
		})
	}

	got := audit.Query(integrationID,
		time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || got[0].ItemsSynced != 2 {
		t.Errorf("ranged query = %+v, want only the middle entry", got)
	}

	// Zero bounds are open.
	if got := audit.Query(integrationID, time.Time{}, time.Time{}); len(got) != 3 {
		t.Errorf("open query = %d entries, want 3", len(got))
	}

	if got := audit.Query(uuid.New(), time.Time{}, time.Time{}); got != nil {
		t.Errorf("unknown integration = %+v, want nil", got)
	}
}

func TestAuditByMapping(t *testing.T) {
	audit := NewAuditLog()
	integrationID := uuid.New()
	mappingID := uuid.New()
	otherID := uuid.New()

	audit.Record(domain.SyncLogEntry{IntegrationID: integrationID, MappingID: &mappingID, SyncType: domain.SyncPull, Status: domain.SyncSuccess})
	audit.Record(domain.SyncLogEntry{IntegrationID: integrationID, MappingID: &otherID, SyncType: domain.SyncPull, Status: domain.SyncSuccess})
	audit.Record(domain.SyncLogEntry{IntegrationID: integrationID, SyncType: domain.SyncPush, Status: domain.SyncSuccess})

	got := audit.ByMapping(integrationID, mappingID)
	if len(got) != 1 || *got[0].MappingID != mappingID {
		t.Errorf("ByMapping = %+v, want one entry for the mapping", got)
	}
}

func TestAuditSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	integrationID := uuid.New()
	mappingID := uuid.New()

	audit := NewAuditLog()
	audit.Record(domain.SyncLogEntry{
		IntegrationID: integrationID,
		MappingID:     &mappingID,
		SyncType:      domain.SyncWebhook,
		Status:        domain.SyncSuccess,
		ItemsSynced:   1,
		Action:        "updated_local",
		DurationMS:    42,
	})
	audit.Record(domain.SyncLogEntry{
		IntegrationID: integrationID,
		SyncType:      domain.SyncPush,
		Status:        domain.SyncPartial,
		ItemsSynced:   2,
		ItemsFailed:   1,
	})

	if err := audit.Save(dir, integrationID); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewAuditLog()
	if err := loaded.Load(dir, integrationID); err != nil {
		t.Fatalf("Load: %v", err)
	}

	entries := loaded.Query(integrationID, time.Time{}, time.Time{})
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(entries))
	}
	if entries[0].Action != "updated_local" || entries[0].DurationMS != 42 {
		t.Errorf("first entry = %+v, fields lost in roundtrip", entries[0])
	}
	if entries[1].Status != domain.SyncPartial || entries[1].ItemsFailed != 1 {
		t.Errorf("second entry = %+v, fields lost in roundtrip", entries[1])
	}
	if entries[0].MappingID == nil || *entries[0].MappingID != mappingID {
		t.Error("mapping ID lost in roundtrip")
	}
}

func TestAuditLoadMissingFile(t *testing.T) {
	audit := NewAuditLog()
	if err := audit.Load(t.TempDir(), uuid.New()); err != nil {
		t.Fatalf("missing file should be empty history, got %v", err)
	}
}
