package service

import (
	"testing"
	"time"

	"github.com/bobfox23/Certificate-tool/model"
)

func strPtr(s string) *string {
	return &s
}

func TestCertificateStoreSaveAndGet(t *testing.T) {
	store := NewCertificateStore(100)

	file := &model.CertificateFile{
		ID:        "test-id-1",
		Filename:  "cert.pdf",
		Status:    model.StatusQueued,
		CreatedAt: time.Now(),
	}

	if !store.Save(file) {
		t.Fatal("Expected save to succeed")
	}

	retrieved := store.Get("test-id-1")
	if retrieved == nil {
		t.Fatal("Expected to retrieve file")
	}
	if retrieved.Filename != "cert.pdf" {
		t.Errorf("Expected filename cert.pdf, got %s", retrieved.Filename)
	}

	notFound := store.Get("non-existent")
	if notFound != nil {
		t.Error("Expected nil for non-existent file")
	}
}

func TestCertificateStoreListOrder(t *testing.T) {
	store := NewCertificateStore(100)

	for _, id := range []string{"c", "a", "b"} {
		store.Save(&model.CertificateFile{ID: id, Status: model.StatusQueued, CreatedAt: time.Now()})
	}

	files := store.List()
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(files))
	}
	for i, want := range []string{"c", "a", "b"} {
		if files[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, files[i].ID)
		}
	}
}

func TestCertificateStoreMaxFiles(t *testing.T) {
	store := NewCertificateStore(2)

	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusQueued})
	store.Save(&model.CertificateFile{ID: "2", Status: model.StatusQueued})

	if store.Save(&model.CertificateFile{ID: "3", Status: model.StatusQueued}) {
		t.Error("Expected save to fail at capacity")
	}
	if store.Count() != 2 {
		t.Errorf("Expected 2 files, got %d", store.Count())
	}
}

func TestCertificateStoreQueuedIDs(t *testing.T) {
	store := NewCertificateStore(100)

	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusQueued})
	store.Save(&model.CertificateFile{ID: "2", Status: model.StatusError})
	store.Save(&model.CertificateFile{ID: "3", Status: model.StatusQueued})

	ids := store.QueuedIDs()
	if len(ids) != 2 {
		t.Fatalf("Expected 2 queued, got %d", len(ids))
	}
	if ids[0] != "1" || ids[1] != "3" {
		t.Errorf("Expected [1 3], got %v", ids)
	}
}

func TestCertificateStoreUpdateStatus(t *testing.T) {
	store := NewCertificateStore(100)
	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusQueued})

	store.UpdateStatus("1", model.StatusError, "boom")

	f := store.Get("1")
	if f.Status != model.StatusError {
		t.Errorf("Expected status error, got %s", f.Status)
	}
	if f.ErrorMsg != "boom" {
		t.Errorf("Expected error message boom, got %s", f.ErrorMsg)
	}

	// Unknown id is a no-op
	store.UpdateStatus("nope", model.StatusError, "x")
}

func TestCertificateStoreSetResult(t *testing.T) {
	store := NewCertificateStore(100)
	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusProcessing})

	info := &model.ExtractedInfo{
		ReportNumber:      strPtr("R-1"),
		CertificationDate: strPtr("2024-01-01"),
		GameInstances: []model.GameInstance{
			{GameName: strPtr("Mega Fortune"), GameCode: nil, Files: []model.FileDetail{}},
		},
	}
	store.SetResult("1", info)

	f := store.Get("1")
	if f.Status != model.StatusCompleted {
		t.Errorf("Expected status completed, got %s", f.Status)
	}
	if f.ReportNumber == nil || *f.ReportNumber != "R-1" {
		t.Error("Expected report number to be copied")
	}
	if len(f.Instances) != 1 {
		t.Errorf("Expected 1 instance, got %d", len(f.Instances))
	}
}

func TestCertificateStoreClear(t *testing.T) {
	store := NewCertificateStore(100)
	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusQueued})

	if err := store.Clear(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Expected empty store, got %d files", store.Count())
	}
	if len(store.List()) != 0 {
		t.Error("Expected empty list after clear")
	}
}

func TestCertificateStoreClearRejectedWhileBusy(t *testing.T) {
	store := NewCertificateStore(100)
	store.Save(&model.CertificateFile{ID: "1", Status: model.StatusQueued})

	if !store.TryStartBatch() {
		t.Fatal("Expected to claim batch slot")
	}
	if err := store.Clear(); err != ErrBatchRunning {
		t.Errorf("Expected ErrBatchRunning, got %v", err)
	}
	store.EndBatch()

	if !store.TryStartExport() {
		t.Fatal("Expected to claim export slot")
	}
	if err := store.Clear(); err != ErrExportRunning {
		t.Errorf("Expected ErrExportRunning, got %v", err)
	}
	store.EndExport()

	if err := store.Clear(); err != nil {
		t.Errorf("Expected clear to succeed once idle, got %v", err)
	}
}

func TestCertificateStoreBatchRejectedWhileExporting(t *testing.T) {
	store := NewCertificateStore(100)

	if !store.TryStartExport() {
		t.Fatal("Expected to claim export slot")
	}
	if store.TryStartBatch() {
		t.Error("Expected batch claim to fail while an export runs")
	}
	store.EndExport()

	if !store.TryStartBatch() {
		t.Error("Expected batch claim to succeed once the export ends")
	}
	store.EndBatch()
}

func TestCertificateStoreBatchSlot(t *testing.T) {
	store := NewCertificateStore(100)

	if !store.TryStartBatch() {
		t.Fatal("Expected first claim to succeed")
	}
	if store.TryStartBatch() {
		t.Error("Expected second claim to fail")
	}
	if !store.BatchRunning() {
		t.Error("Expected batch to be reported running")
	}
	store.EndBatch()
	if !store.TryStartBatch() {
		t.Error("Expected claim to succeed after release")
	}
	store.EndBatch()
}

func TestCertificateStoreProviderTable(t *testing.T) {
	store := NewCertificateStore(100)

	table := map[string]model.ProviderInfo{
		"starburst": {Provider: "NetEnt", IMSGameCode: "sb_123"},
	}
	store.ReplaceProviderTable(table)

	if store.ProviderCount() != 1 {
		t.Errorf("Expected 1 entry, got %d", store.ProviderCount())
	}
	got := store.ProviderTable()
	if got["starburst"].Provider != "NetEnt" {
		t.Error("Expected table entry to survive replacement")
	}

	// Replacement is wholesale, not a merge
	store.ReplaceProviderTable(map[string]model.ProviderInfo{"gonzo": {Provider: "Red Tiger"}})
	if store.ProviderCount() != 1 {
		t.Errorf("Expected 1 entry after replace, got %d", store.ProviderCount())
	}
	if _, ok := store.ProviderTable()["starburst"]; ok {
		t.Error("Expected old entries to be gone")
	}
}

func TestCertificateStoreCredential(t *testing.T) {
	store := NewCertificateStore(100)

	if store.Credential() != "" {
		t.Error("Expected empty credential initially")
	}
	store.SetCredential("key-123")
	if store.Credential() != "key-123" {
		t.Errorf("Expected key-123, got %s", store.Credential())
	}
}
