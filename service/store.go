package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bobfox23/Certificate-tool/config"
	"github.com/bobfox23/Certificate-tool/model"
)

// CertificateStore is the in-memory application state: the processed
// file collection, the provider table and the client-held credential.
// Batch processing order is contractual, so insertion order is kept
// alongside the map. The batch goroutine is the only writer of file
// status during a run; the provider table is only ever replaced in full.
type CertificateStore struct {
	mu         sync.RWMutex
	files      map[string]*model.CertificateFile
	order      []string
	providers  map[string]model.ProviderInfo
	credential string
	maxFiles   int

	batchRunning  bool
	exportRunning bool
}

var (
	globalStore *CertificateStore
	storeOnce   sync.Once
)

// InitCertificateStore initializes the global store with configuration
func InitCertificateStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		maxFiles := cfg.MaxFiles
		if maxFiles < 0 {
			maxFiles = 0
		}
		globalStore = NewCertificateStore(maxFiles)
		slog.Info("certificate store initialized", "max_files", maxFiles)
	})
}

// GetCertificateStore returns the global certificate store
func GetCertificateStore() *CertificateStore {
	if globalStore == nil {
		// Fallback initialization with default settings
		globalStore = NewCertificateStore(200)
	}
	return globalStore
}

func NewCertificateStore(maxFiles int) *CertificateStore {
	return &CertificateStore{
		files:     make(map[string]*model.CertificateFile),
		providers: make(map[string]model.ProviderInfo),
		maxFiles:  maxFiles,
	}
}

// Save adds a new certificate file. Returns false when the store is at
// its configured capacity.
func (s *CertificateStore) Save(file *model.CertificateFile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxFiles > 0 && len(s.files) >= s.maxFiles {
		return false
	}

	file.UpdatedAt = time.Now()
	if _, exists := s.files[file.ID]; !exists {
		s.order = append(s.order, file.ID)
	}
	s.files[file.ID] = file
	return true
}

func (s *CertificateStore) Get(id string) *model.CertificateFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files[id]
}

// List returns all files in upload order.
func (s *CertificateStore) List() []*model.CertificateFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.CertificateFile, 0, len(s.order))
	for _, id := range s.order {
		if f, ok := s.files[id]; ok {
			result = append(result, f)
		}
	}
	return result
}

// QueuedIDs returns the ids of all currently queued files in upload
// order. A batch runs over exactly this snapshot; files queued later
// belong to the next run.
func (s *CertificateStore) QueuedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.order {
		if f, ok := s.files[id]; ok && f.Status == model.StatusQueued {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *CertificateStore) UpdateStatus(id, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.Status = status
		f.ErrorMsg = errMsg
		f.UpdatedAt = time.Now()
	}
}

// SetResult copies a validated extraction onto the file and marks it
// completed.
func (s *CertificateStore) SetResult(id string, info *model.ExtractedInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		f.ReportNumber = info.ReportNumber
		f.CertificationDate = info.CertificationDate
		f.SupplierRegistrationNumber = info.SupplierRegistrationNumber
		f.Instances = info.GameInstances
		f.Status = model.StatusCompleted
		f.ErrorMsg = ""
		f.UpdatedAt = time.Now()
	}
}

// Clear removes every file. Rejected while a batch or export is active;
// individual files are never deleted.
func (s *CertificateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batchRunning {
		return ErrBatchRunning
	}
	if s.exportRunning {
		return ErrExportRunning
	}

	s.files = make(map[string]*model.CertificateFile)
	s.order = nil
	return nil
}

func (s *CertificateStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// ReplaceProviderTable atomically swaps in a freshly parsed table.
func (s *CertificateStore) ReplaceProviderTable(table map[string]model.ProviderInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = table
}

// ProviderTable returns the current table. Callers must treat it as
// read-only; the loader replaces it wholesale instead of mutating it.
func (s *CertificateStore) ProviderTable() map[string]model.ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providers
}

func (s *CertificateStore) ProviderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.providers)
}

func (s *CertificateStore) SetCredential(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = key
}

func (s *CertificateStore) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// TryStartBatch claims the single batch slot. A running export also
// blocks the claim: the archive builder reads file records outside the
// store lock and must never race a batch writing status.
func (s *CertificateStore) TryStartBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchRunning || s.exportRunning {
		return false
	}
	s.batchRunning = true
	return true
}

func (s *CertificateStore) EndBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchRunning = false
}

func (s *CertificateStore) BatchRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchRunning
}

// TryStartExport claims the export slot so Clear cannot race a running
// archive build.
func (s *CertificateStore) TryStartExport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exportRunning {
		return false
	}
	s.exportRunning = true
	return true
}

func (s *CertificateStore) EndExport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportRunning = false
}

func (s *CertificateStore) ExportRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportRunning
}
