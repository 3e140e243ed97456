package model

import (
	"time"
)

// FileDetail describes one binary listed inside a certificate document.
// Hash fields are nil when the document did not state them.
type FileDetail struct {
	Name string  `json:"name"`
	MD5  *string `json:"md5"`
	SHA1 *string `json:"sha1"`
}

// GameInstance is one game entry extracted from a certificate.
// GameCode carries an IMS code only; generic per-game codes are nulled
// out at extraction time.
type GameInstance struct {
	GameName *string      `json:"gameName"`
	GameCode *string      `json:"gameCode"`
	Files    []FileDetail `json:"files"`
}

// ExtractedInfo is the validated result of one extraction call.
type ExtractedInfo struct {
	ReportNumber               *string        `json:"reportNumber"`
	CertificationDate          *string        `json:"certificationDate"`
	SupplierRegistrationNumber *string        `json:"supplierRegistrationNumber"`
	GameInstances              []GameInstance `json:"gameInstances"`
}

// CertificateFile represents one uploaded certificate document
type CertificateFile struct {
	ID                         string         `json:"id"`
	Filename                   string         `json:"filename"`
	ContentType                string         `json:"content_type"`
	Size                       int64          `json:"size"`
	Status                     string         `json:"status"` // queued, processing, completed, error
	ErrorMsg                   string         `json:"error_msg,omitempty"`
	ReportNumber               *string        `json:"reportNumber"`
	CertificationDate          *string        `json:"certificationDate"`
	SupplierRegistrationNumber *string        `json:"supplierRegistrationNumber"`
	Instances                  []GameInstance `json:"gameInstances"`
	CreatedAt                  time.Time      `json:"created_at"`
	UpdatedAt                  time.Time      `json:"updated_at"`
}

// CertificateFile status constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ProviderInfo is one row of the pasted provider spreadsheet, keyed in
// the provider table by normalized game name.
type ProviderInfo struct {
	Provider       string `json:"provider"`
	PortalLiveDate string `json:"portal_live_date,omitempty"`
	IMSGameCode    string `json:"ims_game_code,omitempty"`
}
