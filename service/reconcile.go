package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bobfox23/Certificate-tool/model"
	"github.com/bobfox23/Certificate-tool/pkg/logger"
)

// ArchiveName is the filename of the provider-partitioned export.
const ArchiveName = "GameCertificatesByProvider.zip"

// Fallback groups for games absent from the provider table, resolved
// from the IMS code suffix.
const (
	mcgGroupLabel      = "MCG"
	prgGroupLabel      = "PRG"
	uncategorizedGroup = "Uncategorized"
)

// Wide report header, matching the downstream spreadsheet template.
const wideReportHeader = "GameName\tGameCodes\tProgressive\tCertificateRef\tDate\tSupplierRegistrationnumber\tDeactivated\tFileList\tHashList"

// Narrow report header.
const narrowReportHeader = "Game Name\tIMS Game Code\tCertificate Number\tPortal Live Date"

// ReconciliationService merges extraction results with the provider
// table into reports and the provider-partitioned archive. Every view
// is rebuilt from current state on each call; nothing is cached.
type ReconciliationService struct {
	store *CertificateStore
	blobs BlobStore
}

func NewReconciliationService(store *CertificateStore, blobs BlobStore) *ReconciliationService {
	return &ReconciliationService{store: store, blobs: blobs}
}

// BuildCodeMap builds the authoritative normalized-key to IMS code
// mapping. Provider table codes always win; extraction-derived codes
// fill gaps only, first writer (in file-then-instance order over
// completed files) retained.
func BuildCodeMap(files []*model.CertificateFile, table map[string]model.ProviderInfo) map[string]string {
	codes := make(map[string]string)

	for key, info := range table {
		if info.IMSGameCode != "" {
			codes[key] = info.IMSGameCode
		}
	}

	for _, f := range files {
		if f.Status != model.StatusCompleted {
			continue
		}
		for _, inst := range f.Instances {
			key := NormalizeGameName(deref(inst.GameName))
			if key == "" {
				continue
			}
			code := deref(inst.GameCode)
			if code == "" {
				continue
			}
			if _, exists := codes[key]; !exists {
				codes[key] = code
			}
		}
	}

	return codes
}

// resolveFileGroup picks the single export folder for a file: the first
// instance that resolves via the provider table or a code-suffix
// fallback wins; a file with no resolvable instance is Uncategorized.
func resolveFileGroup(f *model.CertificateFile, table map[string]model.ProviderInfo) string {
	for _, inst := range f.Instances {
		key := NormalizeGameName(deref(inst.GameName))
		if key != "" {
			if info, ok := table[key]; ok && info.Provider != "" {
				return info.Provider
			}
		}
		code := strings.ToLower(deref(inst.GameCode))
		switch {
		case strings.HasSuffix(code, "_mcg"):
			return mcgGroupLabel
		case strings.HasSuffix(code, "_prg"):
			return prgGroupLabel
		}
	}
	return uncategorizedGroup
}

// BuildArchive packs every completed file's original bytes into
// provider-named folders inside one ZIP. Each file appears exactly
// once. Fails with ErrExportEmpty when nothing was placed.
func (r *ReconciliationService) BuildArchive(ctx context.Context) ([]byte, error) {
	if r.store.BatchRunning() {
		return nil, ErrBatchRunning
	}
	if !r.store.TryStartExport() {
		return nil, ErrExportRunning
	}
	defer r.store.EndExport()

	table := r.store.ProviderTable()
	files := r.store.List()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	placed := 0
	usedNames := make(map[string]bool)

	for _, f := range files {
		if f.Status != model.StatusCompleted {
			continue
		}

		data, err := r.blobs.Get(ctx, f.ID)
		if err != nil {
			logger.Warn(ctx, "skipping file with missing document bytes",
				"file_id", f.ID, "filename", f.Filename, "error", err)
			continue
		}

		group := resolveFileGroup(f, table)
		entryName := group + "/" + f.Filename
		if usedNames[entryName] {
			// Same filename twice in one folder: disambiguate with the id prefix.
			entryName = fmt.Sprintf("%s/%s_%s", group, shortID(f.ID), f.Filename)
		}
		usedNames[entryName] = true

		w, err := zw.Create(entryName)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write archive entry: %w", err)
		}
		placed++
	}

	if placed == 0 {
		return nil, ErrExportEmpty
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	logger.Info(ctx, "export archive built", "files", placed, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// WideReport renders the full per-instance TSV using the authoritative
// code map. One row per (file, instance) of completed files.
func (r *ReconciliationService) WideReport() string {
	files := r.store.List()
	codes := BuildCodeMap(files, r.store.ProviderTable())

	var sb strings.Builder
	sb.WriteString(wideReportHeader)
	sb.WriteString("\n")

	for _, f := range files {
		if f.Status != model.StatusCompleted {
			continue
		}
		for _, inst := range f.Instances {
			key := NormalizeGameName(deref(inst.GameName))
			var names, hashes []string
			for _, fd := range inst.Files {
				names = append(names, fd.Name)
				hashes = append(hashes, preferredHash(fd))
			}
			row := []string{
				CleanGameName(deref(inst.GameName)),
				codes[key],
				"No",
				deref(f.ReportNumber),
				deref(f.CertificationDate),
				deref(f.SupplierRegistrationNumber),
				"No",
				strings.Join(names, ", "),
				strings.Join(hashes, ", "),
			}
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

type narrowRow struct {
	provider string
	gameName string
	key      string
	imsCode  string
	certRef  string
	liveDate string
}

// narrowRows builds the compact report rows: sorted by provider then
// game name, deduplicated by normalized game name with the last
// occurrence winning. Portal Live Date falls back to the certification
// date for games absent from the provider table.
func (r *ReconciliationService) narrowRows() []narrowRow {
	files := r.store.List()
	table := r.store.ProviderTable()
	codes := BuildCodeMap(files, table)

	var rows []narrowRow
	for _, f := range files {
		if f.Status != model.StatusCompleted {
			continue
		}
		for _, inst := range f.Instances {
			key := NormalizeGameName(deref(inst.GameName))
			row := narrowRow{
				gameName: CleanGameName(deref(inst.GameName)),
				key:      key,
				imsCode:  codes[key],
				certRef:  deref(f.ReportNumber),
				liveDate: deref(f.CertificationDate),
			}
			if info, ok := table[key]; ok {
				row.provider = info.Provider
				if info.PortalLiveDate != "" {
					row.liveDate = info.PortalLiveDate
				}
			}
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].provider != rows[j].provider {
			return rows[i].provider < rows[j].provider
		}
		return rows[i].gameName < rows[j].gameName
	})

	// Deduplicate by normalized name, last occurrence wins.
	lastIdx := make(map[string]int, len(rows))
	for i, row := range rows {
		lastIdx[row.key] = i
	}
	out := rows[:0]
	for i, row := range rows {
		if lastIdx[row.key] == i {
			out = append(out, row)
		}
	}
	return out
}

// NarrowReport renders the compact TSV variant.
func (r *ReconciliationService) NarrowReport() string {
	var sb strings.Builder
	sb.WriteString(narrowReportHeader)
	sb.WriteString("\n")

	for _, row := range r.narrowRows() {
		sb.WriteString(strings.Join([]string{row.gameName, row.imsCode, row.certRef, row.liveDate}, "\t"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// NarrowWorkbook renders the compact report as an XLSX workbook.
func (r *ReconciliationService) NarrowWorkbook() ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Games"

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := strings.Split(narrowReportHeader, "\t")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for rowNum, row := range r.narrowRows() {
		values := []string{row.gameName, row.imsCode, row.certRef, row.liveDate}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowNum+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func preferredHash(fd model.FileDetail) string {
	if fd.MD5 != nil && *fd.MD5 != "" {
		return *fd.MD5
	}
	if fd.SHA1 != nil && *fd.SHA1 != "" {
		return *fd.SHA1
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
