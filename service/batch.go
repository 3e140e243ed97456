package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bobfox23/Certificate-tool/model"
	"github.com/bobfox23/Certificate-tool/pkg/logger"
)

// AllowedContentTypes is the upload allow-list. Anything else is
// rejected at upload time and never queued.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// ValidateUpload applies the fixed size and type gate. The returned
// error message is stored verbatim on the rejected file.
func ValidateUpload(contentType string, size, maxBytes int64) error {
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("unsupported file type %q: only PDF, PNG and JPEG are accepted", contentType)
	}
	if size > maxBytes {
		return fmt.Errorf("file exceeds the %d MB size limit", maxBytes/(1024*1024))
	}
	return nil
}

// BatchProcessor drives extraction over queued certificate files,
// strictly one file at a time. Per-file failures are isolated; the
// batch always runs to the end of its snapshot.
type BatchProcessor struct {
	store     *CertificateStore
	blobs     BlobStore
	extractor Extractor
	pdfText   TextExtractor
}

func NewBatchProcessor(store *CertificateStore, blobs BlobStore, extractor Extractor, pdfText TextExtractor) *BatchProcessor {
	return &BatchProcessor{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		pdfText:   pdfText,
	}
}

// StartBatch claims the batch slot and launches processing of the
// current queued snapshot in the background. With no credential
// available every queued file is marked failed without any network
// call. Returns the number of files in the started batch.
func (p *BatchProcessor) StartBatch(apiKey string) (int, error) {
	if !p.store.TryStartBatch() {
		if p.store.ExportRunning() {
			return 0, ErrExportRunning
		}
		return 0, ErrBatchRunning
	}

	key := apiKey
	if key == "" {
		key = p.store.Credential()
	}

	ids := p.store.QueuedIDs()

	if key == "" {
		for _, id := range ids {
			p.store.UpdateStatus(id, model.StatusError, ErrCredentialMissing.Error())
		}
		p.store.EndBatch()
		return 0, ErrCredentialMissing
	}

	go p.run(context.Background(), ids, key)
	return len(ids), nil
}

func (p *BatchProcessor) run(ctx context.Context, ids []string, apiKey string) {
	defer p.store.EndBatch()

	start := time.Now()
	logger.Info(ctx, "batch started", "files", len(ids))

	for _, id := range ids {
		fctx := context.WithValue(ctx, logger.FileIDKey, id)
		p.processFile(fctx, id, apiKey)
	}

	logger.Info(ctx, "batch finished",
		"files", len(ids),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (p *BatchProcessor) processFile(ctx context.Context, id, apiKey string) {
	file := p.store.Get(id)
	if file == nil {
		return
	}

	p.store.UpdateStatus(id, model.StatusProcessing, "")
	logger.Info(ctx, "processing certificate", "filename", file.Filename)

	info, err := p.extractOne(ctx, file, apiKey)
	if err != nil {
		logger.Warn(ctx, "certificate processing failed", "filename", file.Filename, "error", err)
		p.store.UpdateStatus(id, model.StatusError, err.Error())
		return
	}

	p.store.SetResult(id, info)
	logger.Info(ctx, "certificate processed",
		"filename", file.Filename,
		"instances", len(info.GameInstances),
	)
}

func (p *BatchProcessor) extractOne(ctx context.Context, file *model.CertificateFile, apiKey string) (*model.ExtractedInfo, error) {
	data, err := p.blobs.Get(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	switch file.ContentType {
	case "application/pdf":
		text, err := p.pdfText.ExtractText(data)
		if err != nil {
			return nil, err
		}
		return p.extractor.ExtractFromText(ctx, text, apiKey)
	case "image/png", "image/jpeg":
		return p.extractor.ExtractFromImage(ctx, data, file.ContentType, apiKey)
	default:
		return nil, fmt.Errorf("unsupported content type %q", file.ContentType)
	}
}
