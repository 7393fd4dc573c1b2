// Package extract wraps the external OCR and PDF backends behind one
// adapter that turns an uploaded file into a single plain-text
// representation. Backend binaries run behind a Runner seam so the whole
// chain is testable without tesseract installed.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mikhailstasyuk/medtesthelper-bot/constants"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
)

type Extractor struct {
	cfg    common.ExtractConfig
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg common.ExtractConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "rus+eng"
	}
	if cfg.MinDPI <= 0 {
		cfg.MinDPI = 295
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Extract resolves the declared kind against the allow-list and routes the
// content through the matching strategy. Image kinds pass a DPI quality
// gate before any OCR runs; below the threshold the whole upload is
// rejected, because low-quality input reliably yields silently wrong
// extraction downstream.
func (e *Extractor) Extract(ctx context.Context, content []byte, declaredName, declaredMIME string) (string, error) {
	kind, ok := constants.ResolveKind(declaredName, declaredMIME)
	if !ok {
		e.logger.Debug("attached document type is not supported", "name", declaredName, "mime", declaredMIME)
		return "", common.NewAppError("EXTRACT_ERROR",
			fmt.Sprintf("unsupported file %q (%s)", declaredName, declaredMIME), common.ErrUnsupportedKind)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	e.logger.Info("extracting text from document", "kind", kind, "bytes", len(content))

	switch kind {
	case constants.KindJSON:
		// Pre-structured input skips extraction entirely.
		return string(content), nil
	case constants.KindPDF:
		return e.extractPDF(ctx, content)
	case constants.KindPNG, constants.KindJPEG, constants.KindJPG:
		return e.extractImage(ctx, content, kind)
	default:
		return "", common.NewAppError("EXTRACT_ERROR", fmt.Sprintf("unroutable kind %q", kind), common.ErrUnsupportedKind)
	}
}

// extractPDF renders the PDF as layout-preserving plain text so tables
// survive as row/column-delimited lines for the text-only transformer.
func (e *Extractor) extractPDF(ctx context.Context, content []byte) (string, error) {
	path, cleanup, err := writeTemp(content, "*.pdf")
	if err != nil {
		return "", extractionFailed("stage pdf", err)
	}
	defer cleanup()

	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		e.logger.Error("pdftotext failed", "error", err, "stderr", truncate(string(errb), 2<<10))
		return "", extractionFailed("pdf", err)
	}
	return string(out), nil
}

func (e *Extractor) extractImage(ctx context.Context, content []byte, kind constants.FileKind) (string, error) {
	dpi, err := imageDPI(content)
	if err != nil {
		e.logger.Warn("image density unreadable", "kind", kind, "error", err)
		return "", common.NewAppError("EXTRACT_ERROR",
			fmt.Sprintf("cannot verify image resolution (need >= %d DPI)", e.cfg.MinDPI), common.ErrQualityTooLow)
	}
	if dpi < e.cfg.MinDPI {
		return "", common.NewAppError("EXTRACT_ERROR",
			fmt.Sprintf("image is %d DPI, below the %d DPI minimum", dpi, e.cfg.MinDPI), common.ErrQualityTooLow)
	}

	processed, err := Preprocess(content)
	if err != nil {
		return "", extractionFailed("preprocess", err)
	}

	// The preprocessed frame is kept as an inspectable artifact; OCR runs
	// on the artifact, never on the raw upload.
	artifact, err := e.writeArtifact(content, processed)
	if err != nil {
		return "", extractionFailed("artifact", err)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, artifact, "stdout", "-l", e.cfg.TesseractLang, "--psm", "3")
	if err != nil {
		e.logger.Error("tesseract failed", "error", err, "stderr", truncate(string(errb), 2<<10))
		return "", extractionFailed("ocr", err)
	}
	return string(out), nil
}

func (e *Extractor) writeArtifact(original, processed []byte) (string, error) {
	if err := os.MkdirAll(e.cfg.ArtifactCacheDir, 0o755); err != nil {
		return "", err
	}
	sum := sha256.Sum256(original)
	path := filepath.Join(e.cfg.ArtifactCacheDir, hex.EncodeToString(sum[:8])+"-preprocessed.png")
	if err := os.WriteFile(path, processed, 0o644); err != nil {
		return "", err
	}
	e.logger.Debug("wrote preprocessing artifact", "path", path)
	return path, nil
}

func writeTemp(content []byte, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// extractionFailed wraps backend errors without leaking internal detail to
// the user-facing layer; the full cause stays in the error chain for logs.
func extractionFailed(stage string, err error) error {
	return common.NewAppError("EXTRACT_ERROR", stage, fmt.Errorf("%w: %w", common.ErrExtractionFailed, err))
}
