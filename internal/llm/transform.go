package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
)

// Transformer converts extracted document text into a validated Document
// via the schema-constrained completion contract.
type Transformer struct {
	client Client
	cfg    common.LLMConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewTransformer(client Client, cfg common.LLMConfig, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Transformer{client: client, cfg: cfg, logger: logger, now: time.Now}
}

const transformSystemPrompt = "Ты — парсер медицинских документов. Отвечай только валидным JSON без пояснений и без форматирования Markdown."

// Transform sends the extracted text with the fixed formatting contract and
// parses the reply into a Document. Transport failures are retried up to
// the configured bound with a fixed backoff; shape failures are not — a
// malformed response will not become valid by resending the same prompt.
// The raw model output is returned alongside for logging.
func (t *Transformer) Transform(ctx context.Context, plainText string) (*entity.Document, []byte, error) {
	rid := uuid.New().String()
	prompt := BuildTransformPrompt(plainText)

	var resp string
	var lastErr error
	for attempt := 1; attempt <= t.cfg.Retries; attempt++ {
		t.logger.Debug("llm.transform.attempt", "req_id", rid, "attempt", attempt, "text_len", len(plainText))
		out, err := t.client.Complete(ctx, transformSystemPrompt, prompt)
		if err == nil {
			resp = out
			lastErr = nil
			break
		}
		lastErr = err
		t.logger.Warn("llm.transform.transport_error", "req_id", rid, "attempt", attempt, "error", err)
		if attempt < t.cfg.Retries {
			if err := sleep(ctx, t.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}
	if lastErr != nil {
		return nil, nil, common.NewAppError("LLM_ERROR", "transformer did not respond",
			fmt.Errorf("%w: %w", common.ErrTransformerUnavailable, lastErr))
	}

	raw := []byte(stripCodeFence(resp))

	if err := ValidateJSONAgainstSchema(BuildDocumentJSONSchema(), raw); err != nil {
		t.logger.Error("llm.transform.schema_validation_failed", "req_id", rid, "error", err, "content", string(raw))
		return nil, raw, common.NewAppError("LLM_ERROR", "response does not match record shape",
			fmt.Errorf("%w: %w", common.ErrInvalidShape, err))
	}

	doc, err := entity.FromExtracted(raw, t.now())
	if err != nil {
		return nil, raw, err
	}

	t.logger.Info("llm.transform.ok",
		"req_id", rid,
		"format", string(doc.Format),
		"institution", doc.InstitutionName,
		"document_type", doc.DocumentType,
		"entries", doc.EntryCount(),
		"date_defaulted", doc.DateDefaulted,
	)
	return doc, raw, nil
}

// stripCodeFence removes a surrounding markdown fence if the model wrapped
// its JSON in one. Anything beyond that is left for the strict parse to
// reject.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
