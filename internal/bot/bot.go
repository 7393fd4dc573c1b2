// Package bot is the orchestrator: it binds extraction, transformation,
// the document model and persistence into the ingestion pipeline, and the
// query grammar parser into the history lookup path. All failures are
// recovered here and converted to a single user-facing message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikhailstasyuk/medtesthelper-bot/constants"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/export"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/llm"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/query"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/repository"
)

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(ctx context.Context, content []byte, declaredName, declaredMIME string) (string, error)
}

// Transformer turns plain text into a validated Document.
type Transformer interface {
	Transform(ctx context.Context, plainText string) (*entity.Document, []byte, error)
}

type Handler struct {
	extractor   Extractor
	transformer Transformer
	chat        llm.Client
	repo        repository.Repository
	exporter    *export.Service
	logger      *slog.Logger
	now         func() time.Time
}

func NewHandler(extractor Extractor, transformer Transformer, chat llm.Client, repo repository.Repository, exporter *export.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		extractor:   extractor,
		transformer: transformer,
		chat:        chat,
		repo:        repo,
		exporter:    exporter,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleStart greets the user and lazily creates their row.
func (h *Handler) HandleStart(ctx context.Context, ev Event) []Reply {
	if _, err := h.repo.UpsertUser(ctx, ev.UserID, ev.Username); err != nil {
		h.logger.Error("start: upsert user failed", "user_id", ev.UserID, "error", err)
		return textReplies(msgDBFailed)
	}

	prompt := fmt.Sprintf("Кратко поприветствуй пользователя %s, представься и жди команд.", ev.Username)
	greeting, err := h.chat.Complete(ctx, llm.SystemPrompt, prompt)
	if err != nil {
		h.logger.Warn("start: greeting completion failed", "error", err)
		greeting = msgWelcome
	}
	return textReplies(greeting)
}

// HandleFile runs the ingestion path:
// Receiving -> Extracting -> Transforming -> Validating -> Persisting.
// Any failure returns control to Idle with one message; the user
// re-submits from the beginning.
func (h *Handler) HandleFile(ctx context.Context, ev Event) []Reply {
	trace := uuid.New().String()
	log := h.logger.With("trace_id", trace, "user_id", ev.UserID)

	st := stateReceiving
	if ev.File == nil {
		return textReplies(msgPhotoAsPhoto)
	}
	kind, ok := constants.ResolveKind(ev.File.Name, ev.File.MIME)
	if !ok {
		log.Debug("unsupported upload", "state", st.String(), "name", ev.File.Name, "mime", ev.File.MIME)
		return textReplies(msgUnsupportedKind)
	}

	replies := textReplies(fmt.Sprintf("Обрабатываю ваш %s файл...", kind))

	st = stateExtracting
	log.Info("pipeline state", "state", st.String(), "kind", string(kind), "bytes", len(ev.File.Data))
	text, err := h.extractor.Extract(ctx, ev.File.Data, ev.File.Name, ev.File.MIME)
	if err != nil {
		return h.abort(log, st, replies, err)
	}

	st = stateTransforming
	log.Info("pipeline state", "state", st.String(), "text_len", len(text))
	doc, raw, err := h.transformer.Transform(ctx, text)
	if err != nil {
		return h.abort(log, st, replies, err)
	}

	st = stateValidating
	if doc.EntryCount() == 0 {
		// Zero entries is a valid document, just not a useful one.
		log.Warn("document has no entries", "state", st.String())
	}
	if doc.DateDefaulted {
		log.Warn("document date defaulted to ingestion date", "state", st.String())
		replies = append(replies, textReplies(msgDateDefaulted)...)
	}
	replies = append(replies, textReplies(string(raw))...)

	st = statePersisting
	log.Info("pipeline state", "state", st.String())
	userID, err := h.repo.UpsertUser(ctx, ev.UserID, ev.Username)
	if err != nil {
		return h.abort(log, st, replies, err)
	}
	instID, err := h.repo.UpsertInstitution(ctx, doc.InstitutionName)
	if err != nil {
		return h.abort(log, st, replies, err)
	}
	docID, err := h.repo.AppendDocument(ctx, userID, instID, doc)
	if err != nil {
		return h.abort(log, st, replies, err)
	}

	// Confirm from the stored record, read back the same way queries will
	// see it.
	stored, err := h.repo.LatestDocument(ctx, userID, nil)
	if err != nil {
		return h.abort(log, st, replies, err)
	}
	saved := doc
	if stored != nil {
		saved = &stored.Document
	}

	log.Info("pipeline state", "state", stateIdle.String(), "document_id", docID)
	return append(replies, textReplies(h.summarize(saved))...)
}

// HandleText routes free text through the conversational model, then
// checks its reply for the embedded query grammar.
func (h *Handler) HandleText(ctx context.Context, ev Event) []Reply {
	if strings.TrimSpace(ev.Text) == "/start" {
		return h.HandleStart(ctx, ev)
	}

	stamp := h.now().Format("2006-01-02 15:04")
	resp, err := h.chat.Complete(ctx, llm.SystemPrompt, fmt.Sprintf("%s %s: %s", stamp, ev.Username, ev.Text))
	if err != nil {
		h.logger.Error("chat completion failed", "user_id", ev.UserID, "error", err)
		return textReplies(msgLLMUnavailable)
	}

	filter, err := query.Parse(resp)
	switch {
	case err == nil:
		return h.runQuery(ctx, ev, filter)
	case errors.Is(err, common.ErrNotAQuery):
		// Ordinary conversation; pass the model's reply through.
		return textReplies(resp)
	default:
		h.logger.Warn("malformed query from model", "user_id", ev.UserID, "error", err)
		return textReplies(msgQueryFailed)
	}
}

// runQuery is the Idle -> Querying -> Idle path.
func (h *Handler) runQuery(ctx context.Context, ev Event, f query.Filter) []Reply {
	log := h.logger.With("user_id", ev.UserID)
	log.Info("pipeline state", "state", stateQuerying.String(),
		"format", string(f.Format), "name", f.Name,
		"start", f.Start.Format("2006-01-02"), "end", f.End.Format("2006-01-02"))

	userID, err := h.repo.UpsertUser(ctx, ev.UserID, ev.Username)
	if err != nil {
		return h.abort(log, stateQuerying, nil, err)
	}
	docs, err := h.repo.DocumentsInRange(ctx, userID, f.Format, f.Name, f.Start, f.End)
	if err != nil {
		return h.abort(log, stateQuerying, nil, err)
	}
	if len(docs) == 0 {
		return textReplies(msgNothingFound)
	}

	replies := textReplies(formatResults(f, docs))

	if wb, err := h.exporter.BuildXLSX(f.Format, docs); err != nil {
		log.Error("xlsx export failed", "error", err)
	} else {
		replies = append(replies, Reply{
			Document:     wb,
			DocumentName: fmt.Sprintf("%s_%s_%s.xlsx", f.Format, f.Start.Format("2006-01-02"), f.End.Format("2006-01-02")),
		})
	}
	return replies
}

func (h *Handler) abort(log *slog.Logger, st state, replies []Reply, err error) []Reply {
	log.Error("pipeline failed, returning to idle", "state", st.String(), "error", err)
	return append(replies, textReplies(userMessage(err))...)
}

// summarize builds the ingestion confirmation message.
func (h *Handler) summarize(doc *entity.Document) string {
	var b strings.Builder
	b.WriteString("Документ сохранён: ")
	b.WriteString(doc.DocumentType)
	if doc.InstitutionName != "" {
		b.WriteString(", ")
		b.WriteString(doc.InstitutionName)
	}
	b.WriteString(", ")
	b.WriteString(doc.DocumentDate.Format("2006-01-02"))
	b.WriteString(".")

	switch doc.Format {
	case entity.FormatTest:
		normal, abnormal, unknown := 0, 0, 0
		for _, e := range doc.TestEntries {
			switch {
			case e.IsNormal == nil:
				unknown++
			case *e.IsNormal:
				normal++
			default:
				abnormal++
			}
		}
		fmt.Fprintf(&b, " Показателей: %d (в норме: %d, вне нормы: %d, не определено: %d).",
			len(doc.TestEntries), normal, abnormal, unknown)
	case entity.FormatStudy:
		fmt.Fprintf(&b, " Записей исследования: %d.", len(doc.StudyEntries))
	}
	return b.String()
}

func formatResults(f query.Filter, docs []repository.StoredDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Найдено документов «%s» с %s по %s: %d\n",
		f.Name, f.Start.Format("2006-01-02"), f.End.Format("2006-01-02"), len(docs))

	for _, d := range docs {
		fmt.Fprintf(&b, "\n%s — %s\n", d.Document.DocumentDate.Format("2006-01-02"), d.InstitutionName)
		switch d.Document.Format {
		case entity.FormatTest:
			for _, e := range d.Document.TestEntries {
				fmt.Fprintf(&b, "  %s: %s %s", e.Name, e.Value, e.Unit)
				if e.Range != "" {
					fmt.Fprintf(&b, " (норма: %s)", e.Range)
				}
				if e.IsNormal != nil && !*e.IsNormal {
					b.WriteString(" ⚠")
				}
				b.WriteString("\n")
			}
		case entity.FormatStudy:
			for _, e := range d.Document.StudyEntries {
				fmt.Fprintf(&b, "  %s: %s\n", e.Device, e.Result)
				if e.Recommendation != "" {
					fmt.Fprintf(&b, "  Рекомендация: %s\n", e.Recommendation)
				}
			}
		}
	}
	return b.String()
}
