package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/export"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/repository"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

type fakeTransformer struct {
	doc *entity.Document
	raw []byte
	err error
}

func (f *fakeTransformer) Transform(context.Context, string) (*entity.Document, []byte, error) {
	return f.doc, f.raw, f.err
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

type fakeRepo struct {
	appended    []*entity.Document
	docs        []repository.StoredDocument
	latestCalls int
	rangeErr    error
	userErr     error
	latestErr   error
}

func (f *fakeRepo) UpsertUser(_ context.Context, telegramID int64, _ string) (int64, error) {
	return telegramID, f.userErr
}

func (f *fakeRepo) UpsertInstitution(_ context.Context, name string) (int64, error) {
	return int64(len(name)) + 1, nil
}

func (f *fakeRepo) AppendDocument(_ context.Context, userID, _ int64, doc *entity.Document) (int64, error) {
	f.appended = append(f.appended, doc)
	id := int64(len(f.appended))
	f.docs = append(f.docs, repository.StoredDocument{
		ID:              id,
		UserID:          userID,
		InstitutionName: doc.InstitutionName,
		Document:        *doc,
	})
	return id, nil
}

func (f *fakeRepo) LatestDocument(context.Context, int64, *string) (*repository.StoredDocument, error) {
	f.latestCalls++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if len(f.docs) == 0 {
		return nil, nil
	}
	return &f.docs[len(f.docs)-1], nil
}

func (f *fakeRepo) DocumentsInRange(context.Context, int64, entity.Format, string, time.Time, time.Time) ([]repository.StoredDocument, error) {
	return f.docs, f.rangeErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestHandler(ex Extractor, tr Transformer, chat *fakeChat, repo *fakeRepo) *Handler {
	logger := quietLogger()
	return NewHandler(ex, tr, chat, repo, export.NewService(logger), logger)
}

func sampleDoc() *entity.Document {
	normal := true
	return &entity.Document{
		Format:          entity.FormatTest,
		InstitutionName: "Хеликс",
		DocumentType:    "общий анализ крови",
		DocumentDate:    time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
		TestEntries: []entity.TestEntry{
			{Name: "гемоглобин", Value: "145", Unit: "г/л", Range: "130-160", IsNormal: &normal},
		},
	}
}

func fileEvent(name, mime string) Event {
	return Event{
		UserID:   42,
		Username: "masha",
		File:     &File{Data: []byte("payload"), Name: name, MIME: mime},
	}
}

func joinTexts(replies []Reply) string {
	var b strings.Builder
	for _, r := range replies {
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func TestHandleFileHappyPath(t *testing.T) {
	repo := &fakeRepo{}
	raw := []byte(`{"data_format": "test"}`)
	h := newTestHandler(
		&fakeExtractor{text: "Гемоглобин 145"},
		&fakeTransformer{doc: sampleDoc(), raw: raw},
		&fakeChat{},
		repo,
	)

	replies := h.HandleFile(context.Background(), fileEvent("analiz.pdf", "application/pdf"))

	out := joinTexts(replies)
	if !strings.Contains(out, "Обрабатываю ваш pdf файл") {
		t.Fatalf("missing progress message:\n%s", out)
	}
	if !strings.Contains(out, string(raw)) {
		t.Fatalf("raw record must be echoed back:\n%s", out)
	}
	if !strings.Contains(out, "Документ сохранён") {
		t.Fatalf("missing confirmation:\n%s", out)
	}
	if !strings.Contains(out, "в норме: 1") {
		t.Fatalf("summary must count normality:\n%s", out)
	}
	if len(repo.appended) != 1 {
		t.Fatalf("appended = %d documents", len(repo.appended))
	}
}

func TestHandleFileConfirmsFromStoredRecord(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestHandler(
		&fakeExtractor{text: "x"},
		&fakeTransformer{doc: sampleDoc(), raw: []byte("{}")},
		&fakeChat{},
		repo,
	)

	replies := h.HandleFile(context.Background(), fileEvent("analiz.pdf", "application/pdf"))

	if repo.latestCalls != 1 {
		t.Fatalf("latest-document reads = %d, want 1 (confirmation reads back the stored record)", repo.latestCalls)
	}
	if !strings.Contains(joinTexts(replies), "Документ сохранён") {
		t.Fatalf("missing confirmation:\n%s", joinTexts(replies))
	}
}

func TestHandleFileReadBackFailure(t *testing.T) {
	repo := &fakeRepo{latestErr: common.NewAppError("DB_ERROR", "x", common.ErrPersistenceFailed)}
	h := newTestHandler(
		&fakeExtractor{text: "x"},
		&fakeTransformer{doc: sampleDoc(), raw: []byte("{}")},
		&fakeChat{},
		repo,
	)

	replies := h.HandleFile(context.Background(), fileEvent("analiz.pdf", "application/pdf"))
	if !strings.Contains(joinTexts(replies), msgDBFailed) {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleFileUnsupportedKind(t *testing.T) {
	repo := &fakeRepo{}
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{}, &fakeChat{}, repo)

	replies := h.HandleFile(context.Background(), fileEvent("notes.docx", "application/msword"))
	if !strings.Contains(joinTexts(replies), msgUnsupportedKind) {
		t.Fatalf("replies = %+v", replies)
	}
	if len(repo.appended) != 0 {
		t.Fatal("nothing must be persisted")
	}
}

func TestHandleFileMissingAttachment(t *testing.T) {
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{}, &fakeChat{}, &fakeRepo{})
	replies := h.HandleFile(context.Background(), Event{UserID: 42})
	if !strings.Contains(joinTexts(replies), msgPhotoAsPhoto) {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleFileFailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		ex      Extractor
		tr      Transformer
		repo    *fakeRepo
		wantMsg string
	}{
		{
			name:    "extraction failed",
			ex:      &fakeExtractor{err: common.NewAppError("EXTRACT", "x", common.ErrExtractionFailed)},
			tr:      &fakeTransformer{},
			repo:    &fakeRepo{},
			wantMsg: msgExtractFailed,
		},
		{
			name:    "quality too low carries the measurement",
			ex:      &fakeExtractor{err: common.NewAppError("EXTRACT", "72 DPI при минимуме 295", fmt.Errorf("%w: density", common.ErrQualityTooLow))},
			tr:      &fakeTransformer{},
			repo:    &fakeRepo{},
			wantMsg: "72 DPI",
		},
		{
			name:    "transformer unavailable",
			ex:      &fakeExtractor{text: "x"},
			tr:      &fakeTransformer{err: common.NewAppError("LLM_ERROR", "x", common.ErrTransformerUnavailable)},
			repo:    &fakeRepo{},
			wantMsg: msgLLMUnavailable,
		},
		{
			name:    "invalid shape",
			ex:      &fakeExtractor{text: "x"},
			tr:      &fakeTransformer{err: common.NewAppError("LLM_ERROR", "x", common.ErrInvalidShape)},
			repo:    &fakeRepo{},
			wantMsg: msgInvalidShape,
		},
		{
			name:    "persistence failed",
			ex:      &fakeExtractor{text: "x"},
			tr:      &fakeTransformer{doc: sampleDoc(), raw: []byte("{}")},
			repo:    &fakeRepo{userErr: common.NewAppError("DB_ERROR", "x", common.ErrPersistenceFailed)},
			wantMsg: msgDBFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.ex, tt.tr, &fakeChat{}, tt.repo)
			replies := h.HandleFile(context.Background(), fileEvent("analiz.pdf", "application/pdf"))
			out := joinTexts(replies)
			if !strings.Contains(out, tt.wantMsg) {
				t.Fatalf("want %q in:\n%s", tt.wantMsg, out)
			}
			if len(tt.repo.appended) != 0 {
				t.Fatal("failed pipeline must not persist")
			}
		})
	}
}

func TestHandleFileDateDefaultedNotice(t *testing.T) {
	doc := sampleDoc()
	doc.DateDefaulted = true
	h := newTestHandler(
		&fakeExtractor{text: "x"},
		&fakeTransformer{doc: doc, raw: []byte("{}")},
		&fakeChat{},
		&fakeRepo{},
	)

	replies := h.HandleFile(context.Background(), fileEvent("analiz.pdf", "application/pdf"))
	if !strings.Contains(joinTexts(replies), msgDateDefaulted) {
		t.Fatalf("user must be told about the date fallback:\n%s", joinTexts(replies))
	}
}

func TestHandleTextConversation(t *testing.T) {
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{},
		&fakeChat{reply: "Ваш гемоглобин в норме."}, &fakeRepo{})

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "как мои анализы?"})
	if len(replies) != 1 || replies[0].Text != "Ваш гемоглобин в норме." {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleTextChatUnavailable(t *testing.T) {
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{},
		&fakeChat{err: errors.New("503")}, &fakeRepo{})

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "привет"})
	if !strings.Contains(joinTexts(replies), msgLLMUnavailable) {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleTextRunsEmbeddedQuery(t *testing.T) {
	stored := repository.StoredDocument{
		ID:              1,
		UserID:          42,
		InstitutionName: "Хеликс",
		Document:        *sampleDoc(),
	}
	repo := &fakeRepo{docs: []repository.StoredDocument{stored}}
	chat := &fakeChat{reply: "Выполняю запрос:\n/query_test --name 'общий анализ крови' --start 2024-08-01 --end 2024-08-31"}
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{}, chat, repo)

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "покажи анализы за август"})

	out := joinTexts(replies)
	if !strings.Contains(out, "Найдено документов") {
		t.Fatalf("missing result listing:\n%s", out)
	}
	if !strings.Contains(out, "гемоглобин: 145 г/л") {
		t.Fatalf("missing entry line:\n%s", out)
	}

	last := replies[len(replies)-1]
	if len(last.Document) == 0 {
		t.Fatal("query results must come with an xlsx attachment")
	}
	if last.DocumentName != "test_2024-08-01_2024-08-31.xlsx" {
		t.Fatalf("attachment name = %q", last.DocumentName)
	}
}

func TestHandleTextQueryNothingFound(t *testing.T) {
	chat := &fakeChat{reply: "/query_test --name 'биохимия' --start 2024-01-01 --end 2024-01-31"}
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{}, chat, &fakeRepo{})

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "что было в январе?"})
	if !strings.Contains(joinTexts(replies), msgNothingFound) {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleTextMalformedModelQuery(t *testing.T) {
	chat := &fakeChat{reply: "/query_test --name кровь --start 2024-01-01 --end 2024-01-31"}
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{}, chat, &fakeRepo{})

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "анализы"})
	if !strings.Contains(joinTexts(replies), msgQueryFailed) {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestHandleStartFallsBackOnChatFailure(t *testing.T) {
	h := newTestHandler(&fakeExtractor{}, &fakeTransformer{},
		&fakeChat{err: errors.New("503")}, &fakeRepo{})

	replies := h.HandleText(context.Background(), Event{UserID: 42, Text: "/start"})
	if !strings.Contains(joinTexts(replies), msgWelcome) {
		t.Fatalf("replies = %+v", replies)
	}
}
