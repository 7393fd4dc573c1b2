// Package export renders query results as an XLSX workbook so the user
// can take their history out of the chat.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/repository"
)

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var testHeaders = []string{"Дата", "Учреждение", "Показатель", "Значение", "Единицы", "Норма", "В норме", "Комментарий"}
var studyHeaders = []string{"Дата", "Учреждение", "Аппарат", "Заключение", "Протокол", "Рекомендация"}

// BuildXLSX flattens the documents' entry rows into one sheet. All
// documents are expected to share a format (they come from one range
// query); mixed input fails rather than producing a ragged sheet.
func (s *Service) BuildXLSX(format entity.Format, docs []repository.StoredDocument) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Sheet1"

	var headers []string
	switch format {
	case entity.FormatTest:
		headers = testHeaders
	case entity.FormatStudy:
		headers = studyHeaders
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	for _, d := range docs {
		if d.Document.Format != format {
			return nil, fmt.Errorf("document %d has format %q, want %q", d.ID, d.Document.Format, format)
		}
		date := d.Document.DocumentDate.Format("2006-01-02")
		switch format {
		case entity.FormatTest:
			for _, e := range d.Document.TestEntries {
				write(1, date)
				write(2, d.InstitutionName)
				write(3, e.Name)
				write(4, e.Value)
				write(5, e.Unit)
				write(6, e.Range)
				write(7, normalLabel(e.IsNormal))
				write(8, e.Commentary)
				row++
			}
		case entity.FormatStudy:
			for _, e := range d.Document.StudyEntries {
				write(1, date)
				write(2, d.InstitutionName)
				write(3, e.Device)
				write(4, e.Result)
				write(5, e.Report)
				write(6, e.Recommendation)
				row++
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "D", "F", 30)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"format", string(format),
		"documents", len(docs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func normalLabel(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "да"
	default:
		return "нет"
	}
}
