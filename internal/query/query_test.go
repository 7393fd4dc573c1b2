package query

import (
	"errors"
	"testing"
	"time"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
)

func TestParseValidQuery(t *testing.T) {
	f, err := Parse("/query_test --name 'общий анализ крови' --start 2024-08-01 --end 2024-08-31")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Format != entity.FormatTest {
		t.Fatalf("format = %q", f.Format)
	}
	if f.Name != "общий анализ крови" {
		t.Fatalf("name = %q", f.Name)
	}
	if !f.Start.Equal(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", f.Start)
	}
	if !f.End.Equal(time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", f.End)
	}
}

func TestParseEmbeddedInConversation(t *testing.T) {
	text := "Конечно! Вот команда:\n/query_study --name 'ультразвуковое исследование' --start 2024-01-01 --end 2024-12-31\nЧто-нибудь ещё?"
	f, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Format != entity.FormatStudy {
		t.Fatalf("format = %q", f.Format)
	}
	if f.Name != "ультразвуковое исследование" {
		t.Fatalf("name = %q", f.Name)
	}
}

func TestParseNotAQuery(t *testing.T) {
	for _, text := range []string{
		"hello, how are you?",
		"Ваши последние анализы в норме.",
		"",
	} {
		_, err := Parse(text)
		if !errors.Is(err, common.ErrNotAQuery) {
			t.Fatalf("Parse(%q) = %v, want ErrNotAQuery", text, err)
		}
	}
}

func TestParseMalformedQuery(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "missing name", text: "/query_test --start 2024-08-01 --end 2024-08-31"},
		{name: "missing end", text: "/query_test --name 'кровь' --start 2024-08-01"},
		{name: "unknown type", text: "/query_pills --name 'аспирин' --start 2024-08-01 --end 2024-08-31"},
		{name: "unquoted name", text: "/query_test --name кровь --start 2024-08-01 --end 2024-08-31"},
		{name: "non-iso dates", text: "/query_test --name 'кровь' --start 01.08.2024 --end 31.08.2024"},
		{name: "start after end", text: "/query_test --name 'кровь' --start 2024-08-31 --end 2024-08-01"},
		{name: "tokens out of order", text: "/query_test --start 2024-08-01 --end 2024-08-31 --name 'кровь'"},
		{name: "bare marker", text: "/query_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if !errors.Is(err, common.ErrMalformedQuery) {
				t.Fatalf("Parse(%q) = %v, want ErrMalformedQuery", tt.text, err)
			}
		})
	}
}

func TestParseNormalizesName(t *testing.T) {
	f, err := Parse("/query_test --name 'Общий Анализ Крови' --start 2024-08-01 --end 2024-08-31")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name != "общий анализ крови" {
		t.Fatalf("name must be lower-cased for comparison against stored types, got %q", f.Name)
	}
}

func TestParseEqualDates(t *testing.T) {
	if _, err := Parse("/query_test --name 'кровь' --start 2024-08-01 --end 2024-08-01"); err != nil {
		t.Fatalf("start == end is valid: %v", err)
	}
}
