package constants

import "testing"

func TestResolveKind(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mime     string
		want     FileKind
		ok       bool
	}{
		{name: "pdf by mime", fileName: "doc", mime: "application/pdf", want: KindPDF, ok: true},
		{name: "json by mime", fileName: "doc", mime: "application/json", want: KindJSON, ok: true},
		{name: "png by mime", fileName: "doc", mime: "image/png", want: KindPNG, ok: true},
		{name: "jpeg by mime", fileName: "doc", mime: "image/jpeg", want: KindJPEG, ok: true},
		{name: "pdf by suffix", fileName: "analiz.pdf", mime: "application/octet-stream", want: KindPDF, ok: true},
		{name: "suffix is case-insensitive", fileName: "SCAN.PNG", mime: "", want: KindPNG, ok: true},
		{name: "jpg suffix", fileName: "scan.jpg", mime: "", want: KindJPG, ok: true},
		{name: "docx rejected", fileName: "notes.docx", mime: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", want: "", ok: false},
		{name: "no hint at all", fileName: "file", mime: "application/octet-stream", want: "", ok: false},
		{name: "suffix must be a suffix", fileName: "pdf.txt", mime: "", want: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveKind(tt.fileName, tt.mime)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ResolveKind(%q, %q) = (%q, %v), want (%q, %v)",
					tt.fileName, tt.mime, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIsImageKind(t *testing.T) {
	for _, k := range []FileKind{KindPNG, KindJPEG, KindJPG} {
		if !IsImageKind(k) {
			t.Fatalf("%q must be an image kind", k)
		}
	}
	for _, k := range []FileKind{KindJSON, KindPDF} {
		if IsImageKind(k) {
			t.Fatalf("%q must not be an image kind", k)
		}
	}
}
