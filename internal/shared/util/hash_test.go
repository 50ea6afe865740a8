package util

import "testing"

func TestHashUserKey(t *testing.T) {
	id := "google:12345"
	got := HashUserKey(id)
	if got != HashUserKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "lecture 1.pdf", want: "lecture 1.pdf"},
		{in: "dir/slides.pptx", want: "dir_slides.pptx"},
		{in: `c:\tmp\grades.xlsx`, want: "c:_tmp_grades.xlsx"},
		{in: "../etc/passwd", wantErr: true},
		{in: `notes\..\secret.pdf`, wantErr: true},
		{in: "..", wantErr: true},
		{in: "notes...pdf", want: "notes...pdf"},
		{in: "Ch 1..pdf", want: "Ch 1..pdf"},
		{in: "..hidden.csv", want: "..hidden.csv"},
		{in: "   ", wantErr: true},
		{in: "bad\x00name.pdf", want: "badname.pdf"},
	}
	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SanitizeFileName(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}
