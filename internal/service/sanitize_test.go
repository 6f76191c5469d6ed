package service

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"paidwall/internal/apperrors"
)

func TestSanitizeBodyRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n "} {
		if _, err := SanitizeBody(raw, 1024); !errors.Is(err, apperrors.ErrEmptyBody) {
			t.Fatalf("SanitizeBody(%q): expected ErrEmptyBody, got %v", raw, err)
		}
	}
}

func TestSanitizeBodyRejectsInvalidUTF8(t *testing.T) {
	raw := string([]byte{'h', 'i', 0xff, 0xfe})
	if _, err := SanitizeBody(raw, 1024); !errors.Is(err, apperrors.ErrInvalidBody) {
		t.Fatalf("expected ErrInvalidBody, got %v", err)
	}
}

func TestSanitizeBodyEscapesMarkup(t *testing.T) {
	got, err := SanitizeBody(`<script>alert("hi") & 'x' /`, 1024)
	if err != nil {
		t.Fatalf("SanitizeBody: %v", err)
	}

	want := "&lt;script&gt;alert(&quot;hi&quot;) &amp; &#x27;x&#x27; &#x2F;"
	if got != want {
		t.Fatalf("escaped body mismatch:\n got %q\nwant %q", got, want)
	}

	for _, forbidden := range []string{"<", ">", `"`, "'", "/"} {
		if strings.Contains(got, forbidden) {
			t.Fatalf("escaped body still contains %q: %q", forbidden, got)
		}
	}
}

func TestSanitizeBodyTruncatesBeforeEscaping(t *testing.T) {
	// 2000 plain runes collapse to exactly the 1024-rune bound.
	got, err := SanitizeBody(strings.Repeat("a", 2000), 1024)
	if err != nil {
		t.Fatalf("SanitizeBody: %v", err)
	}
	if n := utf8.RuneCountInString(got); n != 1024 {
		t.Fatalf("expected 1024 runes, got %d", n)
	}

	// A '<' inside the raw bound survives as its escaped form even though
	// escaping expands it past the bound: truncation counts raw input.
	raw := strings.Repeat("a", 1023) + "<" + strings.Repeat("b", 500)
	got, err = SanitizeBody(raw, 1024)
	if err != nil {
		t.Fatalf("SanitizeBody: %v", err)
	}
	if !strings.HasSuffix(got, "&lt;") {
		t.Fatalf("expected escaped '<' at the truncation boundary, got suffix %q", got[len(got)-8:])
	}
	if strings.Contains(got, "b") {
		t.Fatalf("content past the raw bound leaked through: %q", got[1010:])
	}
}

func TestSanitizeAuthorDefaults(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		got, err := SanitizeAuthor(raw, 100, "anon")
		if err != nil {
			t.Fatalf("SanitizeAuthor(%q): %v", raw, err)
		}
		if got != "anon" {
			t.Fatalf("expected default author, got %q", got)
		}
	}
}

func TestSanitizeAuthorEscapesAndTruncates(t *testing.T) {
	got, err := SanitizeAuthor("<b>"+strings.Repeat("x", 200), 100, "anon")
	if err != nil {
		t.Fatalf("SanitizeAuthor: %v", err)
	}

	if !strings.HasPrefix(got, "&lt;b&gt;") {
		t.Fatalf("author markup not escaped: %q", got)
	}
	// 100 raw runes: "<b>" plus 97 x's.
	if want := "&lt;b&gt;" + strings.Repeat("x", 97); got != want {
		t.Fatalf("author truncation mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestSanitizeAuthorRejectsInvalidUTF8(t *testing.T) {
	raw := string([]byte{0xc3, 0x28})
	if _, err := SanitizeAuthor(raw, 100, "anon"); !errors.Is(err, apperrors.ErrInvalidAuthor) {
		t.Fatalf("expected ErrInvalidAuthor, got %v", err)
	}
}
