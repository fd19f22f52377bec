package domain

import "testing"

func TestNormalizeISBN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare isbn-13", "9780132350884", "9780132350884"},
		{"hyphenated isbn-13", "978-0-13-235088-4", "9780132350884"},
		{"spaced isbn-10", "0 13 235088 2", "0132350882"},
		{"isbn-10 with x check digit", "043942089x", "043942089X"},
		{"surrounding whitespace", "  9780132350884  ", "9780132350884"},
		{"too short", "12345", ""},
		{"letters", "ABC0132350884", ""},
		{"twelve digits", "978013235088", ""},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeISBN(tc.input); got != tc.want {
				t.Fatalf("NormalizeISBN(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestClassifyISBN(t *testing.T) {
	t.Parallel()

	isbn10, isbn13 := ClassifyISBN("0-13-235088-2")
	if isbn10 != "0132350882" || isbn13 != "" {
		t.Fatalf("expected isbn-10 slot, got %q / %q", isbn10, isbn13)
	}

	isbn10, isbn13 = ClassifyISBN("9780132350884")
	if isbn10 != "" || isbn13 != "9780132350884" {
		t.Fatalf("expected isbn-13 slot, got %q / %q", isbn10, isbn13)
	}

	isbn10, isbn13 = ClassifyISBN("not-an-isbn")
	if isbn10 != "" || isbn13 != "" {
		t.Fatalf("expected no slot, got %q / %q", isbn10, isbn13)
	}
}

func TestDeriveTitleStatus(t *testing.T) {
	t.Parallel()

	if got := DeriveTitleStatus(2, true); got != TitleStatusAvailable {
		t.Fatalf("copies available must win, got %s", got)
	}
	if got := DeriveTitleStatus(0, true); got != TitleStatusReserved {
		t.Fatalf("expected reserved, got %s", got)
	}
	if got := DeriveTitleStatus(0, false); got != TitleStatusBorrowed {
		t.Fatalf("expected borrowed, got %s", got)
	}
}
