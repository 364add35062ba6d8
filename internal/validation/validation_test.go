package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRegion_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateRegion(tc.input)
			if !errors.Is(err, ErrRegionEmpty) {
				t.Errorf("error = %v, want ErrRegionEmpty", err)
			}
		})
	}
}

func TestValidateRegion_Length(t *testing.T) {
	if _, err := ValidateRegion("x"); !errors.Is(err, ErrRegionTooShort) {
		t.Errorf("error = %v, want ErrRegionTooShort", err)
	}
	if _, err := ValidateRegion(strings.Repeat("a", RegionMaxLen+1)); !errors.Is(err, ErrRegionTooLong) {
		t.Errorf("error = %v, want ErrRegionTooLong", err)
	}
	if _, err := ValidateRegion(strings.Repeat("ä", RegionMaxLen)); err != nil {
		t.Errorf("error = %v for %d multi-byte runes, want nil", err, RegionMaxLen)
	}
}

func TestValidateRegion_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "Pu/ne"},
		{"backslash", "Pu\\ne"},
		{"question", "Pu?ne"},
		{"hash", "Pu#ne"},
		{"control", "Pu\x00ne"},
		{"percent", "Pu%ne"},
		{"ampersand", "Pu&ne"},
		{"angle", "<script>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateRegion(tc.input)
			if !errors.Is(err, ErrRegionInvalidChars) {
				t.Errorf("error = %v, want ErrRegionInvalidChars", err)
			}
		})
	}
}

func TestValidateRegion_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"simple", "Pune", "Pune"},
		{"with space", "Navi Mumbai", "Navi Mumbai"},
		{"comma", "Haveli, Pune", "Haveli, Pune"},
		{"hyphen", "Pimpri-Chinchwad", "Pimpri-Chinchwad"},
		{"period and apostrophe", "St. John's", "St. John's"},
		{"trimmed", "  Maharashtra  ", "Maharashtra"},
		{"devanagari", "पुणे", "पुणे"},
		{"devanagari with anusvara", "नवी मुंबई", "नवी मुंबई"},
		{"tamil", "சென்னை", "சென்னை"},
		{"digits", "Zone 51", "Zone 51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateRegion(tc.input)
			if err != nil {
				t.Fatalf("ValidateRegion(%q) error = %v", tc.input, err)
			}
			if got != tc.wantNorm {
				t.Errorf("ValidateRegion(%q) = %q, want %q", tc.input, got, tc.wantNorm)
			}
		})
	}
}

func TestParseMonths(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"1", 1, false},
		{" 12 ", 12, false},
		{"24", 24, false},
		{"0", 0, true},
		{"25", 0, true},
		{"-3", 0, true},
		{"six", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMonths(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrMonthsOutOfRange) {
				t.Errorf("ParseMonths(%q) error = %v, want ErrMonthsOutOfRange", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMonths(%q) = %d, %v; want %d, nil", tt.raw, got, err, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	if got, err := ParseBool(""); got != nil || err != nil {
		t.Errorf("ParseBool(\"\") = %v, %v; want nil, nil", got, err)
	}
	if got, err := ParseBool("false"); err != nil || got == nil || *got {
		t.Errorf("ParseBool(false) = %v, %v", got, err)
	}
	if got, err := ParseBool("1"); err != nil || got == nil || !*got {
		t.Errorf("ParseBool(1) = %v, %v", got, err)
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Error("ParseBool(maybe) error = nil, want error")
	}
}
