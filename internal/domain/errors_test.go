package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{
			name: "without cause",
			err:  ValidationError("bad input", nil),
			want: "[validation] bad input",
		},
		{
			name: "with cause",
			err:  IOError("write failed", errors.New("disk full")),
			want: "[io] write failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	inner := ConversionError("render page 2", errors.New("mupdf"))
	wrapped := fmt.Errorf("document a.pdf: %w", ExtractionError("ocr failed", inner))

	if !IsType(wrapped, ErrorTypeExtraction) {
		t.Error("expected extraction type in chain")
	}
	if !IsType(wrapped, ErrorTypeConversion) {
		t.Error("expected nested conversion type in chain")
	}
	if IsType(wrapped, ErrorTypeIO) {
		t.Error("did not expect io type in chain")
	}
	if IsType(errors.New("plain"), ErrorTypeIO) {
		t.Error("plain error has no type")
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("HTTP 400")

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}

	p := Permanent(base)
	if !IsPermanent(p) {
		t.Error("expected permanent")
	}
	if !errors.Is(p, base) {
		t.Error("permanent error should unwrap to its cause")
	}
	if !IsPermanent(fmt.Errorf("wrapped: %w", p)) {
		t.Error("permanence should survive wrapping")
	}
	if IsPermanent(base) {
		t.Error("unmarked error must not be permanent")
	}
}
