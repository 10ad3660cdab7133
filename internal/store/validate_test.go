package store

import (
	"strings"
	"testing"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{20, 20},
		{500, 500},
		{99999, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidateTags(t *testing.T) {
	many := make([]string, MaxTags+1)
	for i := range many {
		many[i] = "t"
	}
	tests := []struct {
		name    string
		tags    []string
		wantErr string
	}{
		{"empty_list", nil, ""},
		{"normal", []string{"review:code", "keep"}, ""},
		{"max_length", []string{strings.Repeat("a", MaxTagLength)}, ""},
		{"multibyte_at_max", []string{strings.Repeat("é", MaxTagLength)}, ""},
		{"too_long", []string{strings.Repeat("x", 300)}, "too long"},
		{"too_many", many, "too many"},
		{"blank", []string{"ok", "  "}, "blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTags(tt.tags)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateTags() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateTags() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
