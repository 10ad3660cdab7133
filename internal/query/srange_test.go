package query

import (
	"errors"
	"slices"
	"testing"
)

func TestParseSessionRange(t *testing.T) {
	tests := []struct {
		expr    string
		n       int
		want    []int
		wantErr error
	}{
		{"4", 6, []int{3}, nil},
		{"2-3", 4, []int{1, 2}, nil},
		{"1,3-5", 6, []int{0, 2, 3, 4}, nil},
		{" 2 , 1 ", 3, []int{0, 1}, nil},
		{"1-3,2", 3, []int{0, 1, 2}, nil},
		{"1-1", 1, []int{0}, nil},
		{"5-3", 6, nil, ErrInvalidRange},
		{"7", 6, nil, ErrOutOfRange},
		{"0", 6, nil, ErrOutOfRange},
		{"2-9", 6, nil, ErrOutOfRange},
		{"", 6, nil, ErrInvalidRange},
		{"abc", 6, nil, ErrInvalidRange},
		{"1,,2", 6, nil, ErrInvalidRange},
		{"1-x", 6, nil, ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseSessionRange(tt.expr, tt.n)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateUpperBound(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"2026-01-01":           "2026-01-01T23:59:59Z",
		"2026-01-01T08:00:00Z": "2026-01-01T08:00:00Z",
	}
	for in, want := range tests {
		if got := DateUpperBound(in); got != want {
			t.Errorf("DateUpperBound(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHeuristicCounter(t *testing.T) {
	var c HeuristicCounter
	if got := c.CountText(""); got != 0 {
		t.Errorf("empty text = %d tokens, want 0", got)
	}
	short, long := c.CountText("hello"), c.CountText("hello world, this is a longer sentence")
	if short <= 0 || long <= short {
		t.Errorf("short = %d, long = %d", short, long)
	}
}

func TestTokenizer_UnknownEncodingFallsBack(t *testing.T) {
	tk := NewTokenizer("no-such-encoding")
	if tk.Load() {
		t.Fatal("Load() = true for an unknown encoding")
	}
	text := "hello world, this is a longer sentence"
	if got, want := tk.CountText(text), (HeuristicCounter{}).CountText(text); got != want {
		t.Errorf("CountText = %d, want heuristic %d", got, want)
	}
}

func TestService_LoadTokenizer(t *testing.T) {
	tk := NewTokenizer("no-such-encoding")
	q := &Service{tokens: tk}
	q.LoadTokenizer()
	if tk.encoder != nil {
		t.Error("encoder set for an unknown encoding")
	}
	if got := tk.CountText("abcdefgh"); got != 2 {
		t.Errorf("CountText = %d, want 2", got)
	}
	(&Service{tokens: HeuristicCounter{}}).LoadTokenizer()
	(&Service{}).LoadTokenizer()
}
