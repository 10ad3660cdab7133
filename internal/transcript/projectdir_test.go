package transcript

import "testing"

func TestDecodeProjectDir(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"-home-matt-src-personal-app", "/home/matt/src/personal/app"},
		{"-tmp", "/tmp"},
		{"plain-name", "plain-name"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DecodeProjectDir(tt.in); got != tt.want {
			t.Errorf("DecodeProjectDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProjectDirRoundTrip(t *testing.T) {
	for _, p := range []string{"/home/user/src/app", "/Users/x/code", "/srv"} {
		enc := EncodeProjectDir(p)
		if enc[0] != '-' {
			t.Errorf("EncodeProjectDir(%q) = %q, missing prefix", p, enc)
		}
		if got := DecodeProjectDir(enc); got != p {
			t.Errorf("round trip %q -> %q -> %q", p, enc, got)
		}
	}
}
