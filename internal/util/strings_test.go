package util

import "testing"

func TestStripControl(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line1\nline2", "line1\nline2"},
		{"tab\there", "tab\there"},
		{"bell\x07and\x00null", "bellandnull"},
		{"escape\x1b[31mseq", "escape[31mseq"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripControl(tc.in); got != tc.want {
			t.Errorf("StripControl(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateBytes(t *testing.T) {
	s, dropped := TruncateBytes("hello", 10)
	if s != "hello" || dropped != 0 {
		t.Errorf("short string should pass through, got %q dropped=%d", s, dropped)
	}

	s, dropped = TruncateBytes("hello world", 5)
	if s != "hello" || dropped != 6 {
		t.Errorf("got %q dropped=%d, want %q dropped=6", s, dropped, "hello")
	}
}

func TestTruncateBytesRespectsUTF8(t *testing.T) {
	// "héllo": é is two bytes; cutting at 2 would split it.
	s, dropped := TruncateBytes("héllo", 2)
	if s != "h" {
		t.Errorf("got %q, want %q", s, "h")
	}
	if dropped != 5 {
		t.Errorf("dropped = %d, want 5", dropped)
	}
}
