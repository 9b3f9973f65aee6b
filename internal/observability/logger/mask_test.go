package logger

import "testing"

func TestMaskAPIKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"abcd", "****abcd"},
		{"rise_live_1234567890", "****7890"},
	}
	for _, tc := range cases {
		if got := MaskAPIKey(tc.in); got != tc.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskPayeeID(t *testing.T) {
	if got := MaskPayeeID("payee-alice"); got != "****lice" {
		t.Errorf("MaskPayeeID = %q", got)
	}
}
