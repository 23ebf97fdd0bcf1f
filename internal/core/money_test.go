package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 1, true},
		{"5000", 5000, true},
		{" 12 500 ", 12500, true},
		{"+300", 300, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"12.5", 0, false},
		{"12,5", 0, false},
		{"abc", 0, false},
		{"+", 0, false},
		{"", 0, false},
		{"1000000000000", MaxAmount, true},
		{"1000000000001", 0, false},
		{"9223372036854775807", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}
