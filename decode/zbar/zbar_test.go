package zbar

import (
	"errors"
	"testing"

	qrscan "github.com/vestify/qrscan-go"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		out      string
		exp      string
		notFound bool
	}{
		{"ABC123\n", "ABC123", false},
		{"https://example.com/a?b=c\nSECOND\n", "https://example.com/a?b=c", false},
		{"WIFI:S:net;;\r\n", "WIFI:S:net;;", false},
		{"", "", true},
		{"\n", "", true},
	}
	for _, tc := range tests {
		s, err := parseOutput([]byte(tc.out))
		if tc.notFound {
			if !errors.Is(err, qrscan.ErrNotFound) {
				t.Errorf("parsing %q, got %q %v, expected ErrNotFound", tc.out, s, err)
			}
			continue
		}
		if err != nil || s != tc.exp {
			t.Errorf("parsing %q, got %q %v, expected %q", tc.out, s, err, tc.exp)
		}
	}
}
