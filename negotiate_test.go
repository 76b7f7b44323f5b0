package apigate

import "testing"

func TestNegotiate(t *testing.T) {
	testCases := []struct {
		name      string
		accept    string
		supported []string
		want      string
	}{
		{
			name:      "absent header resolves to first supported",
			accept:    "",
			supported: DefaultSupportedTypes,
			want:      "text/html",
		},
		{
			name:      "exact match",
			accept:    "application/json",
			supported: DefaultSupportedTypes,
			want:      "application/json",
		},
		{
			name:      "wildcard subtype",
			accept:    "text/*",
			supported: []string{"application/json", "text/csv"},
			want:      "text/csv",
		},
		{
			name:      "full wildcard resolves to first supported",
			accept:    "*/*",
			supported: DefaultSupportedTypes,
			want:      "text/html",
		},
		{
			name:      "bare star is treated as full wildcard",
			accept:    "*",
			supported: []string{"application/json"},
			want:      "application/json",
		},
		{
			name:      "quality weights decide",
			accept:    "text/html;q=0.2, application/json;q=0.9",
			supported: DefaultSupportedTypes,
			want:      "application/json",
		},
		{
			name:      "specific match beats wildcard at equal quality",
			accept:    "*/*, text/csv",
			supported: []string{"text/html", "text/csv"},
			want:      "text/csv",
		},
		{
			name:      "nothing matches falls back to first supported",
			accept:    "image/png",
			supported: DefaultSupportedTypes,
			want:      "text/html",
		},
		{
			name:      "zero quality is no match",
			accept:    "application/json;q=0",
			supported: []string{"text/plain", "application/json"},
			want:      "text/plain",
		},
		{
			name:      "garbage entries are skipped",
			accept:    ";;;, application/json",
			supported: DefaultSupportedTypes,
			want:      "application/json",
		},
		{
			name:      "browser style header",
			accept:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			supported: []string{"application/json", "text/html"},
			want:      "text/html",
		},
		{
			name:      "tie resolves to first supported",
			accept:    "text/plain, text/csv",
			supported: []string{"text/plain", "text/csv"},
			want:      "text/plain",
		},
		{
			name:      "no supported types",
			accept:    "application/json",
			supported: nil,
			want:      "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := Negotiate(testCase.accept, testCase.supported)
			if got != testCase.want {
				t.Errorf("Negotiate(%q) = %q, want %q", testCase.accept, got, testCase.want)
			}
		})
	}
}
