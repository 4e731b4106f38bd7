package anthropicprovider

import "testing"

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", defaultBaseURL},
		{"  ", defaultBaseURL},
		{"https://proxy.example.com", "https://proxy.example.com"},
		{"https://proxy.example.com/", "https://proxy.example.com"},
		{"https://proxy.example.com/v1", "https://proxy.example.com"},
		{"https://proxy.example.com/v1/", "https://proxy.example.com"},
		{"/v1", defaultBaseURL},
	}
	for _, tt := range tests {
		if got := normalizeBaseURL(tt.in); got != tt.want {
			t.Errorf("normalizeBaseURL(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewProvider_Defaults(t *testing.T) {
	p := NewProvider("key", "", "", "")
	if p.model == "" {
		t.Error("expected a default model")
	}
	if p.system == "" {
		t.Error("expected a default system prompt")
	}
}
