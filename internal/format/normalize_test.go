package format

import "testing"

func TestNormalizeAgentURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "https://agents.example.com", "https://agents.example.com"},
		{"trailing slash", "https://agents.example.com/", "https://agents.example.com"},
		{"mcp suffix", "https://agents.example.com/mcp", "https://agents.example.com"},
		{"a2a suffix", "https://agents.example.com/a2a", "https://agents.example.com"},
		{"mcp suffix with trailing slash", "https://agents.example.com/mcp/", "https://agents.example.com"},
		{"well-known agent card", "https://agents.example.com/.well-known/agent.json", "https://agents.example.com"},
		{"well-known under mcp", "https://agents.example.com/mcp/.well-known/agent.json", "https://agents.example.com"},
		{"padded", "  https://agents.example.com/mcp  ", "https://agents.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeAgentURL(tc.in); got != tc.want {
				t.Fatalf("NormalizeAgentURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSameAgent(t *testing.T) {
	if !SameAgent("https://agents.example.com/mcp", "https://agents.example.com/") {
		t.Fatal("expected the mcp-suffixed and bare urls to match")
	}
	if SameAgent("https://agents.example.com", "https://other.example.com") {
		t.Fatal("expected distinct hosts not to match")
	}
}
