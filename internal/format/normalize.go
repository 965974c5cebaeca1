// Package format normalizes and resolves the {agent_url, id} creative-format
// references that travel on the wire. Format identifiers are never bare
// strings; the agent_url half is normalized before any registry comparison
// so that "https://agents.example.com/mcp" and
// "https://agents.example.com/" refer to the same creative agent.
package format

import "strings"

// wellKnownSuffixes are stripped (in order) from the end of an agent_url
// before two references are compared, after any /.well-known/ path has been
// cut off, so "https://agents.example.com/mcp/.well-known/agent.json"
// normalizes to "https://agents.example.com".
var wellKnownSuffixes = []string{"/mcp", "/a2a"}

// NormalizeAgentURL strips a trailing slash, then a /.well-known/* discovery
// path, then a trailing /mcp or /a2a transport suffix, then any slash left
// at the end, so two
// references to the same creative agent compare equal regardless of which
// transport path the caller used to reach it.
func NormalizeAgentURL(agentURL string) string {
	u := strings.TrimSpace(agentURL)
	u = strings.TrimSuffix(u, "/")
	if idx := strings.Index(u, "/.well-known/"); idx != -1 {
		u = u[:idx]
	}
	for _, suffix := range wellKnownSuffixes {
		u = strings.TrimSuffix(u, suffix)
	}
	u = strings.TrimSuffix(u, "/")
	return u
}

// SameAgent reports whether a and b name the same creative agent once
// normalized.
func SameAgent(a, b string) bool {
	return NormalizeAgentURL(a) == NormalizeAgentURL(b)
}
