package format

import "github.com/adcp/salesagent/internal/adcp"

// StandardFormats is the shared registry every tenant advertises absent a
// tenant-specific override, keyed the same way as adcp.CreativeFormat:
// (agent_url, id). A real deployment would fetch this from the AdCP
// creative-format registry agent; this process ships a fixed snapshot.
var StandardFormats = []adcp.CreativeFormat{
	{AgentURL: "https://creative.adcontextprotocol.org", FormatID: "display_300x250", Name: "Medium Rectangle", Width: 300, Height: 250},
	{AgentURL: "https://creative.adcontextprotocol.org", FormatID: "display_728x90", Name: "Leaderboard", Width: 728, Height: 90},
	{AgentURL: "https://creative.adcontextprotocol.org", FormatID: "display_320x50", Name: "Mobile Banner", Width: 320, Height: 50},
	{AgentURL: "https://creative.adcontextprotocol.org", FormatID: "display_160x600", Name: "Wide Skyscraper", Width: 160, Height: 600},
	{AgentURL: "https://creative.adcontextprotocol.org", FormatID: "video_outstream", Name: "Outstream Video", Width: 640, Height: 360},
}

// MergeFormats layers a tenant's custom CreativeFormat rows over
// StandardFormats. A tenant row sharing (agent_url, id) with a standard
// format replaces it; everything else from both lists is additive. The
// returned formats are stamped with tenantID so callers never see the
// registry's zero tenant value.
func MergeFormats(tenantID string, tenantFormats []adcp.CreativeFormat) []adcp.CreativeFormat {
	index := make(map[string]int, len(StandardFormats)+len(tenantFormats))
	merged := make([]adcp.CreativeFormat, 0, len(StandardFormats)+len(tenantFormats))

	for _, f := range StandardFormats {
		f.TenantID = tenantID
		index[formatKey(f)] = len(merged)
		merged = append(merged, f)
	}
	for _, f := range tenantFormats {
		key := formatKey(f)
		if i, ok := index[key]; ok {
			merged[i] = f
			continue
		}
		index[key] = len(merged)
		merged = append(merged, f)
	}
	return merged
}

// Known reports whether ref resolves against the merged registry for
// tenantID, given the tenant's own custom formats.
func Known(tenantID string, tenantFormats []adcp.CreativeFormat, ref adcp.FormatRef) bool {
	for _, f := range MergeFormats(tenantID, tenantFormats) {
		if f.FormatID == ref.ID && SameAgent(f.AgentURL, ref.AgentURL) {
			return true
		}
	}
	return false
}

func formatKey(f adcp.CreativeFormat) string {
	return NormalizeAgentURL(f.AgentURL) + "\x00" + f.FormatID
}
