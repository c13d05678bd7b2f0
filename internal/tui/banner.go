package tui

import "fmt"

// RenderBanner produces the connection banner shown once the session reaches the
// connected state.
func RenderBanner(url string, originPort int, width int) string {
	out := "\n"
	out += fmt.Sprintf("  %s\n", titleStyle.Render("localrun"))
	out += "\n"
	out += fmt.Sprintf("  %s    %s %s %s\n",
		labelStyle.Render("Forwarding"),
		urlStyle.Render(url),
		labelStyle.Render("->"),
		fmt.Sprintf("localhost:%d", originPort),
	)
	out += fmt.Sprintf("  %s        %s\n",
		labelStyle.Render("Status"),
		StyledTunnelStatus("connected"),
	)
	out += "\n"
	out += dimStyle.Render("  ─────────────────────────────────────────────────────────")
	out += "\n"
	return out
}
