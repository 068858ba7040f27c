package tui

import (
	"fmt"
	"io"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the startup banner.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"  _____     _                  ", "#5eead4"},
		{" |_   _| __(_) __ _  __ _  ___ ", "#2dd4bf"},
		{"   | || '__| |/ _` |/ _` |/ _ \\", "#14b8a6"},
		{"   | || |  | | (_| | (_| |  __/", "#0d9488"},
		{"   |_||_|  |_|\\__,_|\\__, |\\___|", "#0f766e"},
		{"                    |___/      ", "#115e59"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String("v"+version).Faint())
}

var zoneColors = map[domain.Classification]string{
	domain.ClassLowRisk:    "#22c55e",
	domain.ClassAlertZone:  "#f59e0b",
	domain.ClassDangerZone: "#ef4444",
}

// Zone renders a classification in its traffic-light color.
func Zone(c domain.Classification) string {
	color, ok := zoneColors[c]
	if !ok {
		return string(c)
	}
	p := termenv.ColorProfile()
	return termenv.String(string(c)).Foreground(p.Color(color)).Bold().String()
}
