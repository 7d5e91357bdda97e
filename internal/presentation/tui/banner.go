package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the orderflow banner and the version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                 _             __ _", "#818cf8"},
		{"   ___  _ __ __| | ___ _ __ / _| | _____      __", "#a78bfa"},
		{"  / _ \\| '__/ _` |/ _ \\ '__| |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{" | (_) | | | (_| |  __/ |  |  _| | (_) \\ V  V /", "#e879f9"},
		{"  \\___/|_|  \\__,_|\\___|_|  |_| |_|\\___/ \\_/\\_/", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
