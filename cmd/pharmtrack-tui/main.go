package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pharmtrack/internal/client"
	"pharmtrack/internal/tui"
)

func main() {
	url := flag.String("url", envOr("PHARMTRACK_URL", "http://localhost:8080/api"), "base URL of the pharmtrack API")
	token := flag.String("token", os.Getenv("PHARMTRACK_TOKEN"), "bearer token for the API (optional)")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	refresh := flag.Duration("refresh", 5*time.Second, "how often to poll the daemon")
	flag.Parse()

	c, err := client.New(*url, *token, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(tui.New(c, *refresh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
