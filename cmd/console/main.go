package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ConsoleConfig holds the console client's knobs. The timeout bounds one
// full turn, including slow model streams.
type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
	DataDir    string
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("TRAIL_API_BASE_URL", "http://localhost:8787"),
		Timeout:    120 * time.Second,
		DataDir:    getEnv("TRAIL_DATA_DIR", ""),
	}

	// No client-level timeout: each turn carries its own context deadline
	// and a flat timeout would kill healthy long streams.
	client := &http.Client{}

	if !testConnection(&http.Client{Timeout: 5 * time.Second}, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to the trail API at %s.\nStart it with: go run ./cmd/api\n", cfg.APIBaseURL)
		os.Exit(1)
	}

	storage, err := NewStorage(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open save directory: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, client, storage),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
