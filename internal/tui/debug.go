package tui

import (
	"fmt"
	"os"

	"grimm.is/pfw/internal/logging"
)

// OpenDebugLog appends debug-level JSON logs to path. The terminal belongs
// to the TUI, so this is the only place console logs can go.
func OpenDebugLog(path string) (*logging.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}
	logger := logging.New(logging.Config{
		Level:  logging.LevelDebug,
		Output: f,
		JSON:   true,
	}).WithComponent("console")
	return logger, f.Close, nil
}
