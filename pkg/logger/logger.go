package logger

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

var Log *slog.Logger

var (
	sinkMu   sync.Mutex
	sinkFile *os.File
)

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global slog logger. The level argument wins over
// NOSTRLY_LOG_LEVEL; NOSTRLY_LOG_SINK=file:/path redirects output to a file.
func Init(level string) {
	lvl := level
	if strings.TrimSpace(lvl) == "" {
		lvl = os.Getenv("NOSTRLY_LOG_LEVEL")
	}

	var out io.Writer = os.Stdout
	sink := os.Getenv("NOSTRLY_LOG_SINK")
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			sinkMu.Lock()
			sinkFile = f
			sinkMu.Unlock()
			out = f
		}
	}
	Log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(lvl)}))
}

// InitWriter points the logger at w. Used by tests and the one-shot CLI
// commands that keep stdout for JSON output.
func InitWriter(w io.Writer, level string) {
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Sync closes the file sink if one was opened.
func Sync() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkFile != nil {
		_ = sinkFile.Sync()
		_ = sinkFile.Close()
		sinkFile = nil
	}
}

func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogConfigSummary prints a human-friendly block of configuration results to
// stdout, independent of the configured log sink.
func LogConfigSummary(title string, items []string) {
	if len(items) == 0 {
		return
	}
	human := strings.ReplaceAll(title, "_", " ")
	header := "== " + human + " "
	const width = 60
	if len(header) < width {
		header = header + strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(os.Stdout, header)
	for _, it := range items {
		fmt.Fprintln(os.Stdout, "- "+it)
	}
	fmt.Fprintln(os.Stdout)
}

// dayMagnitudes formats anything of a day or more as whole days.
var dayMagnitudes = []humanize.RelTimeMagnitude{
	{D: 2 * humanize.Day, Format: "1 day", DivBy: 1},
	{D: math.MaxInt64, Format: "%d days", DivBy: humanize.Day},
}

// HumanDuration renders long TTLs as "7 days" rather than "168h0m0s".
func HumanDuration(d time.Duration) string {
	if d < 24*time.Hour {
		return d.String()
	}
	anchor := time.Unix(0, 0)
	return humanize.CustomRelTime(anchor, anchor.Add(d), "", "", dayMagnitudes)
}
