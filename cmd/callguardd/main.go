// ABOUTME: Entry point for the callguardd daemon
// ABOUTME: Hosts the call dedup engine behind the HTTP ingest API

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/callguard/internal/auth"
	"github.com/2389/callguard/internal/config"
	"github.com/2389/callguard/internal/dedupe"
	"github.com/2389/callguard/internal/httpapi"
	"github.com/2389/callguard/internal/push"
	"github.com/2389/callguard/internal/storage"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            _ _                       _
  ___ __ _| | | __ _ _   _  __ _ _ _| |
 / __/ _' | | |/ _' | | | |/ _' | '_| |
| (_| (_| | | | (_| | |_| | (_| | | | |
 \___\__,_|_|_|\__, |\__,_|\__,_|_| |_|
               |___/
`

// getConfigPath returns the path to the daemon config file.
// Priority: CALLGUARD_CONFIG env var > XDG_CONFIG_HOME/callguard/callguardd.yaml > ~/.config/callguard/callguardd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CALLGUARD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "callguardd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "callguard", "callguardd.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: callguardd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the call dedup daemon")
		fmt.Println("  health   Check daemon health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting callguardd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Open the durable KV store
	kv, err := storage.NewSQLiteKV(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer kv.Close()

	// Build and initialize the dedup engine
	engine := dedupe.New(kv, dedupe.Options{
		ProcessedTTL:  cfg.Dedup.ProcessedTTL,
		CancelledTTL:  cfg.Dedup.CancelledTTL,
		SweepInterval: cfg.Dedup.SweepInterval,
	}, logger)
	engine.Initialize(ctx)
	defer engine.Cleanup()

	// The daemon has no native UI of its own; lifecycle callbacks
	// arrive over the HTTP API, so the handler gets a logging bridge.
	handler := push.NewHandler(engine, &loggingUI{logger: logger}, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.TokenSecret))

	server := httpapi.New(cfg.Server.HTTPAddr, engine, handler, verifier, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// loggingUI stands in for the native call UI bridge on headless
// deployments: it logs what a device-side bridge would render.
type loggingUI struct {
	logger *slog.Logger
}

func (u *loggingUI) ShowIncomingCall(ctx context.Context, intent *push.CallIntent) error {
	u.logger.Info("incoming call",
		"call_id", intent.CallID,
		"room_id", intent.RoomID,
		"caller", intent.CallerName,
		"call_type", intent.CallType,
	)
	return nil
}

func (u *loggingUI) DismissIncomingCall(ctx context.Context, callID string) error {
	u.logger.Info("call dismissed", "call_id", callID)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
