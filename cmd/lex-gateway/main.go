// ABOUTME: Entry point for the lex-gateway legal Q&A server
// ABOUTME: Subcommands: serve, token, health, version

package main

import (
	"context"
	"fmt"
	"io"
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
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lexgate/lex-gateway/internal/auth"
	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/config"
	"github.com/lexgate/lex-gateway/internal/conversation"
	"github.com/lexgate/lex-gateway/internal/gateway"
	"github.com/lexgate/lex-gateway/internal/orchestrator"
	"github.com/lexgate/lex-gateway/internal/query"
	"github.com/lexgate/lex-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                            _
| | _____  __   __ _  __ _| |_ _____      ____ _ _   _
| |/ _ \ \/ /  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |  __/>  <  | (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|\___/_/\_\  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
               |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: LEXGATE_CONFIG env var > XDG_CONFIG_HOME/lexgate/gateway.yaml > ~/.config/lexgate/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("LEXGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "lexgate", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lex-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the gateway server")
		fmt.Println("  token --subscriber ID    Issue a subscriber bearer token")
		fmt.Println("  health                   Check gateway health")
		fmt.Println("  version                  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Printf("lex-gateway %s\n", version)
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Qdrant:   %s:%d\n", cfg.Backends.Qdrant.Host, cfg.Backends.Qdrant.Port)
	green.Print("    ▶ ")
	fmt.Printf("Corpora:  %s\n", strings.Join(configuredSources(cfg), ", "))
	fmt.Println()

	logger.Info("starting lex-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	searcher, err := backend.NewQdrantSearcher(cfg.Backends.Qdrant.Host, cfg.Backends.Qdrant.Port)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}

	openaiClient := backend.NewOpenAIClient(
		cfg.Backends.OpenAI.APIKey,
		cfg.Backends.OpenAI.Model,
		cfg.Backends.OpenAI.EmbeddingModel,
	)

	adapters, collections, err := buildAdapters(cfg, searcher, openaiClient, logger)
	if err != nil {
		return err
	}

	convs := conversation.New(st, cfg.Conversation.TTL, logger)
	defer convs.Close()

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	gate := auth.NewGate(cfg.Auth.Passphrase, cfg.Auth.PassphraseHash, verifier, st, logger)
	orch := orchestrator.New(backend.NewRegistry(adapters...), convs, cfg.Aggregation.MaxCitations, logger)

	gw := gateway.New(cfg, gate, orch, st, searcher, collections, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return gw.Shutdown(shutdownCtx)
}

// buildAdapters creates one corpus adapter per configured source and returns
// the source→collection map used by the health endpoint.
func buildAdapters(cfg *config.Config, searcher backend.Searcher, client *backend.OpenAIClient, logger *slog.Logger) ([]backend.Adapter, map[query.Source]string, error) {
	adapters := make([]backend.Adapter, 0, len(cfg.Backends.Sources))
	collections := make(map[query.Source]string, len(cfg.Backends.Sources))

	for name, sc := range cfg.Backends.Sources {
		source := query.Source(name)
		known := false
		for _, s := range query.Priority() {
			if s == source {
				known = true
				break
			}
		}
		if !known {
			return nil, nil, fmt.Errorf("unknown source %q in backends.sources", name)
		}

		adapters = append(adapters, backend.NewCorpusAdapter(
			source,
			sc.Collection,
			client,
			searcher,
			client,
			uint64(cfg.Aggregation.MaxCitations),
			cfg.Backends.Timeout,
			logger,
		))
		collections[source] = sc.Collection
	}

	if len(adapters) == 0 {
		return nil, nil, fmt.Errorf("no sources configured under backends.sources")
	}

	return adapters, collections, nil
}

func configuredSources(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Backends.Sources))
	for _, s := range query.Priority() {
		if _, ok := cfg.Backends.Sources[string(s)]; ok {
			names = append(names, string(s))
		}
	}
	return names
}

// runToken creates a subscriber (if needed) and prints a bearer token for it.
// Supports both "--flag value" and "--flag=value" formats.
func runToken(ctx context.Context) error {
	var subscriberID, email string
	expiresIn := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subscriber" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--subscriber requires a value")
			}
			subscriberID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subscriber="):
			subscriberID = strings.TrimPrefix(arg, "--subscriber=")
		case arg == "--email":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--expires":
			if i+1 >= len(args) {
				return fmt.Errorf("--expires requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --expires: %w", err)
			}
			expiresIn = d
			i++
		case strings.HasPrefix(arg, "--expires="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--expires="))
			if err != nil {
				return fmt.Errorf("parsing --expires: %w", err)
			}
			expiresIn = d
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	var sub *store.Subscriber
	if subscriberID == "" {
		subscriberID = uuid.NewString()
		sub = &store.Subscriber{
			ID:           subscriberID,
			Email:        email,
			Entitlements: []string{store.EntitlementChatbot},
			Active:       true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := st.CreateSubscriber(ctx, sub); err != nil {
			return fmt.Errorf("creating subscriber: %w", err)
		}
		green.Printf("  ✓ Created subscriber: %s\n", subscriberID)
	} else {
		sub, err = st.GetSubscriber(ctx, subscriberID)
		if err != nil {
			return fmt.Errorf("looking up subscriber %s: %w", subscriberID, err)
		}
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(sub, expiresIn)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green.Printf("  ✓ Token valid for %s\n\n", expiresIn)
	cyan.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/health", strings.TrimPrefix(cfg.Server.HTTPAddr, "http://"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
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

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}

	var handler slog.Handler
	switch {
	case cfg.Format == "json" || cfg.File != "":
		handler = slog.NewJSONHandler(out, opts)
	default:
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

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
