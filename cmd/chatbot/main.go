package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/chatbot/internal/handler"
	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/llm"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/scoring"
	"github.com/pavelanni/chatbot/internal/session"
	"github.com/pavelanni/chatbot/internal/store"
	"github.com/pavelanni/chatbot/internal/telemetry"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatbot",
		Short: "Demo chatbot that collects answer feedback",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatbot web server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "chat_history.db", "SQLite database path")
	f.String("llm-url", "https://router.huggingface.co/v1", "OpenAI-compatible inference API base URL")
	f.String("secrets", "secrets.toml", "Secrets file holding huggingface.token (or set CHATBOT_HF_TOKEN)")
	f.String("embedding-model", "", "Embedding model for similarity scores (empty disables similarity)")
	f.String("resource-dir", "resources", "Directory for downloaded language resources")
	f.String("resource-url", "", "URL of the stopword list to download on first start (empty uses the bundled list)")
	f.StringP("lang", "l", "en", "Default UI language (en, ja)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /bot)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Duration("session-ttl", session.DefaultTTL, "Drop sessions idle for longer than this")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored interactions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "chat_history.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("models", map[string]any{
		"gemma": map[string]any{"id": "google/gemma-2-2b-jpn-it", "chat": true},
		"xglm":  map[string]any{"id": "facebook/xglm-564M", "chat": false},
	})

	v.SetConfigName("chatbot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/chatbot")
	v.AddConfigPath("/etc/chatbot")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// modelSpecs reads the models map, ordered by key.
func modelSpecs(v *viper.Viper) ([]model.ModelSpec, error) {
	var byKey map[string]model.ModelSpec
	if err := v.UnmarshalKey("models", &byKey); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	specs := make([]model.ModelSpec, 0, len(keys))
	for _, k := range keys {
		spec := byKey[k]
		if spec.ID == "" {
			return nil, fmt.Errorf("model %q has no id", k)
		}
		spec.Key = k
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, errors.New("no models configured")
	}
	return specs, nil
}

// readToken returns the hub token from the secrets file, or from
// CHATBOT_HF_TOKEN when the file does not set it.
func readToken(path string) (string, error) {
	sv := viper.New()
	_ = sv.BindEnv("huggingface.token", "CHATBOT_HF_TOKEN")
	if path != "" {
		sv.SetConfigFile(path)
		if err := sv.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return "", fmt.Errorf("read secrets %s: %w", path, err)
			}
		}
	}
	token := sv.GetString("huggingface.token")
	if err := llm.ValidateToken(token); err != nil {
		return "", fmt.Errorf("%w: set huggingface.token in %s or CHATBOT_HF_TOKEN", err, path)
	}
	return token, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	token, err := readToken(v.GetString("secrets"))
	if err != nil {
		return err
	}
	specs, err := modelSpecs(v)
	if err != nil {
		return err
	}

	// Language resources are fetched once and then reused from disk; an empty
	// path means the bundled list.
	stopwordsPath, fetched, err := scoring.EnsureResources(ctx, &http.Client{Timeout: 30 * time.Second},
		v.GetString("resource-dir"), v.GetString("resource-url"))
	if err != nil {
		return fmt.Errorf("prepare language resources: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if fetched {
		if err := db.MarkTime(store.MetaResourcesFetchedAt); err != nil {
			slog.Warn("failed to record resource fetch time", "error", err)
		}
	}
	stopwords, err := scoring.LoadStopwords(stopwordsPath)
	if err != nil {
		return fmt.Errorf("load stopwords: %w", err)
	}

	api := llm.NewAPI(v.GetString("llm-url"), token)
	scorer := scoring.New(api, v.GetString("embedding-model"), stopwords)

	if err := db.EnsureSamples(ctx, scorer); err != nil {
		return fmt.Errorf("seed samples: %w", err)
	}

	models, loadMessages, err := llm.Load(ctx, api, specs)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	}
	h := handler.New(db, models, scorer, session.NewManager(v.GetDuration("session-ttl")),
		telemetry.New(), cfg, loadMessages)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"llm_url", v.GetString("llm-url"),
		"models", models.Available(),
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export interactions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported interactions", "count", export.Count, "output", outPath)
	return nil
}
