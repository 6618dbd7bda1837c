package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examdesk/internal/csvio"
	"github.com/pavelanni/examdesk/internal/exam"
	"github.com/pavelanni/examdesk/internal/handler"
	appI18n "github.com/pavelanni/examdesk/internal/i18n"
	"github.com/pavelanni/examdesk/internal/llm"
	"github.com/pavelanni/examdesk/internal/model"
	"github.com/pavelanni/examdesk/internal/report"
	"github.com/pavelanni/examdesk/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examdesk",
		Short: "Timed multiple-choice exams with randomized questions",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), setsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examdesk --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "examdesk.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("teacher-password", "", "Shared teacher password (or set EXAMDESK_TEACHER_PASSWORD)")
	f.Int("exam-duration-minutes", 20, "Time limit of one exam in minutes")
	f.Int("exam-question-count", 20, "Questions per exam (fewer if the set is smaller)")
	f.Float64("pass-threshold", 0.5, "Fraction of correct answers needed to pass (0..1)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for question drafting (empty disables it)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import questions from CSV files into a question set",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("set-token", "", "Token of an existing question set")
	f.String("set-name", "", "Name of the question set (created if missing)")
	f.Bool("force", false, "Import even if the same file was imported before")
	cmd.MarkFlagsOneRequired("set-token", "set-name")
	cmd.MarkFlagsMutuallyExclusive("set-token", "set-name")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export questions or results as CSV",
	}

	results := &cobra.Command{
		Use:   "results",
		Short: "Export finished exams as CSV",
		RunE:  runExportResults,
	}
	addCommonFlags(results)
	results.Flags().String("set-token", "", "Limit to one question set")
	results.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")

	questions := &cobra.Command{
		Use:   "questions",
		Short: "Export the questions of a set as CSV",
		RunE:  runExportQuestions,
	}
	addCommonFlags(questions)
	questions.Flags().String("set-token", "", "Question set token (required)")
	questions.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = questions.MarkFlagRequired("set-token")

	cmd.AddCommand(results, questions)
	return cmd
}

func setsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "List question sets with their share tokens",
		RunE:  runSets,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("recent", false, "Order by creation time instead of name")
	return cmd
}

func setupLogging(v *viper.Viper) {
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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examdesk")
	v.AddConfigPath("/etc/examdesk")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// setup reads configuration, configures logging and opens the database.
func setup(cmd *cobra.Command) (*viper.Viper, *store.Store, error) {
	v := viperForCmd(cmd)
	setupLogging(v)
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return v, db, nil
}

func examConfig(v *viper.Viper) (model.ExamConfig, error) {
	cfg := model.ExamConfig{
		Duration:      time.Duration(v.GetInt("exam-duration-minutes")) * time.Minute,
		QuestionCount: v.GetInt("exam-question-count"),
		PassThreshold: v.GetFloat64("pass-threshold"),
	}
	return cfg, cfg.Validate()
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	examCfg, err := examConfig(v)
	if err != nil {
		return fmt.Errorf("exam config: %w", err)
	}

	password := v.GetString("teacher-password")
	if password == "" {
		return fmt.Errorf("teacher password is required: set --teacher-password flag or EXAMDESK_TEACHER_PASSWORD env var")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}

	engine, err := exam.New(db, examCfg)
	if err != nil {
		return fmt.Errorf("create exam engine: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	h, err := handler.New(db, engine, llmClient, model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		TeacherHash:   hash,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"base_path", basePath,
		"duration", examCfg.Duration,
		"question_count", examCfg.QuestionCount,
		"pass_threshold", examCfg.PassThreshold,
		"llm_drafting", llmClient != nil,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// newLLMClient returns nil when drafting is not configured.
func newLLMClient(v *viper.Viper) (*llm.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		return nil, nil
	}
	c, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	return c, nil
}

func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := db.CleanupExpiredSessions(); err != nil {
				slog.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

// resolveSet finds the target set by token, or by name creating it if needed.
func resolveSet(db *store.Store, token, name string, create bool) (model.QuestionSet, error) {
	if token != "" {
		set, err := db.GetSetByToken(token)
		if err != nil {
			return set, fmt.Errorf("question set %q: %w", token, err)
		}
		return set, nil
	}
	set, err := db.GetSetByName(name)
	if errors.Is(err, model.ErrNotFound) && create {
		return db.CreateSet(name)
	}
	if err != nil {
		return set, fmt.Errorf("question set %q: %w", name, err)
	}
	return set, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := resolveSet(db, v.GetString("set-token"), v.GetString("set-name"), true)
	if err != nil {
		return err
	}

	for _, path := range args {
		if err := importFile(db, set, path, v.GetBool("force")); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "set %q token %s\n", set.Name, set.Token)
	return nil
}

func importFile(db *store.Store, set model.QuestionSet, path string, force bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(set.ID, name)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash && !force {
		slog.Info("file already imported, skipping", "path", path, "set", set.Name)
		return nil
	}

	rep, err := csvio.Import(bytes.NewReader(data), set.ID, db)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if err := db.SetImportedFileHash(set.ID, name, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "set", set.Name, "imported", rep.Imported, "skipped", rep.Skipped)
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// outputWriter opens the -o destination; the returned close func is never nil.
func outputWriter(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func runExportResults(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	var setID *int64
	if token := v.GetString("set-token"); token != "" {
		set, err := resolveSet(db, token, "", false)
		if err != nil {
			return err
		}
		setID = &set.ID
	}

	rows, err := report.New(db).Results(setID)
	if err != nil {
		return fmt.Errorf("collect results: %w", err)
	}

	w, closeFn, err := outputWriter(cmd, v.GetString("output"))
	if err != nil {
		return err
	}
	if err := csvio.WriteResults(w, rows); err != nil {
		_ = closeFn()
		return fmt.Errorf("write results: %w", err)
	}
	return closeFn()
}

func runExportQuestions(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := resolveSet(db, v.GetString("set-token"), "", false)
	if err != nil {
		return err
	}
	questions, err := db.ListQuestionsBySet(set.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}

	w, closeFn, err := outputWriter(cmd, v.GetString("output"))
	if err != nil {
		return err
	}
	if err := csvio.WriteQuestions(w, questions); err != nil {
		_ = closeFn()
		return fmt.Errorf("write questions: %w", err)
	}
	return closeFn()
}

func runSets(cmd *cobra.Command, _ []string) error {
	v, db, err := setup(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	order := model.SetOrderName
	if v.GetBool("recent") {
		order = model.SetOrderRecency
	}
	sets, err := db.ListSets(order)
	if err != nil {
		return fmt.Errorf("list sets: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTOKEN\tQUESTIONS\tFINISHED\tCREATED")
	for _, s := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			s.Name, s.Token, s.QuestionCount, s.FinishedCount, s.CreatedAt.Local().Format(report.TimeLayout))
	}
	return tw.Flush()
}
