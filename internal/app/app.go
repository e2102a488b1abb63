package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pickwise/client/internal/assistant"
	"pickwise/client/internal/config"
	"pickwise/client/internal/database"
	"pickwise/client/internal/devserver"
	app_errors "pickwise/client/internal/errors"
	"pickwise/client/internal/identity"
	"pickwise/client/internal/repository"
	"pickwise/client/internal/service"
)

func Run() int {
	local := flag.Bool("local", false, "run an embedded local assistant backend instead of the configured one")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)
	logConfigSource()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Successfully connected to SQLite database.")

	assistantURL := cfg.AssistantURL
	if *local {
		assistantURL = fmt.Sprintf("http://localhost:%d", cfg.LocalServerPort)
		startLocalServer(cfg.LocalServerPort)
		waitForBackend(assistantURL)
	}

	repo := repository.NewSQLiteRepository(db)
	client := assistant.NewClient(assistantURL, time.Duration(cfg.ConnectTimeoutSeconds)*time.Second)
	auth := identity.NewStaticAuth(cfg.UserID, identity.Tier(cfg.UserTier))
	entitlements := identity.NewTierEntitlements(repo, cfg.FreeDailyMessageLimit)

	out := newRenderer(os.Stdout)
	sess := service.NewSession(client, repo, auth, entitlements, service.Options{
		Screen:      "terminal",
		IdleTimeout: time.Duration(cfg.StreamIdleTimeoutSecs) * time.Second,
		OnChange:    func() { out.render() },
	})
	out.source = sess.Messages
	defer sess.Close()

	return repl(sess, out)
}

// repl reads user turns from stdin until EOF or /quit. Streaming output is
// painted by the renderer as turn events arrive; the prompt returns once the
// turn seals.
func repl(sess *service.Session, out *renderer) int {
	fmt.Println("Pickwise assistant. Ask about tonight's games, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nyou> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return 0
		case line == "/list":
			listConversations(sess)
			continue
		case strings.HasPrefix(line, "/delete "):
			deleteConversation(sess, strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
			continue
		}

		if err := sess.Submit(context.Background(), line); err != nil {
			fmt.Println(submitErrorMessage(err))
			continue
		}
		sess.Wait()
		out.finishTurn()
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read input", "error", err)
		return 1
	}
	return 0
}

func listConversations(sess *service.Session) {
	convs, err := sess.ListConversations(context.Background())
	if err != nil {
		fmt.Println(submitErrorMessage(err))
		return
	}
	if len(convs) == 0 {
		fmt.Println("No saved conversations yet.")
		return
	}
	for _, c := range convs {
		fmt.Printf("%s  %s  (%s)\n", c.ID, c.Title, c.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

func deleteConversation(sess *service.Session, id string) {
	if err := sess.DeleteConversation(context.Background(), id); err != nil {
		fmt.Println(submitErrorMessage(err))
		return
	}
	fmt.Println("Deleted.")
}

// submitErrorMessage maps the local gate errors to the user-facing strings
// the surface shows instead of raw errors.
func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, app_errors.ErrUnauthenticated):
		return "Sign in to chat with the assistant (set USER_ID)."
	case errors.Is(err, app_errors.ErrQuotaExceeded):
		return "Daily message limit reached. Upgrade to Pro for unlimited messages."
	case errors.Is(err, app_errors.ErrTurnInProgress):
		return "Hold on, the assistant is still answering."
	case errors.Is(err, app_errors.ErrValidation):
		return "Type a question first."
	case errors.Is(err, app_errors.ErrNotFound):
		return "No such conversation."
	default:
		slog.Error("Submit failed", "error", err)
		return "Something went wrong. Please try again."
	}
}

// startLocalServer runs the embedded dev backend in the background.
func startLocalServer(port int) {
	router := devserver.NewRouter(devserver.Options{ChunkDelay: 40 * time.Millisecond})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		slog.Info("Starting local assistant backend", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Local backend failed", "error", err)
		}
	}()
}

func waitForBackend(baseURL string) {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in health check", "error", bErr)
			}
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	slog.Warn("Local backend did not become ready", "url", baseURL)
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
