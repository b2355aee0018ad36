// Package main provides the kaiwabot server entry point: a LINE webhook bot
// that holds short-lived conversation sessions and archives them into
// restorable markdown documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kaiwabot/internal/bot"
	"kaiwabot/internal/config"
	"kaiwabot/internal/dedup"
	"kaiwabot/internal/line"
	"kaiwabot/internal/llm"
	"kaiwabot/internal/logger"
	"kaiwabot/internal/server"
	"kaiwabot/internal/session"
	"kaiwabot/internal/store"
	"kaiwabot/internal/version"
)

var (
	logLevel string
	logFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kaiwabot",
	Short: "kaiwabot - constructive-talk LINE bot",
	Long: `kaiwabot is a LINE Messaging API bot for constructive conversations.
It keeps a short-lived context per user, answers through an LLM backend, and
archives finished sessions into restorable markdown documents.`,
	Run: runServe, // Default behavior is to run the webhook server
}

// serveCmd represents the serve command (explicit version of default behavior)
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long:  `Start the HTTP server handling LINE webhook events and health checks.`,
	Run:   runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version of kaiwabot.`,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.Get().String())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	if err := logger.Configure(logLevel, logFile, false); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) {
	if err := version.Validate(); err != nil {
		logger.Fatal("Invalid build version", "error", err)
	}
	logger.Info("Starting kaiwabot", "version", version.Version)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	kv, cleanup, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", "backend", cfg.StoreBackend, "error", err)
	}
	defer cleanup()

	manager := session.NewManager(kv, cfg.ContextTTL)
	deduplicator := dedup.New(kv, cfg.DedupWindow)

	llmClient, err := llm.NewFactory().GetClientForProvider(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMModel)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", "provider", cfg.LLMProvider, "error", err)
	}

	lineClient, err := line.NewClient(cfg.ChannelSecret, cfg.ChannelToken)
	if err != nil {
		logger.Fatal("Failed to initialize LINE client", "error", err)
	}

	handler := bot.NewHandler(manager, deduplicator, llmClient, lineClient, bot.RichMenus{
		MainID:         cfg.RichMenuMainID,
		ConversationID: cfg.RichMenuConversationID,
	})

	mux := http.NewServeMux()
	srv := server.New(lineClient, handler, server.HealthInfo{
		HasSecret:   cfg.ChannelSecret != "",
		HasToken:    cfg.ChannelToken != "",
		HasRichMenu: cfg.RichMenuMainID != "",
	})
	srv.Register(mux)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr, "store", cfg.StoreBackend, "provider", llmClient.GetProviderName())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	waitForShutdown(httpServer)
}

// buildStore creates the configured KeyValueStore backend and returns a
// cleanup function for it.
func buildStore(cfg *config.Config) (store.KeyValueStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		memory := store.NewMemoryStore()
		memory.StartJanitor(store.DefaultJanitorInterval)
		return memory, memory.Close, nil
	case "redis":
		redisStore := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			return nil, nil, err
		}
		return redisStore, func() { _ = redisStore.Close() }, nil
	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dynamoStore, err := store.NewDynamoStore(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		return dynamoStore, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func waitForShutdown(httpServer *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}
