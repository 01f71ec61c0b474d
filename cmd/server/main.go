// Package main is the entry point for the agentic memory platform server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-memory/aam-platform/internal/mcpserver"
)

var (
	cfgFile      string
	reviewPeriod time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aam-server",
		Short: "Agentic memory platform server",
		Long: `aam-server runs the agentic memory platform's MCP server: a short-term
and long-term memory store, hybrid vector+graph retrieval, and the
memory_recall/memory_write/memory_manage/memory_stats tool surface.

Configuration is resolved, in priority order, from command-line flags,
environment variables (prefix AAM_), a config file, and built-in
defaults.`,
		RunE: runServer,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.aam-server.yaml)")
	cmd.Flags().String("host", "", "server host (overrides config)")
	cmd.Flags().Int("port", 0, "server port (overrides config)")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error, fatal")
	cmd.Flags().String("short-term-provider", "", "short-term tier provider: memory or redis")
	cmd.Flags().String("long-term-provider", "", "long-term tier provider: memory or qdrant")
	cmd.Flags().String("graph-provider", "", "graph tier provider: memory or mongo")
	cmd.Flags().Duration("review-period", time.Hour, "interval between background weekly-review passes")

	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("logging.level", cmd.Flags().Lookup("log-level"))
	viper.BindPFlag("storage.short_term.provider", cmd.Flags().Lookup("short-term-provider"))
	viper.BindPFlag("storage.long_term.provider", cmd.Flags().Lookup("long-term-provider"))
	viper.BindPFlag("storage.graph.provider", cmd.Flags().Lookup("graph-provider"))
	viper.BindPFlag("review_period", cmd.Flags().Lookup("review-period"))

	cobra.OnInitialize(initConfig)
	return cmd
}

// initConfig loads the aam-server config file, if any, and enables
// AAM_-prefixed environment variable overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".aam-server")
	}

	viper.SetEnvPrefix("aam")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	config := mcpserver.DefaultServerConfig()

	if host := viper.GetString("server.host"); host != "" {
		config.Server.Host = host
	}
	if port := viper.GetInt("server.port"); port != 0 {
		config.Server.Port = port
	}
	if level := viper.GetString("logging.level"); level != "" {
		config.Logging.Level = level
	}
	if provider := viper.GetString("storage.short_term.provider"); provider != "" {
		config.Storage.ShortTerm.Provider = provider
	}
	if provider := viper.GetString("storage.long_term.provider"); provider != "" {
		config.Storage.LongTerm.Provider = provider
	}
	if provider := viper.GetString("storage.graph.provider"); provider != "" {
		config.Storage.Graph.Provider = provider
	}
	reviewPeriod = viper.GetDuration("review_period")
	if reviewPeriod <= 0 {
		reviewPeriod = time.Hour
	}

	if err := configureLogging(config.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logrus.WithField("component", "cmd/server")

	server, err := mcpserver.NewAgenticMemoryServer(config)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runReviewLoop(ctx, server, reviewPeriod, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.WithField("addr", addr).Info("starting aam-server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.RunHTTP(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server exited: %w", err)
	}
}

// runReviewLoop invokes the weekly memory review job on a fixed interval
// until ctx is cancelled. The interval is configurable (default hourly, for
// a review whose archive/stale thresholds are themselves measured in days)
// so operators can run it more or less often than the review window implies.
func runReviewLoop(ctx context.Context, server *mcpserver.AgenticMemoryServer, period time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports := server.RunReview(ctx)
			for _, r := range reports {
				log.WithFields(logrus.Fields{
					"user_id":         r.UserID,
					"archived":        r.ArchivedCount,
					"potentially_stale": r.PotentiallyStaleCount,
				}).Info("memory review completed")
			}
		}
	}
}

func configureLogging(cfg mcpserver.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logrus.SetOutput(os.Stderr)
	default:
		logrus.SetOutput(os.Stdout)
	}
	return nil
}
