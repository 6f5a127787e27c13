package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pankaj/linechat/internal/config"
	"github.com/pankaj/linechat/internal/server"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "linechat-server",
		Short: "Runs the line-protocol chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "server.json", "path to the JSON config document")
	root.Flags().String("host", "", "override server.host")
	root.Flags().Int("port", 0, "override server.port")
	viper.BindPFlag("server.host", root.Flags().Lookup("host"))
	viper.BindPFlag("server.port", root.Flags().Lookup("port"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if host := viper.GetString("server.host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("server.port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.LogToFile && cfg.Logging.LogFile != "" {
		f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logger.SetOutput(f)
	}

	srv := server.New(cfg, logger)
	if err := srv.Listen(cfg.ServerAddr()); err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ServerAddr(), err)
	}
	logger.WithField("addr", cfg.ServerAddr()).Info("chat server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	srv.Shutdown()
	return nil
}
