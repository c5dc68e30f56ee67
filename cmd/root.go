package cmd

import (
	"fmt"
	"os"

	"TrackShelf/config"
	"TrackShelf/logger"
	"TrackShelf/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackshelf",
	Short: "TrackShelf serves and organizes audio tracks for music projects.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer logger.Sync()
		return server.Start(cfg)
	},
	SilenceUsage: true,
}

// loadConfig 加载配置并初始化全局日志
func loadConfig() *config.Config {
	cfg := config.Load()
	if err := logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
	}
	return cfg
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
