package cmd

import (
	"TrackShelf/logger"
	"TrackShelf/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动TrackShelf服务器",
	Long:  `启动TrackShelf的HTTP服务器，提供曲库管理API、音频播放/下载和事件推送`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer logger.Sync()
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
