package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TrackShelf/core/importer"
	"TrackShelf/core/library"
	"TrackShelf/db"
	"TrackShelf/logger"
	"TrackShelf/repository"
	"TrackShelf/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	importProject string
	importDir     string
	importOnce    bool
	importSettle  time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "监听目录并把新音频文件上传为项目曲目",
	Long: `监听指定目录，新出现的 mp3/wav/m4a 文件稳定后上传到对象存储并登记为项目曲目，
处理完成的文件会移动到 imported/ 子目录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := uuid.Parse(importProject); err != nil {
			return fmt.Errorf("--project 必须是项目 UUID: %w", err)
		}
		cfg := loadConfig()
		defer logger.Sync()

		store, err := storage.New(cfg)
		if err != nil {
			return err
		}
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)

		svc := library.NewService(store, repository.NewTrackRepository(gdb), library.Options{
			MaxBytes: cfg.UploadMaxBytes,
		})
		im := importer.New(importDir, importProject, svc, importSettle)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if importOnce {
			n, err := im.ImportExisting(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("已导入 %d 个文件\n", n)
			return nil
		}

		return im.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importProject, "project", "", "目标项目 ID")
	importCmd.Flags().StringVar(&importDir, "dir", ".", "监听的目录")
	importCmd.Flags().BoolVar(&importOnce, "once", false, "只导入目录中已有的文件，不持续监听")
	importCmd.Flags().DurationVar(&importSettle, "settle", 500*time.Millisecond, "文件保持不变多久后才上传")
	_ = importCmd.MarkFlagRequired("project")
}
