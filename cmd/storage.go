package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"TrackShelf/config"
	"TrackShelf/core/media"
	"TrackShelf/storage"

	"github.com/spf13/cobra"
)

var (
	storagePrefix    string
	storageStats     bool
	storageRecursive bool
	storageDelete    bool
)

var storageCmd = &cobra.Command{
	Use:     "storage",
	Aliases: []string{"minio"},
	Short:   "对象存储管理",
	Long:    `查看和管理对象存储桶中的音频文件，支持列出文件、查看统计信息、递归显示目录结构、删除目录等功能。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		store := mustOpenStore(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// 根据参数执行不同的操作
		switch {
		case storageDelete:
			if storagePrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", storagePrefix)
			n, err := storage.RemovePrefix(ctx, store, storagePrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象\n", n)

		case storageRecursive:
			fmt.Printf("\n递归显示目录结构 (前缀: %s)...\n", storagePrefix)
			objects, err := store.ListPrefix(ctx, storagePrefix, true)
			if err != nil {
				log.Fatalf("显示目录结构失败: %v", err)
			}
			storage.PrintTree(os.Stdout, storagePrefix, objects)

		case storageStats:
			fmt.Println("\n获取存储桶统计信息...")
			objects, err := store.ListPrefix(ctx, storagePrefix, true)
			if err != nil {
				log.Fatalf("获取存储桶统计信息失败: %v", err)
			}
			printStats(store.Bucket(), storage.Summarize(objects))

		default:
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", storagePrefix)
			objects, err := store.ListPrefix(ctx, storagePrefix, false)
			if err != nil {
				log.Fatalf("列出文件失败: %v", err)
			}
			for _, obj := range objects {
				fmt.Printf("- %s (大小: %s, 修改时间: %s)\n",
					obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format(time.RFC3339))
			}
			fmt.Printf("共 %d 个对象\n", len(objects))
		}

		fmt.Println("\n存储操作完成！")
	},
}

var storageResolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "解析一个文件路径，显示候选 key 及实际命中的对象",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		store := mustOpenStore(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		key, ok := media.Normalize(args[0], store.Bucket())
		if !ok {
			log.Fatalf("无法规范化路径 %q: path must be an object key (projectId/filename.ext)", args[0])
		}
		fmt.Printf("规范化 key: %s\n", key)

		candidates := media.BuildCandidates(ctx, key, media.ListNames(store))
		fmt.Println("候选 key:")
		for i, c := range candidates {
			fmt.Printf("  %d. %s\n", i+1, c)
		}

		res, err := media.NewResolver(media.StatFetcher{Store: store}, media.ListNames(store)).Resolve(ctx, key)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				fmt.Printf("未找到对象: %v\n", err)
				os.Exit(1)
			}
			log.Fatalf("解析失败: %v", err)
		}
		defer res.Close()
		fmt.Printf("命中: %s (%s, 第 %d 个候选, 大小 %s)\n",
			res.Key, res.Kind, res.Index+1, storage.FormatSize(res.Object.Size))
	},
}

func mustOpenStore(cfg *config.Config) storage.ObjectStore {
	fmt.Printf("存储配置: driver=%s, endpoint=%s, bucket=%s\n", cfg.StorageDriver, cfg.StorageEndpoint, cfg.StorageBucket)
	store, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("无法创建存储客户端: %v", err)
	}
	return store
}

func printStats(bucket string, stats *storage.BucketStats) {
	fmt.Printf("\n存储桶 %s 统计信息:\n", bucket)
	fmt.Printf("总对象数: %d\n", stats.TotalObjects)
	fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Printf("最后修改时间: %s\n", stats.LastModified.Format(time.RFC3339))
	}
	fmt.Println("\n按扩展名统计:")
	for ext, count := range stats.ByExtension {
		fmt.Printf("  %s: %d\n", ext, count)
	}
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageResolveCmd)

	// 添加命令行参数
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "显示存储桶统计信息")
	storageCmd.Flags().BoolVarP(&storageRecursive, "recursive", "r", false, "递归显示目录结构")
	storageCmd.Flags().BoolVarP(&storageDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	// 添加使用说明
	storageCmd.Example = `  # 列出根目录
  trackshelf storage

  # 列出某个项目的文件
  trackshelf storage -p "<projectId>/"

  # 显示存储桶统计信息
  trackshelf storage -s

  # 递归显示目录结构
  trackshelf storage -r -p "<projectId>/"

  # 删除项目目录及其下的所有文件
  trackshelf storage -d -p "<projectId>/"

  # 查看一个旧路径最终会命中哪个对象
  trackshelf storage resolve "<projectId>/1700000000000-1699999999999-take.mp3"`
}
