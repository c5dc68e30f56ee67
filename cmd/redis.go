package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"TrackShelf/cache"
	"TrackShelf/config"
	"TrackShelf/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，进行基本读写操作，并检查路径修复锁是否可用。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		// 加载配置
		cfg := config.Load()
		if !cfg.RedisEnabled() {
			log.Fatal("未配置 REDIS_HOST，Redis 未启用")
		}
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		// 连接Redis
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer client.Close()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 测试Redis基本操作
		fmt.Println("开始测试Redis基本操作...")
		if err := db.CheckRedis(ctx, client); err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		// 测试路径修复锁
		lock := cache.NewRepairLock(client, 5*time.Second)
		const probeID = "redis-check"
		ok, err := lock.TryLock(ctx, probeID)
		if err != nil {
			log.Fatalf("路径修复锁测试失败: %v", err)
		}
		lock.Unlock(ctx, probeID)
		fmt.Printf("路径修复锁可用: %v (key: %s)\n", ok, cache.RepairLockKey(probeID))

		fmt.Println("Redis测试完成。")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
