package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64            `json:"total_objects"`
	TotalSize    int64            `json:"total_size"`
	LastModified time.Time        `json:"last_modified"`
	ByExtension  map[string]int64 `json:"by_extension"`
}

// Summarize 统计对象数量、大小和扩展名分布
func Summarize(objects []ObjectInfo) *BucketStats {
	stats := &BucketStats{ByExtension: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		ext := strings.ToLower(path.Ext(obj.Key))
		if ext == "" {
			ext = "unknown"
		}
		stats.ByExtension[ext]++
	}
	return stats
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// PrintTree 按目录结构打印对象
func PrintTree(w io.Writer, prefix string, objects []ObjectInfo) {
	dirs := make(map[string]bool)
	for _, obj := range objects {
		parts := strings.Split(obj.Key, "/")
		for i := 1; i < len(parts); i++ {
			dirs[strings.Join(parts[:i], "/")] = true
		}
	}

	var sortedDirs []string
	for dir := range dirs {
		if strings.HasPrefix(dir, strings.TrimSuffix(prefix, "/")) {
			sortedDirs = append(sortedDirs, dir)
		}
	}
	sort.Strings(sortedDirs)

	for _, dir := range sortedDirs {
		indent := strings.Repeat("  ", strings.Count(dir, "/"))
		fmt.Fprintf(w, "%s📁 %s/\n", indent, dir)
		for _, obj := range objects {
			rest := strings.TrimPrefix(obj.Key, dir+"/")
			if rest != obj.Key && !strings.Contains(rest, "/") {
				fmt.Fprintf(w, "%s  📄 %s (%s)\n", indent, rest, FormatSize(obj.Size))
			}
		}
	}

	// 根目录下的文件
	for _, obj := range objects {
		if !strings.Contains(obj.Key, "/") {
			fmt.Fprintf(w, "📄 %s (%s)\n", obj.Key, FormatSize(obj.Size))
		}
	}
}

// RemovePrefix 删除前缀下的所有对象，返回删除数量
func RemovePrefix(ctx context.Context, store ObjectStore, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, fmt.Errorf("refusing to delete the whole bucket")
	}
	objects, err := store.ListPrefix(ctx, prefix, true)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("目录 %s 为空或不存在", prefix)
	}
	for i, obj := range objects {
		if err := store.Remove(ctx, obj.Key); err != nil {
			return i, fmt.Errorf("删除对象 %s 失败: %w", obj.Key, err)
		}
	}
	return len(objects), nil
}
