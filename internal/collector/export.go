package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileExporter 将CSV写入输出目录
type FileExporter struct {
	Dir string
}

// Export 写入文件并返回绝对路径
func (e FileExporter) Export(ctx context.Context, name string, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	filePath := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("写入文件失败: %w", err)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return filePath, nil
	}
	return abs, nil
}
