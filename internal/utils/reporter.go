package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/schollz/progressbar/v3"
)

// ReportsDir 报告子目录
const ReportsDir = "reports"

// Reporter 在输出目录下保存JSON报告
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// Dir 报告目录
func (r *Reporter) Dir() string {
	return filepath.Join(r.outputDir, ReportsDir)
}

// SaveRunReport 保存单次采集报告,返回文件路径
func (r *Reporter) SaveRunReport(report models.RunReport) (string, error) {
	name := fmt.Sprintf("run_report_%s.json", report.SessionID)
	return r.SaveJSON(name, report)
}

// SaveJSON 序列化data并写入报告目录
func (r *Reporter) SaveJSON(filename string, data any) (string, error) {
	if err := os.MkdirAll(r.Dir(), 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	path := filepath.Join(r.Dir(), filepath.Base(filename))
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// NewSpinner 页数未知时的进度显示
func NewSpinner(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
