package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/utils"
)

// BatchRunner 依次采集多个URL,同一时间只有一个标签页在采集
type BatchRunner struct {
	runner        *Runner
	batchDelay    time.Duration
	continueOnErr bool
	saveSummary   bool
}

// BatchResult 单个URL的采集结果
type BatchResult struct {
	URL      string           `json:"url"`
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Result   models.RunResult `json:"result"`
	Duration float64          `json:"duration"`
}

// BatchSummary 批量采集摘要
type BatchSummary struct {
	TotalURLs     int           `json:"total_urls"`
	SuccessCount  int           `json:"success_count"`
	FailCount     int           `json:"fail_count"`
	TotalPages    int           `json:"total_pages"`
	TotalRows     int           `json:"total_rows"`
	TotalDuration float64       `json:"total_duration"`
	Results       []BatchResult `json:"results"`
}

// NewBatchRunner 创建批量运行器
func NewBatchRunner(runner *Runner, cfg BatchConfig) *BatchRunner {
	return &BatchRunner{
		runner:        runner,
		batchDelay:    cfg.Delay,
		continueOnErr: cfg.ContinueOnError,
		saveSummary:   runner.cfg.Output.Reports,
	}
}

// RunBatch 批量采集URL列表,ctx结束时返回已完成部分的摘要
func (br *BatchRunner) RunBatch(ctx context.Context, urls []string) (*BatchSummary, error) {
	utils.Infof("开始批量采集: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}
	startTime := time.Now()
	var runErr error

	for i, targetURL := range urls {
		utils.Infof("[%d/%d] %s", i+1, len(urls), targetURL)

		result := br.runSingleURL(ctx, targetURL)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalPages += result.Result.Pages
			summary.TotalRows += result.Result.Rows
		} else {
			summary.FailCount++
			utils.Errorf("采集失败: %s", result.Error)
		}

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if !result.Success && !br.continueOnErr {
			utils.Warn("批量采集中止 (continue_on_error=false)")
			break
		}

		if i < len(urls)-1 && br.batchDelay > 0 {
			utils.Debugf("等待 %s 后处理下一个URL", br.batchDelay)
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
			case <-time.After(br.batchDelay):
			}
			if runErr != nil {
				break
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	br.printSummary(summary)

	if br.saveSummary {
		name := fmt.Sprintf("batch_summary_%s.json", time.Now().UTC().Format("20060102T150405Z"))
		if path, err := br.runner.reporter.SaveJSON(name, summary); err != nil {
			utils.Warnf("保存批量摘要失败: %v", err)
		} else {
			utils.Infof("批量摘要: %s", path)
		}
	}
	return summary, runErr
}

func (br *BatchRunner) runSingleURL(ctx context.Context, targetURL string) BatchResult {
	startTime := time.Now()
	result := BatchResult{URL: targetURL}

	runResult, err := br.runner.Run(ctx, targetURL)
	result.Result = runResult
	result.Duration = time.Since(startTime).Seconds()

	switch {
	case err != nil:
		result.Error = err.Error()
	case runResult.Reason == models.ReasonFailed:
		if runResult.Err != nil {
			result.Error = runResult.Err.Error()
		} else {
			result.Error = string(runResult.Reason)
		}
	default:
		result.Success = true
	}
	return result
}

func (br *BatchRunner) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("批量采集摘要")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("成功: %d", summary.SuccessCount)
	utils.Infof("失败: %d", summary.FailCount)
	utils.Infof("总页数: %d", summary.TotalPages)
	utils.Infof("总行数: %d", summary.TotalRows)
	utils.Infof("总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的URL:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %s", result.URL, result.Error)
			}
		}
	}
}
