// Package state 保存全局运行状态(哪个标签页正在采集)
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
)

// StateFilename 运行状态文件名
const StateFilename = "run_state.json"

// Store 运行状态存储
type Store interface {
	// Running 返回正在采集的标签页ID,未运行时为空
	Running(ctx context.Context) (string, error)
	// SetRunning 记录正在采集的标签页
	SetRunning(ctx context.Context, tabID string) error
	// Clear 清除运行状态
	Clear(ctx context.Context) error
}

// FileStore 基于JSON文件的运行状态存储,跨进程可见
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建文件存储,dir不存在时自动创建
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建状态目录失败: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, StateFilename)}, nil
}

// Path 状态文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Running 读取运行状态,文件不存在视为未运行
func (s *FileStore) Running(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return "", err
	}
	return state.Running, nil
}

// SetRunning 写入运行状态
func (s *FileStore) SetRunning(ctx context.Context, tabID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(&models.RunState{Running: tabID, UpdatedAt: time.Now()})
}

// Clear 清除运行状态
func (s *FileStore) Clear(ctx context.Context) error {
	return s.SetRunning(ctx, "")
}

func (s *FileStore) load() (*models.RunState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &models.RunState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取运行状态失败: %w", err)
	}

	var state models.RunState
	if err := state.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析运行状态失败 [%s]: %w", s.path, err)
	}
	return &state, nil
}

// save 先写临时文件再重命名,避免读到写了一半的文件
func (s *FileStore) save(state *models.RunState) error {
	data, err := state.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化运行状态失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".run_state-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入运行状态失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入运行状态失败: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("保存运行状态失败: %w", err)
	}
	return nil
}

// MemoryStore 进程内存储
type MemoryStore struct {
	mu      sync.Mutex
	running string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Running 实现Store
func (s *MemoryStore) Running(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, nil
}

// SetRunning 实现Store
func (s *MemoryStore) SetRunning(ctx context.Context, tabID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = tabID
	return nil
}

// Clear 实现Store
func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.SetRunning(ctx, "")
}
