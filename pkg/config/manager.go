package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Manager 配置管理器：负责配置文件的加载与保存
// 加载时以默认配置为底，文件内容覆盖在其上，缺失字段自动取默认值
type Manager struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewManager 创建配置管理器
func NewManager(path string) *Manager {
	return &Manager{path: path, cfg: Default()}
}

// Load 从磁盘加载配置
// 文件不存在时使用默认配置并落盘一份
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Default()
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.cfg = cfg
			return m.saveLocked()
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := sonic.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Normalize()
	m.cfg = cfg
	return nil
}

// Get 获取当前配置
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Update 替换配置并落盘
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.Normalize()
	m.cfg = cfg
	return m.saveLocked()
}

// Save 将当前配置写回磁盘
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	data, err := sonic.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
