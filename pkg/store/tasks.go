package store

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
)

// 任务调度模式
const (
	ModeRoundRobin = "round_robin"
	ModeTimeWindow = "time_window"
)

// Task 单个购买任务
// 阈值字段为 0 表示对应购买路径关闭；TargetTotal 为 0 表示不设上限
type Task struct {
	ID     string `json:"id"`
	ItemID string `json:"item_id"`
	// PriceThreshold 正常购买的基准价
	PriceThreshold int `json:"price_threshold"`
	// PricePremiumPct 正常购买允许的溢价百分比
	PricePremiumPct float64 `json:"price_premium_pct"`
	// RestockPrice 补货购买的基准价
	RestockPrice int `json:"restock_price"`
	// RestockPremiumPct 补货购买允许的溢价百分比
	RestockPremiumPct float64 `json:"restock_premium_pct"`
	// TargetTotal 目标购买总量
	TargetTotal int `json:"target_total"`
	// Purchased 已购买量，只由调度器在购买成功后累加
	Purchased int  `json:"purchased"`
	Enabled   bool `json:"enabled"`
	Order     int  `json:"order"`
	// DurationMin 轮询模式下本任务每段执行时长（分钟）
	DurationMin int `json:"duration_min"`
	// TimeStart / TimeEnd 时间窗模式下的执行窗口，格式 HH:MM，支持跨午夜
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`

	// valid 启动时校验一次的有效标记，不落盘
	valid bool
}

// Valid 返回启动校验结果
func (t *Task) Valid() bool { return t.valid }

// SetValid 记录启动校验结果
func (t *Task) SetValid(v bool) { t.valid = v }

// Complete 判断任务是否已达到目标量
func (t *Task) Complete() bool {
	return t.TargetTotal > 0 && t.Purchased >= t.TargetTotal
}

// Runnable 判断任务当前是否可被调度
func (t *Task) Runnable() bool {
	return t.Enabled && t.valid && !t.Complete()
}

// TasksFile tasks.json 的顶层结构
type TasksFile struct {
	// TaskMode round_robin 或 time_window
	TaskMode string `json:"task_mode"`
	LogLevel string `json:"log_level"`
	// RestartEveryMin 软重启周期（分钟），0 表示关闭
	RestartEveryMin int     `json:"restart_every_min"`
	Tasks           []*Task `json:"tasks"`
}

// TaskStore 任务列表存储
type TaskStore struct {
	mu   sync.RWMutex
	path string
	file *TasksFile
}

// NewTaskStore 创建任务存储
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path, file: &TasksFile{TaskMode: ModeRoundRobin}}
}

// Load 从磁盘加载任务列表，按 Order 排序
func (s *TaskStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取任务文件失败: %w", err)
	}

	file := &TasksFile{TaskMode: ModeRoundRobin}
	if err := sonic.Unmarshal(data, file); err != nil {
		return fmt.Errorf("解析任务文件失败: %w", err)
	}
	if file.TaskMode == "" {
		file.TaskMode = ModeRoundRobin
	}
	sort.SliceStable(file.Tasks, func(i, j int) bool {
		return file.Tasks[i].Order < file.Tasks[j].Order
	})
	s.file = file
	return nil
}

// File 返回当前任务文件内容
func (s *TaskStore) File() *TasksFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// Tasks 返回排序后的任务列表
func (s *TaskStore) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Tasks
}

// AddPurchased 累加任务的已购买量并落盘
func (s *TaskStore) AddPurchased(taskID string, delta int) error {
	s.mu.Lock()
	for _, t := range s.file.Tasks {
		if t.ID == taskID {
			t.Purchased += delta
			break
		}
	}
	s.mu.Unlock()
	return s.Save()
}

// Save 将任务列表写回磁盘
func (s *TaskStore) Save() error {
	s.mu.RLock()
	data, err := sonic.MarshalIndent(s.file, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("序列化任务文件失败: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("写入任务文件失败: %w", err)
	}
	return nil
}
