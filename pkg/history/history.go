// Package history 提供价格与购买历史的落盘存储
// 引擎侧以 fire-and-forget 方式调用：写入失败只记日志，绝不影响购买流程
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/internal/logger"
)

// 价格记录的节流参数
const (
	// dedupWindow 相同价格在该窗口内重复出现时跳过
	dedupWindow = 2 * time.Second
	// throttleWindow 窗口内只有价格发生明显变化才记录
	throttleWindow = 10 * time.Second
	// absDelta 视为明显变化的绝对差
	absDelta = 100
	// relDelta 视为明显变化的相对差
	relDelta = 0.02
)

// PriceRecord 一条价格观测记录
type PriceRecord struct {
	ID        string
	ItemID    string
	Name      string
	Category  string
	Price     int
	CreatedAt time.Time
}

// PurchaseRecord 一条购买成功记录
type PurchaseRecord struct {
	ID        string
	ItemID    string
	Name      string
	Category  string
	Price     int
	Qty       int
	TaskID    string
	UsedMax   bool
	CreatedAt time.Time
}

type lastPrice struct {
	price int
	at    time.Time
}

// Store 基于 sqlite 的历史存储
type Store struct {
	db *sql.DB

	mu   sync.Mutex
	last map[string]lastPrice

	// now 注入时钟，便于测试节流逻辑
	now func() time.Time
}

// Open 打开（必要时创建）历史数据库
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, last: make(map[string]lastPrice), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_item_time ON price_history(item_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS purchase_history (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			price INTEGER NOT NULL,
			qty INTEGER NOT NULL,
			task_id TEXT NOT NULL DEFAULT '',
			used_max INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_item_time ON purchase_history(item_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// shouldRecord 价格节流判断，调用方需持有锁
func (s *Store) shouldRecord(itemID string, price int, now time.Time) bool {
	prev, ok := s.last[itemID]
	if !ok {
		return true
	}
	elapsed := now.Sub(prev.at)
	if price == prev.price && elapsed < dedupWindow {
		return false
	}
	if elapsed < throttleWindow {
		diff := math.Abs(float64(price - prev.price))
		base := float64(prev.price)
		if base <= 0 {
			base = 1
		}
		if diff < absDelta && diff/base < relDelta {
			return false
		}
	}
	return true
}

// AppendPrice 记录一次价格观测
// 短时间内的重复或微小波动会被节流丢弃，写入失败只记日志
func (s *Store) AppendPrice(itemID, name string, price int, category string) {
	s.mu.Lock()
	now := s.now()
	if !s.shouldRecord(itemID, price, now) {
		s.mu.Unlock()
		return
	}
	s.last[itemID] = lastPrice{price: price, at: now}
	s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO price_history (id, item_id, name, category, price, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), itemID, name, category, price, now.UnixMilli(),
	)
	if err != nil {
		logger.Warn("写入价格历史失败: %v", err)
	}
}

// AppendPurchase 记录一次购买成功
func (s *Store) AppendPurchase(itemID, name string, price, qty int, taskID, category string, usedMax bool) {
	um := 0
	if usedMax {
		um = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO purchase_history (id, item_id, name, category, price, qty, task_id, used_max, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), itemID, name, category, price, qty, taskID, um, s.now().UnixMilli(),
	)
	if err != nil {
		logger.Warn("写入购买历史失败: %v", err)
	}
}

// RecentPrices 查询某商品最近的价格记录，新的在前
func (s *Store) RecentPrices(ctx context.Context, itemID string, limit int) ([]PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, name, category, price, created_at FROM price_history
		 WHERE item_id = ? ORDER BY created_at DESC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceRecord
	for rows.Next() {
		var r PriceRecord
		var ms int64
		if err := rows.Scan(&r.ID, &r.ItemID, &r.Name, &r.Category, &r.Price, &ms); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentPurchases 查询某商品最近的购买记录，新的在前
func (s *Store) RecentPurchases(ctx context.Context, itemID string, limit int) ([]PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, name, category, price, qty, task_id, used_max, created_at FROM purchase_history
		 WHERE item_id = ? ORDER BY created_at DESC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PurchaseRecord
	for rows.Next() {
		var r PurchaseRecord
		var ms int64
		var um int
		if err := rows.Scan(&r.ID, &r.ItemID, &r.Name, &r.Category, &r.Price, &r.Qty, &r.TaskID, &um, &ms); err != nil {
			return nil, err
		}
		r.UsedMax = um == 1
		r.CreatedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}
