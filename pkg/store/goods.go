// Package store 管理商品目录与任务列表的持久化
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/bytedance/sonic"
)

// Goods 商品目录条目
type Goods struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SearchName string `json:"search_name"`
	ImagePath  string `json:"image_path"`
	// BigCategory 商品大类，决定购买数量策略与进度增量
	BigCategory string `json:"big_category"`
	// Exchangeable 是否支持联系人兑换，影响价格 ROI 的垂直偏移
	Exchangeable bool `json:"exchangeable"`
}

// GoodsStore 商品目录，启动时加载一次，运行期间只读
type GoodsStore struct {
	mu    sync.RWMutex
	path  string
	goods map[string]*Goods
	order []string
}

// NewGoodsStore 创建商品目录
func NewGoodsStore(path string) *GoodsStore {
	return &GoodsStore{path: path, goods: make(map[string]*Goods)}
}

// Load 从磁盘加载商品目录
func (s *GoodsStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取商品目录失败: %w", err)
	}

	var list []*Goods
	if err := sonic.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("解析商品目录失败: %w", err)
	}

	s.goods = make(map[string]*Goods, len(list))
	s.order = s.order[:0]
	for _, g := range list {
		if g == nil || g.ID == "" {
			continue
		}
		s.goods[g.ID] = g
		s.order = append(s.order, g.ID)
	}
	return nil
}

// ByID 按商品 ID 查找，未找到返回 nil
func (s *GoodsStore) ByID(id string) *Goods {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goods[id]
}

// All 按加载顺序返回全部商品
func (s *GoodsStore) All() []*Goods {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Goods, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.goods[id])
	}
	return out
}

// Put 新增或更新商品（供外部配置工具使用）
func (s *GoodsStore) Put(g *Goods) {
	if g == nil || g.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goods[g.ID]; !ok {
		s.order = append(s.order, g.ID)
	}
	s.goods[g.ID] = g
}

// Save 将商品目录写回磁盘
func (s *GoodsStore) Save() error {
	s.mu.RLock()
	list := make([]*Goods, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.goods[id])
	}
	s.mu.RUnlock()

	data, err := sonic.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化商品目录失败: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("写入商品目录失败: %w", err)
	}
	return nil
}
