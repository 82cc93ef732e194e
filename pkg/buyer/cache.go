// Package buyer 实现单商品购买状态机：定位、开详情、读价、决策、下单、验证结果
package buyer

import (
	"sync"

	"github.com/Tioit-Wang/ArenaBreakoutInfinite-Buy-sub000/pkg/screen"
)

// 详情面板按钮的语义名
const (
	BtnBuy   = "buy"
	BtnClose = "close"
	BtnMax   = "max"
)

// SessionCache 会话内位置缓存
// 列表项与详情按钮的位置在同一会话内基本稳定，缓存后省去重复模板匹配；
// 验证失败、暂停、重启时必须失效，绝不落盘。
type SessionCache struct {
	mu       sync.Mutex
	listItem map[string]screen.Rect
	buttons  map[string]screen.Rect
}

// NewSessionCache 创建空缓存
func NewSessionCache() *SessionCache {
	return &SessionCache{
		listItem: make(map[string]screen.Rect),
		buttons:  make(map[string]screen.Rect),
	}
}

// ListItem 查询商品列表项缓存
func (c *SessionCache) ListItem(goodsID string) (screen.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.listItem[goodsID]
	return r, ok
}

// SetListItem 记录商品列表项位置
func (c *SessionCache) SetListItem(goodsID string, r screen.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listItem[goodsID] = r
}

// Button 查询详情按钮缓存
func (c *SessionCache) Button(name string) (screen.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.buttons[name]
	return r, ok
}

// SetButton 记录详情按钮位置
func (c *SessionCache) SetButton(name string, r screen.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buttons[name] = r
}

// HasButtons 判断详情按钮是否已缓存
func (c *SessionCache) HasButtons() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buttons) > 0
}

// Invalidate 失效某商品的列表项缓存
func (c *SessionCache) Invalidate(goodsID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listItem, goodsID)
}

// InvalidateAll 清空全部缓存（暂停或重启后调用）
func (c *SessionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listItem = make(map[string]screen.Rect)
	c.buttons = make(map[string]screen.Rect)
}
