// internal/service/inventory/domain/binding.go
package domain

import "sort"

// BindingMode 商品与库存行的绑定方式
type BindingMode string

const (
	BindingFixed  BindingMode = "fixed"  // 固定扣减指定库存行
	BindingRandom BindingMode = "random" // 从同一商品的随机池中选取一行
)

// Binding 商品与库存行的多对多关联，由管理端维护，引擎只读
type Binding struct {
	ID        uint64
	ProductID string
	StockID   uint64
	Mode      BindingMode
	Priority  int // 数值越大越优先
}

// Allocation 一个订单行最终扣减的库存行与数量
type Allocation struct {
	StockID  uint64 `json:"stockId"`
	Quantity int64  `json:"quantity"`
}

// MergeAllocations 合并同一库存行的分配，并按库存行 ID 升序排列。
// 所有调用方按这个顺序加锁，避免两个订单交叉加锁导致死锁。
func MergeAllocations(allocs []Allocation) []Allocation {
	byID := make(map[uint64]int64, len(allocs))
	for _, a := range allocs {
		byID[a.StockID] += a.Quantity
	}
	merged := make([]Allocation, 0, len(byID))
	for id, qty := range byID {
		merged = append(merged, Allocation{StockID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].StockID < merged[j].StockID })
	return merged
}
