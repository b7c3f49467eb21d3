package port

import "context"

// SweepLock 集群级互斥，保证同一时刻只有一个清扫器实例在扫描。
// 获取失败（被别的实例持有）时 ok=false 且 err=nil。
type SweepLock interface {
	TryAcquire(ctx context.Context) (release func(ctx context.Context) error, ok bool, err error)
}
