// internal/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot   = "/distributed_locks" // 所有分布式锁的根节点
	lockPrefix = "lock-"
)

// ErrNotHeld 释放一把当前未持有的锁
var ErrNotHeld = errors.New("zookeeper: lock not held")

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     *Conn  // ZooKeeper连接
	path     string // 锁的路径，例如 /distributed_locks/ledger-sweeper
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	if err := conn.ensurePath(lockRoot); err != nil {
		return nil, errors.Wrap(err, "zookeeper: create lock root")
	}
	lockPath := lockRoot + "/" + resourceID
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, errors.Wrapf(err, "zookeeper: create lock path %s", lockPath)
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 尝试获取锁，不等待。锁被他人持有时返回 false。
func (l *DistributedLock) TryLock() (bool, error) {
	if err := l.createNode(); err != nil {
		return false, err
	}
	isFirst, _, err := l.position()
	if err != nil || !isFirst {
		l.abandon()
		return false, err
	}
	return true, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotHeld
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "zookeeper: delete lock node")
	}
	l.lockNode = ""
	return nil
}

// createNode 在锁路径下创建一个临时顺序节点
func (l *DistributedLock) createNode() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockPrefix, []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "zookeeper: create sequential node")
	}
	l.lockNode = nodePath
	return nil
}

// position 判断自己是否是最小节点；不是时返回前一个节点名
func (l *DistributedLock) position() (bool, string, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return false, "", errors.Wrap(err, "zookeeper: list children")
	}
	// 受保护节点带有 _c_<guid>- 前缀，只按序号排序
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	for i, child := range children {
		if child != myNodeName {
			continue
		}
		if i == 0 {
			return true, "", nil
		}
		return false, children[i-1], nil
	}
	return false, "", errors.New("zookeeper: own lock node disappeared")
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

func sequence(node string) string {
	if idx := strings.LastIndex(node, lockPrefix); idx >= 0 {
		return node[idx+len(lockPrefix):]
	}
	return node
}
