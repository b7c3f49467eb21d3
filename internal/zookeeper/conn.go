// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"nexus-ledger/internal/pkg/logger"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 封装 ZooKeeper 会话
type Conn struct {
	*zk.Conn
}

type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	logger.Logger().Debug().Msgf(format, args...)
}

// Connect 建立会话并等待首次连接成功
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("zookeeper: no servers configured")
	}
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, errors.Wrap(err, "zookeeper: connect")
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Logger().Info().Strs("servers", servers).Msg("connected to zookeeper")
				return &Conn{Conn: conn}, nil
			}
		case <-timeout:
			conn.Close()
			return nil, errors.New("zookeeper: timeout waiting for session")
		}
	}
}

// ensurePath 逐级创建持久节点，已存在时忽略
func (c *Conn) ensurePath(path string) error {
	exists, _, err := c.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = c.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return err
	}
	return nil
}
