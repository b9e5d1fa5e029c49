// Package zookeeper provides a kv.Client implementation backed by a
// ZooKeeper ensemble.
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/openstack-archive/poppy-sub002/jobboard/kv"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring ZookeeperClient implements kv.Client.
var _ kv.Client = (*ZookeeperClient)(nil)

// ZookeeperClient is a kv.Client implementation that delegates to a
// ZooKeeper session. Ephemeral nodes map directly onto ZooKeeper ephemeral
// nodes and are released by the ensemble when the session expires.
type ZookeeperClient struct {
	conn *zk.Conn
}

// NewZookeeperClient connects to the ZooKeeper ensemble specified by the
// provided server list using the specified session timeout.
func NewZookeeperClient(servers []string, sessionTimeout time.Duration) (*ZookeeperClient, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, xerrors.Errorf("zookeeper: connect: %w", err)
	}
	return &ZookeeperClient{conn: conn}, nil
}

// Create implements kv.Client.
func (c *ZookeeperClient) Create(nodePath string, data []byte, ephemeral bool) error {
	var flags int32
	if ephemeral {
		flags = zk.FlagEphemeral
	}

	_, err := c.conn.Create(nodePath, data, flags, zk.WorldACL(zk.PermAll))
	return mapZKError("create", nodePath, err)
}

// Get implements kv.Client.
func (c *ZookeeperClient) Get(nodePath string) (*kv.Node, error) {
	data, stat, err := c.conn.Get(nodePath)
	if err != nil {
		return nil, mapZKError("get", nodePath, err)
	}

	return &kv.Node{
		Path:       nodePath,
		Data:       data,
		Version:    stat.Version,
		CreatedAt:  time.UnixMilli(stat.Ctime),
		ModifiedAt: time.UnixMilli(stat.Mtime),
	}, nil
}

// Set implements kv.Client.
func (c *ZookeeperClient) Set(nodePath string, data []byte, version int32) error {
	// ZooKeeper natively treats version -1 as "any version".
	_, err := c.conn.Set(nodePath, data, version)
	return mapZKError("set", nodePath, err)
}

// Delete implements kv.Client.
func (c *ZookeeperClient) Delete(nodePath string, version int32) error {
	return mapZKError("delete", nodePath, c.conn.Delete(nodePath, version))
}

// Children implements kv.Client.
func (c *ZookeeperClient) Children(nodePath string) ([]string, error) {
	children, _, err := c.conn.Children(nodePath)
	if err == zk.ErrNoNode {
		return nil, nil
	} else if err != nil {
		return nil, mapZKError("children", nodePath, err)
	}
	return children, nil
}

// WatchChildren implements kv.Client.
func (c *ZookeeperClient) WatchChildren(nodePath string) (<-chan struct{}, error) {
	_, _, eventCh, err := c.conn.ChildrenW(nodePath)
	if err != nil {
		return nil, mapZKError("watch children", nodePath, err)
	}

	watchCh := make(chan struct{}, 1)
	go func() {
		<-eventCh
		watchCh <- struct{}{}
	}()
	return watchCh, nil
}

// Close implements kv.Client.
func (c *ZookeeperClient) Close() error {
	c.conn.Close()
	return nil
}

// mapZKError converts zk sentinel errors into their kv equivalents so that
// board code never needs to import the zk package.
func mapZKError(op, nodePath string, err error) error {
	switch err {
	case nil:
		return nil
	case zk.ErrNodeExists:
		return xerrors.Errorf("%s %q: %w", op, nodePath, kv.ErrNodeExists)
	case zk.ErrNoNode:
		return xerrors.Errorf("%s %q: %w", op, nodePath, kv.ErrNoNode)
	case zk.ErrBadVersion:
		return xerrors.Errorf("%s %q: %w", op, nodePath, kv.ErrVersionMismatch)
	default:
		return xerrors.Errorf("%s %q: %w", op, nodePath, err)
	}
}
