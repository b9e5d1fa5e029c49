// Package memory provides an in-memory kv.Client implementation for tests
// and single-process deployments.
package memory

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/openstack-archive/poppy-sub002/jobboard/kv"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring InMemoryClient implements kv.Client.
var _ kv.Client = (*InMemoryClient)(nil)

// InMemoryClient is a kv.Client implementation backed by a mutex-protected
// map. All clients created by NewInMemoryClient share no state; to emulate
// multiple sessions against the same backend use Session.
type InMemoryClient struct {
	mu        sync.Mutex
	nodes     map[string]*kv.Node
	ephemeral map[string]bool
	watchers  map[string]chan struct{}
	closed    bool
}

// NewInMemoryClient creates a new in-memory coordination backend client.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		nodes:     make(map[string]*kv.Node),
		ephemeral: make(map[string]bool),
		watchers:  make(map[string]chan struct{}),
	}
}

// Session returns a new session sharing this client's stored nodes.
// Ephemeral nodes created through the session are released when the session
// is closed, without affecting the parent client.
func (c *InMemoryClient) Session() kv.Client {
	return &session{backend: c, owned: make(map[string]bool)}
}

// Create implements kv.Client.
func (c *InMemoryClient) Create(nodePath string, data []byte, ephemeral bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(nodePath, data, ephemeral)
}

func (c *InMemoryClient) createLocked(nodePath string, data []byte, ephemeral bool) error {
	if c.closed {
		return xerrors.New("client is closed")
	}
	if _, exists := c.nodes[nodePath]; exists {
		return xerrors.Errorf("create %q: %w", nodePath, kv.ErrNodeExists)
	}

	now := time.Now()
	c.nodes[nodePath] = &kv.Node{
		Path:       nodePath,
		Data:       append([]byte(nil), data...),
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if ephemeral {
		c.ephemeral[nodePath] = true
	}
	c.notifyLocked(path.Dir(nodePath))
	return nil
}

// Get implements kv.Client.
func (c *InMemoryClient) Get(nodePath string) (*kv.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, exists := c.nodes[nodePath]
	if !exists {
		return nil, xerrors.Errorf("get %q: %w", nodePath, kv.ErrNoNode)
	}

	// Clone so that callers cannot mutate the stored node.
	cloned := *node
	cloned.Data = append([]byte(nil), node.Data...)
	return &cloned, nil
}

// Set implements kv.Client.
func (c *InMemoryClient) Set(nodePath string, data []byte, version int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, exists := c.nodes[nodePath]
	if !exists {
		return xerrors.Errorf("set %q: %w", nodePath, kv.ErrNoNode)
	}
	if version != kv.AnyVersion && version != node.Version {
		return xerrors.Errorf("set %q: %w", nodePath, kv.ErrVersionMismatch)
	}

	node.Data = append([]byte(nil), data...)
	node.Version++
	node.ModifiedAt = time.Now()
	return nil
}

// Delete implements kv.Client.
func (c *InMemoryClient) Delete(nodePath string, version int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(nodePath, version)
}

func (c *InMemoryClient) deleteLocked(nodePath string, version int32) error {
	node, exists := c.nodes[nodePath]
	if !exists {
		return xerrors.Errorf("delete %q: %w", nodePath, kv.ErrNoNode)
	}
	if version != kv.AnyVersion && version != node.Version {
		return xerrors.Errorf("delete %q: %w", nodePath, kv.ErrVersionMismatch)
	}

	delete(c.nodes, nodePath)
	delete(c.ephemeral, nodePath)
	c.notifyLocked(path.Dir(nodePath))
	return nil
}

// Children implements kv.Client.
func (c *InMemoryClient) Children(nodePath string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := strings.TrimSuffix(nodePath, "/") + "/"
	var children []string
	for p := range c.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if !strings.Contains(rest, "/") {
			children = append(children, rest)
		}
	}
	return children, nil
}

// WatchChildren implements kv.Client. Watchers on the same path share a
// single pending channel, so a caller that stops listening leaves nothing
// behind; the watch is re-armed by the next WatchChildren call after it
// fires.
func (c *InMemoryClient) WatchChildren(nodePath string) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.TrimSuffix(nodePath, "/")
	watchCh, exists := c.watchers[key]
	if !exists {
		watchCh = make(chan struct{})
		c.watchers[key] = watchCh
	}
	return watchCh, nil
}

// Close implements kv.Client.
func (c *InMemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.ephemeral {
		_ = c.deleteLocked(p, kv.AnyVersion)
	}
	c.closed = true
	return nil
}

// notifyLocked fires and disarms the pending watch for parentPath. Closing
// the channel wakes every waiter that armed a watch on the path.
func (c *InMemoryClient) notifyLocked(parentPath string) {
	key := strings.TrimSuffix(parentPath, "/")
	if watchCh, exists := c.watchers[key]; exists {
		close(watchCh)
		delete(c.watchers, key)
	}
}

// session scopes ephemeral-node ownership to a single simulated session.
type session struct {
	backend *InMemoryClient

	mu    sync.Mutex
	owned map[string]bool
}

func (s *session) Create(nodePath string, data []byte, ephemeral bool) error {
	if err := s.backend.Create(nodePath, data, ephemeral); err != nil {
		return err
	}
	if ephemeral {
		s.mu.Lock()
		s.owned[nodePath] = true
		s.mu.Unlock()
	}
	return nil
}

func (s *session) Get(nodePath string) (*kv.Node, error) { return s.backend.Get(nodePath) }

func (s *session) Set(nodePath string, data []byte, version int32) error {
	return s.backend.Set(nodePath, data, version)
}

func (s *session) Delete(nodePath string, version int32) error {
	err := s.backend.Delete(nodePath, version)
	if err == nil {
		s.mu.Lock()
		delete(s.owned, nodePath)
		s.mu.Unlock()
	}
	return err
}

func (s *session) Children(nodePath string) ([]string, error) {
	return s.backend.Children(nodePath)
}

func (s *session) WatchChildren(nodePath string) (<-chan struct{}, error) {
	return s.backend.WatchChildren(nodePath)
}

func (s *session) Close() error {
	s.mu.Lock()
	owned := make([]string, 0, len(s.owned))
	for p := range s.owned {
		owned = append(owned, p)
	}
	s.owned = make(map[string]bool)
	s.mu.Unlock()

	for _, p := range owned {
		_ = s.backend.Delete(p, kv.AnyVersion)
	}
	return nil
}
