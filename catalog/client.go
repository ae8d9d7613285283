package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Spyderisk/system-modeller-sub004/domain"
)

const (
	defaultNamespace = "riskengine"
	defaultTTL       = 30
)

// Client registers and discovers domain-model entries in etcd.
//
// Registrations are kept alive by a background goroutine that renews the
// lease every TTL/3. All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID // key: entry key
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("catalog endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	tlsConfig, err := cfg.TLS.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv creates a client from RISK_CATALOG_ENDPOINTS, a
// comma-separated list of etcd endpoints. It returns nil, nil when the
// variable is unset: workers then run without advertising themselves.
func NewClientFromEnv() (*Client, error) {
	endpoints := ParseEndpoints(os.Getenv("RISK_CATALOG_ENDPOINTS"))
	if len(endpoints) == 0 {
		return nil, nil
	}
	return NewClient(Config{Endpoints: endpoints})
}

// ParseEndpoints splits a comma-separated endpoint list, dropping blanks.
func ParseEndpoints(s string) []string {
	var out []string
	for _, ep := range strings.Split(s, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, ep)
		}
	}
	return out
}

// Register publishes e under a lease. Registering the same domain, version
// and worker again replaces the entry and restarts its keepalive.
func (c *Client) Register(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	key := buildKey(c.namespace, e.Domain, e.Version, e.WorkerID)
	if cancelFn, exists := c.cancelFns[key]; exists {
		cancelFn()
		delete(c.cancelFns, key)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register %s@%s: %w", e.Domain, e.Version, err)
	}

	c.leases[key] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[key] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, key)

	return nil
}

// RegisterModels registers every model as served by one worker.
func (c *Client) RegisterModels(ctx context.Context, workerID, endpoint string, models []*domain.Model) error {
	for _, m := range models {
		if err := c.Register(ctx, EntryFor(m, workerID, endpoint)); err != nil {
			return err
		}
	}
	return nil
}

// Deregister revokes the entry's lease, deleting it immediately.
// Deregistering an unknown entry is a no-op.
func (c *Client) Deregister(ctx context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	key := buildKey(c.namespace, e.Domain, e.Version, e.WorkerID)
	if cancelFn, exists := c.cancelFns[key]; exists {
		cancelFn()
		delete(c.cancelFns, key)
	}

	leaseID, exists := c.leases[key]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, key)
	return nil
}

// Discover returns every entry of the named domain model, ordered by
// version and then worker ID.
func (c *Client) Discover(ctx context.Context, name string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	resp, err := c.client.Get(ctx, domainPrefix(c.namespace, name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", name, err)
	}
	return decodeEntries(c.namespace, resp.Kvs), nil
}

// DiscoverAll returns the entries of every domain model.
func (c *Client) DiscoverAll(ctx context.Context) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	resp, err := c.client.Get(ctx, fmt.Sprintf("/%s/domains/", c.namespace), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover domain models: %w", err)
	}
	return decodeEntries(c.namespace, resp.Kvs), nil
}

// Versions returns the distinct served versions of a domain model, lowest first.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	entries, err := c.Discover(ctx, name)
	if err != nil {
		return nil, err
	}
	return versions(entries), nil
}

// Latest returns an entry for the highest served version of a domain model.
func (c *Client) Latest(ctx context.Context, name string) (Entry, error) {
	entries, err := c.Discover(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	e, ok := latest(entries)
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return e, nil
}

// Watch sends the entries of a domain model now and after every change.
// The channel is closed when ctx is done or the client is closed.
func (c *Client) Watch(ctx context.Context, name string) (<-chan []Entry, error) {
	entries, err := c.Discover(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	ch := make(chan []Entry, 1)
	ch <- entries

	watchChan := c.client.Watch(ctx, domainPrefix(c.namespace, name), clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok || watchResp.Err() != nil {
					return
				}

				entries, err := c.Discover(ctx, name)
				if err != nil {
					continue
				}

				select {
				case ch <- entries:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops keepalives and watches and closes the etcd connection.
// Leases are left to expire.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()

	return c.client.Close()
}

func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, key string) {
	defer c.wg.Done()

	ticker := time.NewTicker(keepaliveInterval(c.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(ctx, leaseID); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Lease is gone; the entry has expired with it.
				c.mu.Lock()
				delete(c.leases, key)
				delete(c.cancelFns, key)
				c.mu.Unlock()
				return
			}
		}
	}
}

func keepaliveInterval(ttl int) time.Duration {
	return time.Duration(ttl) * time.Second / 3
}

func validateEntry(e Entry) error {
	for field, v := range map[string]string{"domain": e.Domain, "version": e.Version, "worker_id": e.WorkerID} {
		if v == "" {
			return fmt.Errorf("catalog entry %s is required", field)
		}
		if strings.Contains(v, "/") {
			return fmt.Errorf("catalog entry %s %q must not contain '/'", field, v)
		}
	}
	return nil
}

// buildKey returns /namespace/domains/name/version/worker-id.
func buildKey(namespace, name, version, workerID string) string {
	return fmt.Sprintf("/%s/domains/%s/%s/%s", namespace, name, version, workerID)
}

func domainPrefix(namespace, name string) string {
	return fmt.Sprintf("/%s/domains/%s/", namespace, name)
}

// parseKey splits a key built by buildKey.
func parseKey(namespace, key string) (name, version, workerID string, ok bool) {
	rest, found := strings.CutPrefix(key, fmt.Sprintf("/%s/domains/", namespace))
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// decodeEntries parses entry values, skipping invalid ones and those whose
// value does not match the key they are stored under.
func decodeEntries(namespace string, kvs []*mvccpb.KeyValue) []Entry {
	entries := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		name, version, workerID, ok := parseKey(namespace, string(kv.Key))
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			continue
		}
		if e.Domain != name || e.Version != version || e.WorkerID != workerID {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Domain != entries[j].Domain {
			return entries[i].Domain < entries[j].Domain
		}
		if c := domain.CompareVersions(entries[i].Version, entries[j].Version); c != 0 {
			return c < 0
		}
		return entries[i].WorkerID < entries[j].WorkerID
	})
}

func versions(entries []Entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.Version] {
			seen[e.Version] = true
			out = append(out, e.Version)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.CompareVersions(out[i], out[j]) < 0 })
	return out
}

// latest picks the highest version; among its workers the lowest ID wins.
func latest(entries []Entry) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range entries {
		if !found {
			best, found = e, true
			continue
		}
		c := domain.CompareVersions(e.Version, best.Version)
		if c > 0 || (c == 0 && e.WorkerID < best.WorkerID) {
			best = e
		}
	}
	return best, found
}
