package catalog

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"

	"github.com/Spyderisk/system-modeller-sub004/domain"
)

func kv(t *testing.T, e Entry) *mvccpb.KeyValue {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return &mvccpb.KeyValue{
		Key:   []byte(buildKey(defaultNamespace, e.Domain, e.Version, e.WorkerID)),
		Value: data,
	}
}

func TestBuildAndParseKey(t *testing.T) {
	key := buildKey("riskengine", "network", "1.2.0", "w-1")
	assert.Equal(t, "/riskengine/domains/network/1.2.0/w-1", key)
	assert.Equal(t, "/riskengine/domains/network/", domainPrefix("riskengine", "network"))

	name, version, worker, ok := parseKey("riskengine", key)
	require.True(t, ok)
	assert.Equal(t, "network", name)
	assert.Equal(t, "1.2.0", version)
	assert.Equal(t, "w-1", worker)

	for _, bad := range []string{
		"/other/domains/network/1.2.0/w-1",
		"/riskengine/domains/network/1.2.0",
		"/riskengine/domains/network//w-1",
		"/riskengine/domains/network/1.2.0/w-1/extra",
	} {
		_, _, _, ok := parseKey("riskengine", bad)
		assert.False(t, ok, bad)
	}
}

func TestDecodeEntries(t *testing.T) {
	kvs := []*mvccpb.KeyValue{
		kv(t, Entry{Domain: "network", Version: "1.10.0", WorkerID: "w-2"}),
		{Key: []byte("/riskengine/domains/network/x/y"), Value: []byte("{not json")},
		kv(t, Entry{Domain: "network", Version: "1.2.0", WorkerID: "w-1"}),
		kv(t, Entry{Domain: "network", Version: "1.10.0", WorkerID: "w-1"}),
		kv(t, Entry{Domain: "network", WorkerID: "w-3"}),
		{Key: []byte("/riskengine/domains/network/9.0.0/w-9"), Value: kv(t, Entry{Domain: "network", Version: "1.0.0", WorkerID: "w-9"}).Value},
	}

	entries := decodeEntries(defaultNamespace, kvs)
	require.Len(t, entries, 3)
	assert.Equal(t, "1.2.0", entries[0].Version)
	assert.Equal(t, "1.10.0", entries[1].Version)
	assert.Equal(t, "w-1", entries[1].WorkerID)
	assert.Equal(t, "w-2", entries[2].WorkerID)

	assert.Equal(t, []string{"1.2.0", "1.10.0"}, versions(entries))

	best, ok := latest(entries)
	require.True(t, ok)
	assert.Equal(t, "1.10.0", best.Version)
	assert.Equal(t, "w-1", best.WorkerID)

	_, ok = latest(nil)
	assert.False(t, ok)
}

func TestValidateEntry(t *testing.T) {
	assert.NoError(t, validateEntry(Entry{Domain: "network", Version: "1.0.0", WorkerID: "w"}))

	err := validateEntry(Entry{Domain: "network", Version: "1.0.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_id is required")

	err = validateEntry(Entry{Domain: "net/work", Version: "1.0.0", WorkerID: "w"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain")
}

func TestEntryFor(t *testing.T) {
	m, err := domain.Load(filepath.Join("..", "domain", "testdata", "network.yaml"))
	require.NoError(t, err)

	e := EntryFor(m, "w-1", "localhost:50051")
	assert.Equal(t, "network", e.Domain)
	assert.Equal(t, "1.0.0", e.Version)
	assert.Equal(t, len(m.Patterns), e.Patterns)
	assert.Equal(t, len(m.Threats), e.Threats)
	assert.WithinDuration(t, time.Now(), e.StartedAt, time.Minute)
	assert.NoError(t, validateEntry(e))
}

func TestParseEndpoints(t *testing.T) {
	assert.Equal(t, []string{"a:2379", "b:2379"}, ParseEndpoints(" a:2379, ,b:2379 "))
	assert.Empty(t, ParseEndpoints(""))
}

func TestNewClient_Config(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints cannot be empty")

	_, err = NewClient(Config{
		Endpoints: []string{"localhost:2379"},
		TLS:       &TLSConfig{Enabled: true, CertFile: "c.pem"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS key file is required")
}

func TestNewClientFromEnv_Unset(t *testing.T) {
	t.Setenv("RISK_CATALOG_ENDPOINTS", "")
	c, err := NewClientFromEnv()
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestTLSConfig_Disabled(t *testing.T) {
	var nilCfg *TLSConfig
	cfg, err := nilCfg.clientConfig()
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = (&TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key", CAFile: "ca.pem"}).clientConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load client certificate")
}

func TestKeepaliveInterval(t *testing.T) {
	assert.Equal(t, 10*time.Second, keepaliveInterval(30))
}
