// Package catalog advertises which domain-model versions are being served.
//
// Each worker registers one Entry per loaded domain model under an etcd
// lease, so entries vanish when a worker stops renewing. Clients use the
// catalog to find the versions of a domain model that can be assessed
// against and to pick the latest one.
//
// Entries are stored under /{namespace}/domains/{name}/{version}/{worker-id}.
package catalog

import (
	"errors"
	"time"

	"github.com/Spyderisk/system-modeller-sub004/domain"
)

// ErrNotFound is returned by Latest when no worker serves the domain model.
var ErrNotFound = errors.New("catalog: domain model not found")

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = errors.New("catalog: client is closed")

// Entry records that a worker serves one version of a domain model.
type Entry struct {
	Domain   string `json:"domain"`
	Version  string `json:"version"`
	WorkerID string `json:"worker_id"`

	// Endpoint is where the worker's health service can be reached.
	Endpoint string `json:"endpoint,omitempty"`

	Patterns int `json:"patterns"`
	Threats  int `json:"threats"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}

// EntryFor describes m as served by the given worker.
func EntryFor(m *domain.Model, workerID, endpoint string) Entry {
	return Entry{
		Domain:    m.Name,
		Version:   m.Version,
		WorkerID:  workerID,
		Endpoint:  endpoint,
		Patterns:  len(m.Patterns),
		Threats:   len(m.Threats),
		StartedAt: time.Now().UTC(),
	}
}

// Config holds etcd connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints.
	// Format: ["host1:2379", "host2:2379"]
	Endpoints []string `json:"endpoints" koanf:"endpoints"`

	// Namespace is the etcd key prefix.
	// Default: "riskengine"
	Namespace string `json:"namespace" koanf:"namespace"`

	// TTL is the lease time-to-live in seconds.
	// Default: 30 seconds
	TTL int `json:"ttl" koanf:"ttl"`

	// TLS holds TLS configuration for etcd communication.
	// If nil, TLS is disabled
	TLS *TLSConfig `json:"tls" koanf:"tls"`
}

// TLSConfig holds mutual TLS certificate paths.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" koanf:"enabled"`
	CertFile string `json:"cert_file" koanf:"cert_file"`
	KeyFile  string `json:"key_file" koanf:"key_file"`
	CAFile   string `json:"ca_file" koanf:"ca_file"`
}
