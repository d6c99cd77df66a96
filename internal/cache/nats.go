package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig holds configuration for the NATS KV backend
type NATSConfig struct {
	ServerURL  string
	BucketName string
	Embedded   bool
	DataDir    string
}

// natsStore is the alternative durable backend, a JetStream KV bucket with
// native per-bucket TTL. Optionally runs an embedded server, which keeps
// the durable path self-contained in single-node deployments and tests.
type natsStore struct {
	server *server.Server
	conn   *nats.Conn
	kv     jetstream.KeyValue
}

// NewNATSStore creates the NATS KV backend. The bucket TTL matches the
// cache TTL so entries expire server-side.
func NewNATSStore(cfg NATSConfig, ttl time.Duration) (Store, error) {
	store := &natsStore{}

	if cfg.Embedded {
		if err := store.startEmbeddedServer(cfg); err != nil {
			return nil, fmt.Errorf("failed to start embedded server: %w", err)
		}
		cfg.ServerURL = store.server.ClientURL()
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = nats.DefaultURL
	}

	conn, err := nats.Connect(serverURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	store.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bucketName := cfg.BucketName
	if bucketName == "" {
		bucketName = "presence"
	}

	kv, err := js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: bucketName,
		TTL:    ttl,
	})
	if err != nil {
		kv, err = js.KeyValue(context.Background(), bucketName)
		if err != nil {
			store.cleanup()
			return nil, fmt.Errorf("failed to create/get KV bucket: %w", err)
		}
	}
	store.kv = kv

	return store, nil
}

func (s *natsStore) Get(ctx context.Context, key string) ([]byte, bool) {
	kvEntry, err := s.kv.Get(ctx, kvKey(key))
	if err != nil {
		return nil, false
	}
	return kvEntry.Value(), true
}

func (s *natsStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, kvKey(key), value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *natsStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, kvKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *natsStore) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return 0
	}
	return len(keys)
}

func (s *natsStore) Backend() string { return BackendNATS }

func (s *natsStore) Close() error {
	return s.cleanup()
}

// kvKey maps a cache key to a valid KV key. NATS KV keys cannot contain
// colons, so the user:{id} / presence:{id} scheme is stored dotted.
func kvKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

// startEmbeddedServer starts an embedded JetStream-enabled NATS server on
// a random port.
func (s *natsStore) startEmbeddedServer(cfg NATSConfig) error {
	opts := &server.Options{
		Host:       "0.0.0.0",
		Port:       -1,
		JetStream:  true,
		ServerName: fmt.Sprintf("presence-cache-%d", time.Now().UnixNano()),
	}

	if cfg.DataDir != "" {
		if err := ensureDirectory(cfg.DataDir); err != nil {
			return fmt.Errorf("failed to ensure data directory: %w", err)
		}
		opts.StoreDir = cfg.DataDir
		opts.JetStreamMaxMemory = 32 * 1024 * 1024
		opts.JetStreamMaxStore = 256 * 1024 * 1024
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(15 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("embedded server failed to start within 15s")
	}

	s.server = ns
	return nil
}

func (s *natsStore) cleanup() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server.WaitForShutdown()
	}
	return nil
}

// ensureDirectory creates the directory if needed and verifies it is writable
func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	testFile := dir + "/.write-test"
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}
