//go:build database

package modelcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	return c
}

// TestSnapshotStoreWithMySQL exercises the MySQL snapshot backend.
func TestSnapshotStoreWithMySQL(t *testing.T) {
	c := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "stockcast",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	})

	host, err := c.Host(context.Background())
	require.NoError(t, err)
	mapped, err := c.MappedPort(context.Background(), "3306")
	require.NoError(t, err)
	port := mapped.Port()

	store, err := NewSQLStore(BackendMySQL, fmt.Sprintf("root:secret123@tcp(%s:%s)/stockcast", host, port))
	require.NoError(t, err)
	defer store.Close()
	exerciseSnapshotStore(t, store)
}

// TestSnapshotStoreWithPostgres exercises the PostgreSQL snapshot backend.
func TestSnapshotStoreWithPostgres(t *testing.T) {
	c := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})

	host, err := c.Host(context.Background())
	require.NoError(t, err)
	mapped, err := c.MappedPort(context.Background(), "5432")
	require.NoError(t, err)
	port := mapped.Port()

	store, err := NewSQLStore(BackendPostgreSQL, fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres", host, port))
	require.NoError(t, err)
	defer store.Close()
	exerciseSnapshotStore(t, store)
}

// TestRedisBackendWithContainer runs the cache against a real Redis.
func TestRedisBackendWithContainer(t *testing.T) {
	c := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})

	host, err := c.Host(context.Background())
	require.NoError(t, err)
	mapped, err := c.MappedPort(context.Background(), "6379")
	require.NoError(t, err)
	port := mapped.Port()

	ctx := context.Background()
	backend, err := NewRedisBackend(ctx, RedisOptions{Addr: host + ":" + port, Prefix: DefaultKeyPrefix})
	require.NoError(t, err)

	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{Backend: backend})
	defer cache.Close()

	s := demand(t, 10, 30)
	_, err = cache.GetOrTrain(ctx, "SKU", s)
	require.NoError(t, err)

	raw, ok, err := backend.Get(ctx, "model:SKU")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, raw)

	cache.InvalidateAll(ctx)
	_, ok, err = backend.Get(ctx, "model:SKU")
	require.NoError(t, err)
	require.False(t, ok)
}
