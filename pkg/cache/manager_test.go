package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis returns a client against a local Redis, skipping when none
// is reachable. The containerized variant lives in tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_PanicsOnNilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Hour)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	key := Key{
		Endpoint:    "/issue/SPARK-1",
		QueryParams: url.Values{"expand": []string{"comments"}},
	}
	entry := &Entry{
		Data:       []byte(`{"key":"SPARK-1"}`),
		ETag:       `"v1"`,
		StatusCode: 200,
		CachedAt:   time.Now(),
	}

	ctx := context.Background()
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}
	if got.ETag != entry.ETag {
		t.Errorf("ETag = %q, want %q", got.ETag, entry.ETag)
	}
}

func TestManager_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/issue/NOPE-1"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	key := Key{Endpoint: "/issue/SPARK-2"}
	ctx := context.Background()

	if err := manager.Set(ctx, key, &Entry{Data: []byte("{}"), StatusCode: 200}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestManager_SetNilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)

	if err := manager.Set(context.Background(), Key{Endpoint: "/x"}, nil); err == nil {
		t.Error("Expected error for nil entry")
	}
}
