package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

func TestNewClient_Standalone(t *testing.T) {
	client, _ := newMiniClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(&RedisConfig{Mode: "standalone", Addr: "127.0.0.1:1", MaxRetries: -1}, logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, ErrConnectionFailed))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *RedisConfig
	}{
		{"nil", nil},
		{"unknown mode", &RedisConfig{Mode: "ring", Addr: "127.0.0.1:6379"}},
		{"standalone without addr", &RedisConfig{Mode: ModeStandalone}},
		{"sentinel without master", &RedisConfig{Mode: ModeSentinel, SentinelAddrs: []string{"127.0.0.1:26379"}}},
		{"sentinel without addrs", &RedisConfig{Mode: ModeSentinel, MasterName: "mymaster"}},
		{"cluster without addrs", &RedisConfig{Mode: ModeCluster, Addr: "127.0.0.1:6379"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, nil)
			assert.Nil(t, client)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestRedisConfig_UniversalOptions(t *testing.T) {
	cfg := &RedisConfig{
		Mode:          ModeSentinel,
		Addr:          "ignored:6379",
		MasterName:    "mymaster",
		SentinelAddrs: []string{"s1:26379", "s2:26379"},
		DB:            2,
		PoolSize:      7,
		MaxRetries:    -1,
	}
	opts := cfg.universalOptions(nil)
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, opts.Addrs)

	failover := opts.Failover()
	assert.Equal(t, "mymaster", failover.MasterName)
	assert.Equal(t, 2, failover.DB)
	assert.Equal(t, 7, failover.PoolSize)

	cfg.Mode = ModeStandalone
	assert.Equal(t, "ignored:6379", cfg.universalOptions(nil).Simple().Addr)
}

func TestClient_Commands(t *testing.T) {
	client, _ := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", 0).Err())
	val, err := client.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	vals, err := client.MGet(ctx, "foo", "missing").Result()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"bar", nil}, vals)

	ok, err := client.SetNX(ctx, "foo", "baz", 0).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := client.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = client.Get(ctx, "foo").Result()
	assert.ErrorIs(t, err, goredis.Nil)
}

func TestClient_Close(t *testing.T) {
	client, _ := newMiniClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	ctx := context.Background()
	assert.Equal(t, ErrClientClosed, client.Get(ctx, "foo").Err())
	assert.Equal(t, ErrClientClosed, client.Set(ctx, "foo", 1, 0).Err())
	assert.Equal(t, ErrClientClosed, client.Ping(ctx))
	assert.Equal(t, ErrClientClosed, client.SetNX(ctx, "foo", 1, 0).Err())
	assert.Equal(t, ErrClientClosed, client.PTTL(ctx, "foo").Err())
	assert.Equal(t, ErrClientClosed, client.Scan(ctx, 0, "*", 10).Err())
}

//Personal.AI order the ending
