package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-cert-api/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptionsFromFields(t *testing.T) {
	opts, err := Options(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 4, OpTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, time.Second, opts.WriteTimeout)
}

func TestOptionsURLWins(t *testing.T) {
	opts, err := Options(config.RedisConfig{URL: "redis://:secret@redis.internal:6379/3", Host: "ignored", Port: 1})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = Options(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}
