package instruments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "company_list.txt")
	require.NoError(t, os.WriteFile(path, []byte("ACME\n\n  GLOBEX \nINITECH\n"), 0o644))

	names, err := LoadFile(path, 3)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	n, ok := names.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "ACME", n)
	_, ok = names.Name(1)
	assert.False(t, ok, "blank line leaves the id unnamed")
	n, _ = names.Name(2)
	assert.Equal(t, "GLOBEX", n)
	_, ok = names.Name(3)
	assert.False(t, ok, "past the universe")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"), 8)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeHash struct {
	m   map[string]string
	err error
}

func (f fakeHash) HGetAll(context.Context, string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(f.m, f.err)
}

func TestLoadRedis(t *testing.T) {
	rdb := fakeHash{m: map[string]string{"0": "ACME", "2": "GLOBEX", "9": "FAR", "x": "BAD"}}
	names, err := LoadRedis(context.Background(), rdb, "instruments", 4, zap.NewNop())
	require.NoError(t, err)

	n, ok := names.Name(2)
	assert.True(t, ok)
	assert.Equal(t, "GLOBEX", n)
	_, ok = names.Name(1)
	assert.False(t, ok)
	assert.Len(t, names, 4)
}

func TestLoadRedisError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := LoadRedis(context.Background(), fakeHash{err: boom}, "instruments", 4, zap.NewNop())
	assert.ErrorIs(t, err, boom)
}
