package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/memory"
)

func newTestRedisStore(t *testing.T, opts RedisOptions) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, opts, logging.New(nil, "silent", "json")), mr
}

func newTestSQLiteStore(t *testing.T, opts SQLiteOptions) *SQLiteStore {
	t.Helper()
	opts.Path = ":memory:"
	s, err := NewSQLiteStore(opts, logging.New(nil, "silent", "json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stores builds every backend so the contract tests run against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := newTestRedisStore(t, RedisOptions{})
	return map[string]Store{
		"redis":  rs,
		"sqlite": newTestSQLiteStore(t, SQLiteOptions{}),
	}
}

func TestLoadMissReturnsEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			conv, err := s.Load(context.Background(), "nope")
			require.NoError(t, err)
			assert.Equal(t, "nope", conv.SessionID())
			assert.Equal(t, 0, conv.Len())
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := memory.New("s1", memory.Limits{})
			conv.Add(domain.RoleUser, "hello", map[string]string{"client": "test"})
			conv.Add(domain.RoleAssistant, "hi", nil)
			require.NoError(t, s.Save(ctx, conv))

			loaded, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, 2, loaded.Len())

			msgs := loaded.Messages()
			assert.Equal(t, domain.RoleUser, msgs[0].Role)
			assert.Equal(t, "hello", msgs[0].Content)
			assert.Equal(t, map[string]string{"client": "test"}, msgs[0].Metadata)
			assert.Equal(t, "hi", msgs[1].Content)
		})
	}
}

func TestSaveIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := memory.New("s1", memory.Limits{})
			conv.Add(domain.RoleUser, "once", nil)

			require.NoError(t, s.Save(ctx, conv))
			require.NoError(t, s.Save(ctx, conv))

			loaded, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 1, loaded.Len())
		})
	}
}

func TestSessionIsolation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c1, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			c2, err := s.Load(ctx, "s2")
			require.NoError(t, err)
			assert.Equal(t, 0, c1.Len())
			assert.Equal(t, 0, c2.Len())

			c1.Add(domain.RoleUser, "only in s1", nil)
			require.NoError(t, s.Save(ctx, c1))

			c2Again, err := s.Load(ctx, "s2")
			require.NoError(t, err)
			assert.Equal(t, 0, c2Again.Len())
		})
	}
}

func TestDeleteSemantics(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			existed, err := s.Delete(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, existed)

			conv := memory.New("s1", memory.Limits{})
			conv.Add(domain.RoleUser, "hi", nil)
			require.NoError(t, s.Save(ctx, conv))

			existed, err = s.Delete(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, existed)

			loaded, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 0, loaded.Len())
		})
	}
}

func TestLoadAppliesCurrentLimits(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log := logging.New(nil, "silent", "json")

	wide := NewRedisStoreWithClient(client, RedisOptions{Limits: memory.Limits{MaxMessages: 20}}, log)
	conv := memory.New("s1", memory.Limits{MaxMessages: 20})
	for i := 0; i < 8; i++ {
		conv.Add(domain.RoleUser, "m", nil)
	}
	require.NoError(t, wide.Save(ctx, conv))

	// A store configured with tighter limits truncates on load, without
	// any migration of the stored record.
	narrow := NewRedisStoreWithClient(client, RedisOptions{Limits: memory.Limits{MaxMessages: 3}}, log)
	loaded, err := narrow.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
}

func TestRedisTTLRefreshedOnSave(t *testing.T) {
	s, mr := newTestRedisStore(t, RedisOptions{TTL: time.Hour})
	ctx := context.Background()

	conv := memory.New("s1", memory.Limits{})
	conv.Add(domain.RoleUser, "hi", nil)
	require.NoError(t, s.Save(ctx, conv))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, s.Save(ctx, conv))
	mr.FastForward(45 * time.Minute)

	// 75 minutes after the first save the record is still live because the
	// second save reset the window.
	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	mr.FastForward(20 * time.Minute)
	loaded, err = s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestRedisConnectivityErrors(t *testing.T) {
	s, mr := newTestRedisStore(t, RedisOptions{})
	ctx := context.Background()

	conv := memory.New("s1", memory.Limits{})
	conv.Add(domain.RoleUser, "hi", nil)
	require.NoError(t, s.Save(ctx, conv))

	mr.Close()

	_, err := s.Load(ctx, "s1")
	var connErr *domain.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.Save(ctx, conv)
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Delete(ctx, "s1")
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSQLiteConnectivityErrors(t *testing.T) {
	s := newTestSQLiteStore(t, SQLiteOptions{})
	ctx := context.Background()

	conv := memory.New("s1", memory.Limits{})
	conv.Add(domain.RoleUser, "hi", nil)
	require.NoError(t, s.Save(ctx, conv))

	require.NoError(t, s.db.Close())

	var connErr *domain.ConnectivityError
	_, err := s.Load(ctx, "s1")
	require.ErrorAs(t, err, &connErr)
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.Save(ctx, conv)
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisCorruptRecordStartsOver(t *testing.T) {
	s, mr := newTestRedisStore(t, RedisOptions{})
	require.NoError(t, mr.Set(DefaultPrefix+":s1", "{not json"))

	loaded, err := s.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestSQLiteExpiry(t *testing.T) {
	s := newTestSQLiteStore(t, SQLiteOptions{TTL: time.Hour})
	ctx := context.Background()

	conv := memory.New("s1", memory.Limits{})
	conv.Add(domain.RoleUser, "hi", nil)
	require.NoError(t, s.Save(ctx, conv))

	// Force the record into the past and confirm it reads as a miss.
	_, err := s.db.Exec(`UPDATE conversations SET expires_at = ?`, time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	loaded, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())

	existed, err := s.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSQLiteSweep(t *testing.T) {
	s := newTestSQLiteStore(t, SQLiteOptions{TTL: time.Hour})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		conv := memory.New(id, memory.Limits{})
		conv.Add(domain.RoleUser, "hi", nil)
		require.NoError(t, s.Save(ctx, conv))
	}

	_, err := s.db.Exec(`UPDATE conversations SET expires_at = ? WHERE key != ?`,
		time.Now().Add(-time.Minute).Unix(), DefaultPrefix+":c")
	require.NoError(t, err)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	loaded, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("abc-123.DEF_x"))
	assert.NoError(t, ValidateSessionID("a"))

	var vErr *domain.ValidationError
	assert.ErrorAs(t, ValidateSessionID(""), &vErr)
	assert.ErrorAs(t, ValidateSessionID("has space"), &vErr)
	assert.ErrorAs(t, ValidateSessionID("semi;colon"), &vErr)
	assert.ErrorAs(t, ValidateSessionID("-leading"), &vErr)

	long := make([]byte, MaxSessionIDLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorAs(t, ValidateSessionID(string(long)), &vErr)
}
