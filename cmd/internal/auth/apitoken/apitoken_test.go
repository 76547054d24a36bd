package apitoken

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestIssuer_GetOrCreate_ReturnsSameToken(t *testing.T) {
	st := NewMemoryStore()
	iss := NewIssuer(st)
	ctx := context.Background()
	now := time.Now().UTC()

	first, created, err := iss.GetOrCreate(ctx, "acct-1", now)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, first.Key, KeyLen)
	require.Regexp(t, `^[0-9a-f]{40}$`, first.Key)

	again, created, err := iss.GetOrCreate(ctx, "acct-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.Key, again.Key)

	other, created, err := iss.GetOrCreate(ctx, "acct-2", now)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.Key, other.Key)
	require.Equal(t, 2, st.Len())
}

func TestIssuer_GetOrCreate_Concurrent(t *testing.T) {
	st := NewMemoryStore()
	iss := NewIssuer(st)
	ctx := context.Background()

	const n = 32
	keys := make([]string, n)
	var creates atomic.Int32

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			tok, created, err := iss.GetOrCreate(ctx, "acct-1", time.Now().UTC())
			if err != nil {
				return err
			}
			if created {
				creates.Add(1)
			}
			keys[i] = tok.Key
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, st.Len())
	require.Equal(t, int32(1), creates.Load())
	for _, k := range keys {
		require.Equal(t, keys[0], k)
	}
}

// racingStore makes every caller miss on the first read so that inserts collide
// at the store, as they would across processes.
type racingStore struct {
	*MemoryStore
	mu     sync.Mutex
	misses map[string]bool
}

func (r *racingStore) GetByAccount(ctx context.Context, accountID string) (Token, error) {
	r.mu.Lock()
	first := !r.misses[accountID]
	r.misses[accountID] = true
	r.mu.Unlock()
	if first {
		return Token{}, ErrNotFound
	}
	return r.MemoryStore.GetByAccount(ctx, accountID)
}

func TestIssuer_GetOrCreate_LoserRereads(t *testing.T) {
	mem := NewMemoryStore()
	winner := Token{Key: "0123456789abcdef0123456789abcdef01234567", AccountID: "acct-1", CreatedAt: time.Now().UTC()}
	_, err := mem.InsertIfAbsent(context.Background(), winner)
	require.NoError(t, err)

	iss := NewIssuer(&racingStore{MemoryStore: mem, misses: map[string]bool{}})
	got, created, err := iss.GetOrCreate(context.Background(), "acct-1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, winner.Key, got.Key)
}

// gatedStore holds GetByAccount until release is closed.
type gatedStore struct {
	*MemoryStore
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *gatedStore) GetByAccount(ctx context.Context, accountID string) (Token, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.MemoryStore.GetByAccount(ctx, accountID)
}

func TestIssuer_GetOrCreate_JoinerSurvivesStarterCancel(t *testing.T) {
	st := &gatedStore{MemoryStore: NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	iss := NewIssuer(st)

	startCtx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		_, _, err := iss.GetOrCreate(startCtx, "acct-1", time.Now().UTC())
		startErr <- err
	}()
	<-st.entered
	cancel()
	require.ErrorIs(t, <-startErr, context.Canceled)

	type result struct {
		tok Token
		err error
	}
	joined := make(chan result, 1)
	go func() {
		tok, _, err := iss.GetOrCreate(context.Background(), "acct-1", time.Now().UTC())
		joined <- result{tok: tok, err: err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(st.release)

	res := <-joined
	require.NoError(t, res.err)
	require.Len(t, res.tok.Key, KeyLen)

	stored, err := st.MemoryStore.GetByAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Equal(t, stored.Key, res.tok.Key)
	require.Equal(t, 1, st.Len())
}

func TestIssuer_ValidateAndRevoke(t *testing.T) {
	iss := NewIssuer(NewMemoryStore())
	ctx := context.Background()

	tok, _, err := iss.GetOrCreate(ctx, "acct-1", time.Now().UTC())
	require.NoError(t, err)

	acct, err := iss.Validate(ctx, "  "+tok.Key+" ")
	require.NoError(t, err)
	require.Equal(t, "acct-1", acct)

	for _, bad := range []string{"", "short", tok.Key[:39] + "Z", "ffffffffffffffffffffffffffffffffffffffff"} {
		_, err := iss.Validate(ctx, bad)
		require.ErrorIs(t, err, ErrNotFound, bad)
	}

	require.NoError(t, iss.Revoke(ctx, "acct-1"))
	require.NoError(t, iss.Revoke(ctx, "acct-1"))
	_, err = iss.Validate(ctx, tok.Key)
	require.ErrorIs(t, err, ErrNotFound)

	fresh, created, err := iss.GetOrCreate(ctx, "acct-1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, tok.Key, fresh.Key)
}

func TestIssuer_EmptyAccount(t *testing.T) {
	_, _, err := NewIssuer(NewMemoryStore()).GetOrCreate(context.Background(), " ", time.Now())
	require.Error(t, err)
}
