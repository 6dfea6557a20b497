package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID        int        `json:"id"`
	Date      time.Time  `json:"date"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

func newTestStore() (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	return NewStore(backend, zerolog.Nop()), backend
}

func TestStoreLoadAbsent(t *testing.T) {
	store, _ := newTestStore()

	var records []record
	found, err := store.Load(context.Background(), UsersKey, &records)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, records)
}

func TestStoreRoundTripsDates(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore()

	date := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	decided := date.Add(48 * time.Hour)
	in := []record{{ID: 1, Date: date}, {ID: 2, Date: date, DecidedAt: &decided}}
	require.NoError(t, store.Save(ctx, ExpensesKey, in))

	raw, _, err := backend.Get(ctx, ExpensesKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"2025-05-01T09:30:00Z"`, "dates are stored as ISO strings")

	var out []record
	found, err := store.Load(ctx, ExpensesKey, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out, 2)
	assert.True(t, out[0].Date.Equal(date))
	assert.Nil(t, out[0].DecidedAt)
	require.NotNil(t, out[1].DecidedAt)
	assert.True(t, out[1].DecidedAt.Equal(decided))
}

func TestStoreMalformedValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore()
	require.NoError(t, backend.Put(ctx, ExpensesKey, []byte("{not json")))

	records := []record{{ID: 9}}
	found, err := store.Load(ctx, ExpensesKey, &records)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, records, "target is reset")

	warnings := store.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], ExpensesKey)
}

func TestStoreUpdateOverMalformedValue(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore()
	require.NoError(t, backend.Put(ctx, UsersKey, []byte("garbage")))

	var records []record
	err := store.Update(ctx, UsersKey, &records, func(found bool) error {
		assert.False(t, found)
		records = append(records, record{ID: 1})
		return nil
	})
	require.NoError(t, err)

	var out []record
	found, err := store.Load(ctx, UsersKey, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []record{{ID: 1}}, out)
}

func TestStoreUpdateAbortLeavesValue(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	require.NoError(t, store.Save(ctx, UsersKey, []record{{ID: 1}}))

	errStop := errors.New("stop")
	var records []record
	err := store.Update(ctx, UsersKey, &records, func(bool) error {
		records = nil
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	var out []record
	_, err = store.Load(ctx, UsersKey, &out)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var records []record
			err := store.Update(ctx, UsersKey, &records, func(bool) error {
				records = append(records, record{ID: len(records) + 1})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var out []record
	_, err := store.Load(ctx, UsersKey, &out)
	require.NoError(t, err)
	require.Len(t, out, 50)
	for i, r := range out {
		assert.Equal(t, i+1, r.ID)
	}
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	require.NoError(t, store.Save(ctx, IsLoggedInKey, true))
	require.NoError(t, store.Remove(ctx, IsLoggedInKey))

	var flag bool
	found, err := store.Load(ctx, IsLoggedInKey, &flag)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionKeys(t *testing.T) {
	userKey, flagKey := SessionKeys("")
	assert.Equal(t, "currentUser", userKey)
	assert.Equal(t, "isLoggedIn", flagKey)

	userKey, flagKey = SessionKeys("abc")
	assert.Equal(t, "profiles/abc/currentUser", userKey)
	assert.Equal(t, "profiles/abc/isLoggedIn", flagKey)
}
