package storage

import (
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh store whose schema has not been ensured yet
type storeFactory func(t *testing.T) Store

func strPtr(s string) *string {
	return &s
}

func testAddress(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

// runStoreContract exercises the behavior every engine must share
func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("insert returns positive id", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		id, err := store.Insert(ctx, &models.NewAddress{
			Address:   "0xABab123400000000000000000000000000000000",
			UserAgent: strPtr("curl/8.0"),
			Notes:     strPtr("test"),
		})
		require.NoError(t, err)
		assert.Positive(t, id)

		addresses, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, addresses, 1)
		assert.Equal(t, id, addresses[0].ID)
		assert.Equal(t, "0xABab123400000000000000000000000000000000", addresses[0].Address)
		require.NotNil(t, addresses[0].UserAgent)
		assert.Equal(t, "curl/8.0", *addresses[0].UserAgent)
		require.NotNil(t, addresses[0].Notes)
		assert.Equal(t, "test", *addresses[0].Notes)
		assert.False(t, addresses[0].Timestamp.IsZero())
	})

	t.Run("nullable metadata round trips as nil", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		_, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(1)})
		require.NoError(t, err)

		addresses, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, addresses, 1)
		assert.Nil(t, addresses[0].UserAgent)
		assert.Nil(t, addresses[0].Notes)
		assert.Nil(t, addresses[0].Signature)
	})

	t.Run("duplicate address is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		input := &models.NewAddress{Address: testAddress(42)}
		_, err := store.Insert(ctx, input)
		require.NoError(t, err)

		_, err = store.Insert(ctx, input)
		require.Error(t, err)
		assert.True(t, apperrors.IsDuplicateKey(err), "expected duplicate key, got %v", err)
		assert.False(t, apperrors.IsStoreError(err))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("addresses differing only in case are distinct", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		_, err := store.Insert(ctx, &models.NewAddress{Address: "0xabcdef0000000000000000000000000000000000"})
		require.NoError(t, err)
		_, err = store.Insert(ctx, &models.NewAddress{Address: "0xABCDEF0000000000000000000000000000000000"})
		require.NoError(t, err)
	})

	t.Run("list is newest first and count matches", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		empty, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		const n = 5
		ids := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			id, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(i + 1)})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(n), count)

		addresses, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, addresses, n)
		for i, addr := range addresses {
			assert.Equal(t, ids[n-1-i], addr.ID)
		}
		for i := 1; i < len(addresses); i++ {
			assert.False(t, addresses[i].Timestamp.After(addresses[i-1].Timestamp))
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		keep, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(1)})
		require.NoError(t, err)
		drop, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(2)})
		require.NoError(t, err)

		affected, err := store.DeleteByID(ctx, drop)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		affected, err = store.DeleteByID(ctx, drop)
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)

		affected, err = store.DeleteByID(ctx, 999999)
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)

		addresses, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, addresses, 1)
		assert.Equal(t, keep, addresses[0].ID)
	})

	t.Run("ensure schema is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		_, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(7)})
		require.NoError(t, err)

		require.NoError(t, store.EnsureSchema(ctx))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("concurrent duplicates yield exactly one success", func(t *testing.T) {
		store := newStore(t)
		ctx := testContext(t)
		require.NoError(t, store.EnsureSchema(ctx))

		const workers = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Insert(ctx, &models.NewAddress{Address: testAddress(99)})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case apperrors.IsDuplicateKey(err):
					duplicates++
				default:
					t.Errorf("unexpected insert error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, duplicates)
	})

	t.Run("ping succeeds", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(testContext(t)))
	})
}
