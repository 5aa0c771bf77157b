package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

func TestLocalLocker(t *testing.T) {
	locker := lifecycle.NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "changelog:bedroom")
	require.NoError(t, err)

	t.Run("HeldKeyBlocks", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := locker.Lock(waitCtx, "changelog:bedroom")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("OtherKeysAreIndependent", func(t *testing.T) {
		other, err := locker.Lock(ctx, "changelog:kitchen")
		require.NoError(t, err)
		other()
	})

	t.Run("ReleaseWakesWaiter", func(t *testing.T) {
		acquired := make(chan func(), 1)
		go func() {
			next, err := locker.Lock(ctx, "changelog:bedroom")
			if err == nil {
				acquired <- next
			}
		}()

		unlock()
		unlock() // releasing twice is harmless

		select {
		case next := <-acquired:
			next()
		case <-time.After(time.Second):
			t.Fatal("waiter did not acquire the lock")
		}
	})
}

func TestStaticTypeManager(t *testing.T) {
	tm := lifecycle.NewStaticTypeManager()
	ctx := context.Background()

	for _, base := range []lifecycle.BaseType{
		lifecycle.BaseTypeDocument,
		lifecycle.BaseTypeFolder,
		lifecycle.BaseTypeRelationship,
		lifecycle.BaseTypePolicy,
		lifecycle.BaseTypeItem,
	} {
		td, err := tm.GetTypeDefinition(ctx, repoID, string(base))
		require.NoError(t, err)
		assert.Equal(t, base, td.BaseType)
	}

	_, err := tm.GetTypeDefinition(ctx, repoID, "custom:photo")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidArgument)

	tm.Register(&lifecycle.TypeDefinition{ID: "custom:photo", BaseType: lifecycle.BaseTypeDocument, Fileable: true})
	td, err := tm.GetTypeDefinition(ctx, repoID, "custom:photo")
	require.NoError(t, err)
	assert.True(t, td.Fileable)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, lifecycle.PrincipalSystem, lifecycle.PrincipalFrom(ctx))
	assert.Equal(t, "alice", lifecycle.PrincipalFrom(lifecycle.WithPrincipal(ctx, "alice")))

	p := lifecycle.NewStaticPrincipals("", "GROUP_EVERYONE")
	assert.Equal(t, lifecycle.PrincipalAnonymous, p.Anonymous(repoID))
	assert.Equal(t, "GROUP_EVERYONE", p.Anyone(repoID))
}
