//go:build unix

package sphere

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitfsorg/libnoosphere-go/keys"
	"github.com/bitfsorg/libnoosphere-go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_WaitsForLockFile(t *testing.T) {
	env := newEnv(t, 0)
	ctx := context.Background()
	identity, _ := env.createSphere(t, "bob")
	h := env.open(t, identity)
	genesis := h.Version()
	require.NoError(t, h.Write(ctx, "note", "text/plain", []byte("queued")))

	held, err := storage.TryLock(filepath.Join(env.lockDir, strings.TrimPrefix(identity, keys.DIDKeyPrefix)+".lock"))
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = h.Save(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, h.Version().Equals(genesis))
	assert.Equal(t, "queued", readString(t, h, "note"))

	// A save started while the lock is held goes through once it is released.
	done := make(chan error, 1)
	go func() {
		_, err := h.Save(ctx)
		done <- err
	}()
	time.Sleep(3 * lockPoll)
	held.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("save did not acquire the released lock")
	}
	assert.False(t, h.Version().Equals(genesis))
	assert.Equal(t, "queued", readString(t, env.open(t, identity), "note"))
}
