package runner

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalManager_Lifecycle(t *testing.T) {
	sm := NewSignalManager(context.Background())
	defer sm.Stop()

	ctx := sm.Context()
	assert.NotNil(t, ctx)
	assert.NoError(t, ctx.Err())
	assert.False(t, sm.Interrupted())

	sm.Stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, sm.Interrupted())
}

func TestSignalManager_SIGTERM(t *testing.T) {
	sm := NewSignalManager(context.Background())
	defer sm.Stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Skip(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case <-sm.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel the context")
	}
}

func TestSignalManager_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sm := NewSignalManager(parent)
	defer sm.Stop()

	cancel()
	assert.True(t, sm.Interrupted())
}
