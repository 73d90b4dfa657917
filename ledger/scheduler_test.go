package ledger_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/pos/store"
)

type countingRecomputer struct {
	calls atomic.Int32
	err   error
}

func (c *countingRecomputer) RecomputeAll(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestBalanceScheduler_RepairsDriftOnStart(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)
	acc, err := svc.CreateAccount(ctx, ledger.AccountInput{CustomerName: "Cliente G"})
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, ledger.MovementInput{AccountID: acc.ID, Type: pos.MovementCharge, Amount: dec("40")})
	require.NoError(t, err)

	// GIVEN: a drifted cache
	require.NoError(t, mem.SetAccountBalance(ctx, acc.ID, dec("1")))

	// WHEN: the scheduler starts with a long interval
	sched := ledger.NewBalanceScheduler(svc, time.Hour)
	sched.Start(ctx)
	t.Cleanup(sched.Stop)

	// THEN: the first pass runs immediately
	require.Eventually(t, func() bool { return sched.Runs() >= 1 }, time.Second, 5*time.Millisecond)
	stored, err := mem.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(stored.Balance))
}

func TestBalanceScheduler_KeepsTickingAfterErrors(t *testing.T) {
	target := &countingRecomputer{err: errors.New("database is locked")}
	sched := ledger.NewBalanceScheduler(target, 10*time.Millisecond)

	sched.Start(context.Background())
	sched.Start(context.Background()) // no second loop

	require.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	sched.Stop()

	after := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, target.calls.Load(), "no passes after Stop")
	sched.Stop() // idempotent
}

func TestBalanceScheduler_DefaultInterval(t *testing.T) {
	target := &countingRecomputer{}
	sched := ledger.NewBalanceScheduler(target, 0)
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool { return sched.Runs() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load())
}
