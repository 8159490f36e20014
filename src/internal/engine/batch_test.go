package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/repo-radar/radar-service/src/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func createTestBatch(t *testing.T, repoID int64, snapshot []string) (*BatchCoordinator, *MockService) {
	mockSvc := new(MockService)
	mockSvc.On("RadarsContaining", mock.Anything, repoID).Return(snapshot, nil).Once()

	b := NewBatchCoordinator(mockSvc, zap.NewNop())
	assert.NoError(t, b.Open(context.Background(), repoID))
	return b, mockSvc
}

func TestBatch_OpenSnapshotsServerState(t *testing.T) {
	b, _ := createTestBatch(t, 42, []string{"r1", "r2"})

	assert.True(t, b.IsChecked("r1"))
	assert.True(t, b.IsChecked("r2"))
	assert.False(t, b.IsChecked("r3"))
}

func TestBatch_ToggleRoundTripIsNoOp(t *testing.T) {
	b, mockSvc := createTestBatch(t, 42, []string{"r1"})

	// Off and back on for a member, on and back off for a non-member.
	b.Toggle("r1")
	b.Toggle("r1")
	b.Toggle("r2")
	b.Toggle("r2")

	assert.True(t, b.IsChecked("r1"))
	assert.False(t, b.IsChecked("r2"))
	assert.Empty(t, b.ActualAdds())
	assert.Empty(t, b.ActualRemoves())

	assert.NoError(t, b.Commit(context.Background()))
	mockSvc.AssertNotCalled(t, "AddMembership")
	mockSvc.AssertNotCalled(t, "RemoveMembership")
}

func TestBatch_PendingSetsStayDisjoint(t *testing.T) {
	b, _ := createTestBatch(t, 42, []string{"r1"})

	b.Toggle("r1")
	b.Toggle("r2")
	p := b.Pending()
	assert.Contains(t, p.ToRemove, "r1")
	assert.Contains(t, p.ToAdd, "r2")
	assert.NotContains(t, p.ToAdd, "r1")
	assert.NotContains(t, p.ToRemove, "r2")
}

func TestBatch_CommitRemovalsBeforeAdditions(t *testing.T) {
	b, mockSvc := createTestBatch(t, 42, []string{"rB"})

	var mu sync.Mutex
	var order []string
	record := func(op string) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			order = append(order, op)
			mu.Unlock()
		}
	}

	mockSvc.On("RemoveMembership", mock.Anything, "rB", int64(42)).Return(nil).Run(record("remove:rB"))
	mockSvc.On("AddMembership", mock.Anything, "rA", int64(42)).Return(model.Membership{}, nil).Run(record("add:rA"))

	b.Toggle("rA") // check A
	b.Toggle("rB") // uncheck B

	assert.NoError(t, b.Commit(context.Background()))

	assert.Equal(t, []string{"remove:rB", "add:rA"}, order, "removals are issued before additions")
	assert.True(t, b.Pending().Empty(), "both pending sets drained after full success")
	assert.True(t, b.IsChecked("rA"))
	assert.False(t, b.IsChecked("rB"))
}

func TestBatch_PartialFailureKeepsFailedOpPending(t *testing.T) {
	b, mockSvc := createTestBatch(t, 42, []string{"rB"})

	addErr := errors.New("radar is full")
	mockSvc.On("RemoveMembership", mock.Anything, "rB", int64(42)).Return(nil)
	mockSvc.On("AddMembership", mock.Anything, "rA", int64(42)).Return(model.Membership{}, addErr)

	b.Toggle("rA")
	b.Toggle("rB")

	err := b.Commit(context.Background())
	assert.ErrorIs(t, err, addErr, "the failing add's error is surfaced")

	p := b.Pending()
	assert.NotContains(t, p.ToRemove, "rB", "succeeded remove cleared")
	assert.Contains(t, p.ToAdd, "rA", "failed add stays pending")
	assert.False(t, b.IsChecked("rB"), "successful remove folded into the snapshot")
}

func TestBatch_RetryAfterPartialFailure(t *testing.T) {
	b, mockSvc := createTestBatch(t, 42, nil)

	mockSvc.On("AddMembership", mock.Anything, "rA", int64(42)).
		Return(model.Membership{}, errors.New("transient")).Once()
	mockSvc.On("AddMembership", mock.Anything, "rA", int64(42)).
		Return(model.Membership{}, nil).Once()

	b.Toggle("rA")

	assert.Error(t, b.Commit(context.Background()))
	assert.NoError(t, b.Commit(context.Background()), "still-pending op is retried")
	assert.True(t, b.Pending().Empty())
	assert.True(t, b.IsChecked("rA"))
}

func TestBatch_DiscardDropsPendingOnly(t *testing.T) {
	b, mockSvc := createTestBatch(t, 42, []string{"r1"})

	b.Toggle("r1")
	b.Toggle("r2")
	b.Discard()

	assert.True(t, b.IsChecked("r1"), "back to snapshot state")
	assert.False(t, b.IsChecked("r2"))
	assert.NoError(t, b.Commit(context.Background()))
	mockSvc.AssertNotCalled(t, "AddMembership")
	mockSvc.AssertNotCalled(t, "RemoveMembership")
}

func TestBatch_ReopenClearsStagedChanges(t *testing.T) {
	mockSvc := new(MockService)
	mockSvc.On("RadarsContaining", mock.Anything, int64(42)).Return([]string{}, nil).Once()
	mockSvc.On("RadarsContaining", mock.Anything, int64(43)).Return([]string{"r1"}, nil).Once()

	b := NewBatchCoordinator(mockSvc, zap.NewNop())
	assert.NoError(t, b.Open(context.Background(), 42))
	b.Toggle("r9")

	assert.NoError(t, b.Open(context.Background(), 43))
	assert.True(t, b.Pending().Empty())
	assert.True(t, b.IsChecked("r1"))
	assert.False(t, b.IsChecked("r9"))
}

func TestBatch_DisabledReasonCountsStagedChanges(t *testing.T) {
	b, _ := createTestBatch(t, 42, nil)

	radars := []model.RadarWithCount{testRadar("r1", 24)}
	assert.Empty(t, b.CheckDisabledReason(radars[0], radars))

	b.Toggle("r1")
	assert.NotEmpty(t, b.CheckDisabledReason(radars[0], radars), "staged add fills the last slot")
}
