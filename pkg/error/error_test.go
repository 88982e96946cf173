package error

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceKeepsCode(t *testing.T) {
	err := ErrDeadlock.Instance("Add", "LockTable").WithDetail("%d -> %d -> %d", 1, 2, 1)

	assert.True(t, errors.Is(err, ErrDeadlock))
	assert.False(t, errors.Is(err, ErrAlreadyWaiting))
	assert.Equal(t, "1 -> 2 -> 1", err.Detail)
	assert.Empty(t, ErrDeadlock.Detail, "sentinel must not be mutated")
	assert.Contains(t, err.Error(), "[DEADLOCK_DETECTED]")
	assert.Contains(t, err.Error(), "operation: Add, component: LockTable")
}

func TestWrapForeignError(t *testing.T) {
	cause := errors.Wrapf(os.ErrPermission, "open %s", "/tmp/x.xid")
	err := Wrap(cause, "IO", "Open", "Ledger")

	require.NotNil(t, err)
	assert.Equal(t, ErrCategorySystem, err.Category)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.NotEmpty(t, err.Stack)
}

func TestWrapExistingDBError(t *testing.T) {
	inner := ErrUnknownXID.Instance("", "")
	wrapped := fmt.Errorf("commit: %w", inner)

	err := Wrap(wrapped, "IGNORED", "Commit", "Ledger")
	assert.Same(t, inner, err)
	assert.Equal(t, "Commit", err.Operation)
	assert.Equal(t, "Ledger", err.Component)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "X", "Y", "Z"))
}

func TestCategoryHelpers(t *testing.T) {
	tests := []struct {
		err         error
		concurrency bool
		system      bool
	}{
		{ErrDeadlock.Instance("Add", "LockTable"), true, false},
		{ErrAbortedWhileWaiting.Instance("Wait", "LockTable"), true, false},
		{ErrLedgerClosed.Instance("Begin", "Ledger"), false, true},
		{ErrIllegalTransition.Instance("Commit", "Ledger"), false, false},
		{errors.New("plain"), false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.concurrency, IsConcurrency(tt.err), tt.err.Error())
		assert.Equal(t, tt.system, IsSystem(tt.err), tt.err.Error())
	}
}

func TestFormatStack(t *testing.T) {
	err := New(ErrCategoryData, "TEST", "test")
	if !strings.HasPrefix(err.FormatStack(), "Stack trace:") {
		t.Errorf("unexpected stack format: %q", err.FormatStack())
	}

	empty := &DBError{}
	if empty.FormatStack() != "" {
		t.Error("expected empty stack for zero DBError")
	}
}

func TestCategoryString(t *testing.T) {
	if ErrCategoryConcurrency.String() != "CONCURRENCY" {
		t.Errorf("got %s", ErrCategoryConcurrency.String())
	}
	if ErrorCategory(42).String() != "UNKNOWN" {
		t.Errorf("got %s", ErrorCategory(42).String())
	}
}
