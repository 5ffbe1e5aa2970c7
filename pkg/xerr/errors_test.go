package xerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(PolicyViolation, KindPolicy, "fok not filled")
	wrapped := fmt.Errorf("place order 7: %w", base)

	assert.Equal(t, KindPolicy, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))

	ce, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, PolicyViolation, ce.Code)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestNewErrCode(t *testing.T) {
	err := NewErrCode(EngineBusy)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, "ErrCode:1006, Msg:engine busy", err.Error())
}
