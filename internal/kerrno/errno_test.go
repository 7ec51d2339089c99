package kerrno

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoError(t *testing.T) {
	assert.Equal(t, "bad address", EFAULT.Error())
	assert.Equal(t, "errno 999", Errno(999).Error())
}

func TestNegate(t *testing.T) {
	assert.Equal(t, int64(-14), EFAULT.Negate())
}

func TestFromError(t *testing.T) {
	assert.Equal(t, Errno(0), FromError(nil))
	assert.Equal(t, ENOENT, FromError(ENOENT))
	assert.Equal(t, EIO, FromError(errors.New("some opaque failure")))

	wrapped := errors.Join(errors.New("context"), EBUSY)
	assert.Equal(t, EBUSY, FromError(wrapped))
}
