package trap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserCxArgsAndRet(t *testing.T) {
	var tf TrapFrame
	tf.A[0] = 10
	tf.A[1] = 20
	tf.A[2] = 30

	cx := NewUserCx[int](&tf)
	args := cx.Args(3)
	assert.Equal(t, []uint64{10, 20, 30}, args)

	cx.Ret(42)
	assert.EqualValues(t, 42, tf.A0())
}

func TestUserCxArgsPanicsAboveSix(t *testing.T) {
	var tf TrapFrame
	cx := NewUserCx[int](&tf)
	assert.Panics(t, func() { cx.Args(7) })
}

func TestUserCxFrameExposesScause(t *testing.T) {
	var tf TrapFrame
	tf.Scause = CauseLoadPageFault
	cx := NewUserCx[int](&tf)
	assert.Equal(t, CauseLoadPageFault, cx.Frame().Scause)
}
