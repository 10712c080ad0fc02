package cardreset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProtectorLiftAndRestore(t *testing.T) {
	m := &memConfigFlash{memFlash: newMemFlash(0)}
	m.sr = StatusRegister(0x80 | QuadEnable | DefaultProtectMask) // SRWD|QE|BP3-0
	m.cr = 0x55

	p := NewProtector(m, DefaultProtectMask, zap.NewNop())

	require.NoError(t, p.Lift())
	sr, _ := m.ReadStatus()
	assert.False(t, sr.BlockProtect0() || sr.BlockProtect1() || sr.BlockProtect2() || sr.BlockProtect3())
	assert.True(t, sr.QuadEnabled())
	assert.True(t, sr.StatusRegisterWriteDisable())
	assert.Equal(t, byte(0x55), m.cr)

	require.NoError(t, p.Restore())
	sr, _ = m.ReadStatus()
	assert.True(t, sr.BlockProtect0() && sr.BlockProtect3())
	assert.True(t, sr.QuadEnabled())

	// Every rewrite arms the latch first.
	assert.Equal(t, []string{"wren", "wrsr c0 55", "wren", "wrsr fc 55"}, m.ops)
}

func TestWaitIdle(t *testing.T) {
	m := newMemFlash(0)
	require.NoError(t, WaitIdle(m, time.Millisecond), "idle device returns immediately")

	m.stuck = true
	err := WaitIdle(m, 5*time.Millisecond)
	assert.Equal(t, Timeout, CodeOf(err))
}

type slowIdle struct {
	*memFlash
	busyReads int
}

func (s *slowIdle) ReadStatus() (StatusRegister, error) {
	if s.busyReads > 0 {
		s.busyReads--
		return srWIP, nil
	}
	return 0, nil
}

func TestWaitIdlePollsUntilClear(t *testing.T) {
	s := &slowIdle{memFlash: newMemFlash(0), busyReads: 3}
	assert.NoError(t, WaitIdle(s, time.Second))
	assert.Zero(t, s.busyReads)
}
