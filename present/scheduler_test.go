package present_test

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/internal/fakekms"
	"github.com/NeowayLabs/kmsflip/mode"
	"github.com/NeowayLabs/kmsflip/present"
)

func newScheduler(t *testing.T) (*present.Scheduler, *fakekms.Device, *buffer.Buffer, *buffer.Buffer) {
	t.Helper()
	log, _ := test.NewNullLogger()
	dev := fakekms.Simple(640, 480, mode.FormatXRGB8888)

	a, err := buffer.New(dev, 640, 480, mode.FormatXRGB8888)
	require.NoError(t, err)
	b, err := buffer.New(dev, 640, 480, mode.FormatXRGB8888)
	require.NoError(t, err)
	return present.NewScheduler(dev, log), dev, a, b
}

func TestSchedulerRefusesSecondFlip(t *testing.T) {
	s, dev, a, b := newScheduler(t)

	require.NoError(t, s.Submit(0, 31, a))
	assert.True(t, s.IsPending(0))

	err := s.Submit(0, 31, b)
	assert.ErrorIs(t, err, present.ErrFlipPending)
	assert.Len(t, dev.Flips, 1, "second flip reached the device")
	assert.Equal(t, 1, s.Pending())

	done, err := s.Wait(present.DefaultFlipTimeout)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Same(t, a, done[0].Buffer)
	assert.Equal(t, uint32(31), done[0].CrtcID)
	assert.Equal(t, uint64(0), done[0].Token)
	assert.NotZero(t, done[0].Sequence)

	// accepted again once the completion was consumed
	require.NoError(t, s.Submit(0, 31, b))
	assert.Len(t, dev.Flips, 2)
}

func TestSchedulerSubmitRegisters(t *testing.T) {
	s, dev, a, _ := newScheduler(t)

	require.NoError(t, s.Submit(0, 31, a))
	assert.True(t, a.Registered())
	fb, err := a.Framebuffer()
	require.NoError(t, err)
	assert.Equal(t, fb.ID, dev.Flips[0].FBID)
	assert.Equal(t, 1, dev.AddFB2Calls)
}

func TestSchedulerSubmitFailure(t *testing.T) {
	s, dev, a, _ := newScheduler(t)

	require.Error(t, s.Submit(0, 99, a))
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, dev.Flips)
}

func TestSchedulerRegistrationFailure(t *testing.T) {
	s, dev, a, _ := newScheduler(t)
	dev.FailAddFB2 = 1

	require.Error(t, s.Submit(0, 31, a))
	assert.False(t, a.Registered())
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, dev.Flips)
}

func TestSchedulerWaitNothingPending(t *testing.T) {
	s, dev, _, _ := newScheduler(t)

	done, err := s.Wait(present.DefaultFlipTimeout)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.Equal(t, 0, dev.Waits)
}

func TestSchedulerTimeout(t *testing.T) {
	s, dev, a, _ := newScheduler(t)
	dev.HoldEvents = true

	require.NoError(t, s.Submit(0, 31, a))
	_, err := s.Wait(present.DefaultFlipTimeout)
	assert.ErrorIs(t, err, present.ErrFlipTimeout)
	assert.True(t, s.IsPending(0))
}
