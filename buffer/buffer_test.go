package buffer_test

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kmsflip/buffer"
	"github.com/NeowayLabs/kmsflip/internal/fakekms"
	"github.com/NeowayLabs/kmsflip/mode"
)

func TestNewBuffer(t *testing.T) {
	dev := fakekms.New()

	b, err := buffer.New(dev, 640, 480, mode.FormatXRGB8888)
	require.NoError(t, err)
	assert.Equal(t, uint32(640*4), b.Pitch)
	assert.Len(t, b.Data, 640*4*480)
	assert.False(t, b.Registered())
	assert.Equal(t, 1, dev.Dumbs())

	b16, err := buffer.New(dev, 640, 480, mode.FormatRGB565)
	require.NoError(t, err)
	assert.Equal(t, uint32(640*2), b16.Pitch)
}

func TestNewBufferUnknownFormat(t *testing.T) {
	dev := fakekms.New()

	_, err := buffer.New(dev, 640, 480, mode.Format(0))
	assert.Error(t, err)
	assert.Equal(t, 0, dev.Dumbs())
}

func TestFramebufferRegisteredOnce(t *testing.T) {
	dev := fakekms.New()
	b, err := buffer.New(dev, 320, 240, mode.FormatARGB8888)
	require.NoError(t, err)

	first, err := b.Framebuffer()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		fb, err := b.Framebuffer()
		require.NoError(t, err)
		assert.Same(t, first, fb)
	}
	assert.Equal(t, 1, dev.AddFB2Calls)

	reg := dev.FBs[first.ID]
	assert.Equal(t, uint32(320), reg.Width)
	assert.Equal(t, uint32(240), reg.Height)
	assert.Equal(t, mode.FormatARGB8888, reg.Format)
	assert.Equal(t, b.Handle, reg.Handles[0])
	assert.Equal(t, b.Pitch, reg.Pitches[0])
}

func TestFramebufferRetryAfterFailure(t *testing.T) {
	dev := fakekms.New()
	b, err := buffer.New(dev, 320, 240, mode.FormatXRGB8888)
	require.NoError(t, err)

	dev.FailAddFB2 = 1
	_, err = b.Framebuffer()
	require.Error(t, err)
	assert.False(t, b.Registered())

	fb, err := b.Framebuffer()
	require.NoError(t, err)
	assert.True(t, b.Registered())
	assert.Contains(t, dev.FBs, fb.ID)
	assert.Equal(t, 1, dev.AddFB2Calls)
}

func TestDestroyOnce(t *testing.T) {
	dev := fakekms.New()
	b, err := buffer.New(dev, 320, 240, mode.FormatXRGB8888)
	require.NoError(t, err)
	fb, err := b.Framebuffer()
	require.NoError(t, err)

	require.NoError(t, b.Destroy())
	require.NoError(t, b.Destroy())

	assert.Equal(t, []uint32{fb.ID}, dev.RmFBCalls)
	assert.Empty(t, dev.FBs)
	assert.Equal(t, 0, dev.Dumbs())
	assert.Nil(t, b.Data)

	_, err = b.Framebuffer()
	assert.ErrorIs(t, err, buffer.ErrDestroyed)
}

func TestDestroyUnregistered(t *testing.T) {
	dev := fakekms.New()
	b, err := buffer.New(dev, 320, 240, mode.FormatXRGB8888)
	require.NoError(t, err)

	require.NoError(t, b.Destroy())
	assert.Empty(t, dev.RmFBCalls)
	assert.Equal(t, 0, dev.Dumbs())
}

func TestNewBufferInvalidSize(t *testing.T) {
	dev := fakekms.New()

	for _, size := range [][2]uint32{{0, 480}, {640, 0}, {buffer.MaxSize + 1, 480}, {640, 1 << 20}} {
		_, err := buffer.New(dev, size[0], size[1], mode.FormatXRGB8888)
		assert.ErrorIs(t, err, buffer.ErrInvalidSize, "%dx%d", size[0], size[1])
	}
	assert.Equal(t, 0, dev.Dumbs())

	b, err := buffer.New(dev, buffer.MaxSize, 1, mode.FormatRGB565)
	require.NoError(t, err)
	assert.Equal(t, uint32(buffer.MaxSize), b.Width)
}

func TestNewBufferMapFailure(t *testing.T) {
	dev := fakekms.New()
	dev.FailMapDumb = true

	_, err := buffer.New(dev, 640, 480, mode.FormatXRGB8888)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to map dumb buffer")
	assert.Equal(t, 0, dev.Dumbs())
}

// lockedDevice serializes calls into a device that is not safe for
// concurrent use.
type lockedDevice struct {
	mu  sync.Mutex
	dev buffer.Device
}

func (d *lockedDevice) CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.CreateDumb(width, height, bpp)
}

func (d *lockedDevice) MapDumb(fb *mode.FB) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.MapDumb(fb)
}

func (d *lockedDevice) UnmapDumb(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.UnmapDumb(data)
}

func (d *lockedDevice) DestroyDumb(handle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.DestroyDumb(handle)
}

func (d *lockedDevice) AddFB2(fb *mode.FB2) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.AddFB2(fb)
}

func (d *lockedDevice) RmFB(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.RmFB(id)
}

// A registration racing with Destroy must never outlive the buffer.
func TestFramebufferConcurrentDestroy(t *testing.T) {
	for i := 0; i < 50; i++ {
		dev := fakekms.New()
		b, err := buffer.New(&lockedDevice{dev: dev}, 64, 64, mode.FormatXRGB8888)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := b.Framebuffer(); err != nil {
					assert.ErrorIs(t, err, buffer.ErrDestroyed)
				}
				b.Registered()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Destroy())
		}()
		wg.Wait()

		assert.Empty(t, dev.FBs)
		assert.Equal(t, 0, dev.Dumbs())
		assert.LessOrEqual(t, dev.AddFB2Calls, 1)
		assert.Len(t, dev.RmFBCalls, dev.AddFB2Calls)
		assert.False(t, b.Registered())
	}
}

func TestClear(t *testing.T) {
	dev := fakekms.New()
	b, err := buffer.New(dev, 4, 4, mode.FormatXRGB8888)
	require.NoError(t, err)

	for i := range b.Data {
		b.Data[i] = 0xaa
	}
	b.Clear()
	assert.Equal(t, make([]byte, len(b.Data)), b.Data)
}

func TestSurfacePool(t *testing.T) {
	dev := fakekms.New()
	log, _ := test.NewNullLogger()

	s, err := buffer.NewSurface(dev, 800, 600, mode.FormatXRGB8888, 1, log)
	require.NoError(t, err)
	require.Len(t, s.Buffers(), buffer.MinBuffers)
	assert.Equal(t, 2, s.Free())

	a, err := s.Acquire()
	require.NoError(t, err)
	b, err := s.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = s.Acquire()
	assert.ErrorIs(t, err, buffer.ErrNoFreeBuffer)

	s.Release(a)
	assert.Equal(t, 1, s.Free())
	again, err := s.Acquire()
	require.NoError(t, err)
	assert.Same(t, a, again)

	// foreign buffers are ignored
	other, err := buffer.New(dev, 800, 600, mode.FormatXRGB8888)
	require.NoError(t, err)
	s.Release(other)
	assert.Equal(t, 0, s.Free())
}

func TestSurfaceClose(t *testing.T) {
	dev := fakekms.New()
	log, _ := test.NewNullLogger()

	s, err := buffer.NewSurface(dev, 800, 600, mode.FormatRGB565, 3, log)
	require.NoError(t, err)
	for _, b := range s.Buffers() {
		_, err := b.Framebuffer()
		require.NoError(t, err)
	}
	require.Equal(t, 3, dev.Dumbs())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, dev.Dumbs())
	assert.Empty(t, dev.FBs)
	assert.Len(t, dev.RmFBCalls, 3)

	// buffers destroy themselves once
	require.NoError(t, s.Close())
	assert.Len(t, dev.RmFBCalls, 3)
}
