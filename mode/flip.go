package mode

import (
	"os"
	"unsafe"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/ioctl"
)

// Page flip flags.
const (
	PageFlipEvent = 0x01 // deliver a drm.EventFlipComplete when done
	PageFlipAsync = 0x02
)

type (
	sysFBCmd2 struct {
		fbID        uint32
		width       uint32
		height      uint32
		pixelFormat uint32
		flags       uint32
		handles     [4]uint32
		pitches     [4]uint32
		offsets     [4]uint32
		modifier    [4]uint64
	}

	sysCrtcPageFlip struct {
		crtcID   uint32
		fbID     uint32
		flags    uint32
		reserved uint32
		userData uint64
	}

	// FB2 describes a framebuffer to register with AddFB2. Unused planes
	// keep zero handles.
	FB2 struct {
		Width, Height uint32
		Format        Format
		Flags         uint32
		Handles       [4]uint32
		Pitches       [4]uint32
		Offsets       [4]uint32
		Modifiers     [4]uint64
	}
)

var (
	// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
	IOCTLModePageFlip = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCrtcPageFlip{})), drm.IOCTLBase, 0xB0)

	// DRM_IOWR(0xB8, struct drm_mode_fb_cmd2)
	IOCTLModeAddFB2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysFBCmd2{})), drm.IOCTLBase, 0xB8)
)

// AddFB2 registers a framebuffer with an explicit fourcc format and
// returns its id.
func AddFB2(file *os.File, fb *FB2) (uint32, error) {
	f := &sysFBCmd2{
		width:       fb.Width,
		height:      fb.Height,
		pixelFormat: uint32(fb.Format),
		flags:       fb.Flags,
		handles:     fb.Handles,
		pitches:     fb.Pitches,
		offsets:     fb.Offsets,
		modifier:    fb.Modifiers,
	}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeAddFB2),
		uintptr(unsafe.Pointer(f)))
	if err != nil {
		return 0, err
	}
	return f.fbID, nil
}

// PageFlip schedules bufferid to be scanned out by crtcid at the next
// vertical blank. With PageFlipEvent in flags, a completion event
// carrying userData is queued on the device file. The kernel refuses a
// new flip (EBUSY) while one is pending on the same CRTC.
func PageFlip(file *os.File, crtcid, bufferid, flags uint32, userData uint64) error {
	f := &sysCrtcPageFlip{
		crtcID:   crtcid,
		fbID:     bufferid,
		flags:    flags,
		userData: userData,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModePageFlip),
		uintptr(unsafe.Pointer(f)))
}
