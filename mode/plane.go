package mode

import (
	"os"
	"unsafe"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/ioctl"
)

// Values of the plane "type" property. Planes other than overlays are
// only listed once the universal planes client capability is set.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

type (
	sysGetPlaneRes struct {
		planeIDPtr  uint64
		countPlanes uint32
		pad         uint32
	}

	sysGetPlane struct {
		planeID          uint32
		crtcID           uint32
		fbID             uint32
		possibleCrtcs    uint32
		gammaSize        uint32
		countFormatTypes uint32
		formatTypePtr    uint64
	}

	// Plane is a hardware scanout layer.
	Plane struct {
		ID       uint32
		CrtcID   uint32 // 0 when not bound
		BufferID uint32

		// Bit i is set when the plane can be bound to the i-th CRTC of
		// Resources.Crtcs.
		PossibleCrtcs uint32
		GammaSize     uint32

		Formats []Format
	}
)

var (
	// DRM_IOWR(0xB5, struct drm_mode_get_plane_res)
	IOCTLModeGetPlaneResources = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlaneRes{})), drm.IOCTLBase, 0xB5)

	// DRM_IOWR(0xB6, struct drm_mode_get_plane)
	IOCTLModeGetPlane = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlane{})), drm.IOCTLBase, 0xB6)
)

// GetPlaneResources returns the plane IDs of the device.
func GetPlaneResources(file *os.File) ([]uint32, error) {
	res := &sysGetPlaneRes{}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlaneResources),
		uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, err
	}
	if res.countPlanes == 0 {
		return nil, nil
	}

	planes := make([]uint32, res.countPlanes)
	res.planeIDPtr = uint64(uintptr(unsafe.Pointer(&planes[0])))
	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlaneResources),
		uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, err
	}
	return planes[:min(len(planes), int(res.countPlanes))], nil
}

func GetPlane(file *os.File, id uint32) (*Plane, error) {
	p := &sysGetPlane{planeID: id}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlane),
		uintptr(unsafe.Pointer(p)))
	if err != nil {
		return nil, err
	}

	var formats []Format
	if p.countFormatTypes > 0 {
		formats = make([]Format, p.countFormatTypes)
		p.formatTypePtr = uint64(uintptr(unsafe.Pointer(&formats[0])))
		err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlane),
			uintptr(unsafe.Pointer(p)))
		if err != nil {
			return nil, err
		}
		formats = formats[:min(len(formats), int(p.countFormatTypes))]
	}

	return &Plane{
		ID:            p.planeID,
		CrtcID:        p.crtcID,
		BufferID:      p.fbID,
		PossibleCrtcs: p.possibleCrtcs,
		GammaSize:     p.gammaSize,
		Formats:       formats,
	}, nil
}

// Supports reports whether f is in the plane's format list.
func (p *Plane) Supports(f Format) bool {
	for _, pf := range p.Formats {
		if pf == f {
			return true
		}
	}
	return false
}
