package mode

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// The ioctl argument structs must match the kernel uapi layout.
func TestSysStructSizes(t *testing.T) {
	for name, tc := range map[string]struct {
		got, want uintptr
	}{
		"drm_mode_modeinfo":           {unsafe.Sizeof(Info{}), 68},
		"drm_mode_card_res":           {unsafe.Sizeof(sysResources{}), 64},
		"drm_mode_get_connector":      {unsafe.Sizeof(sysGetConnector{}), 80},
		"drm_mode_get_encoder":        {unsafe.Sizeof(sysGetEncoder{}), 20},
		"drm_mode_crtc":               {unsafe.Sizeof(sysCrtc{}), 104},
		"drm_mode_get_plane_res":      {unsafe.Sizeof(sysGetPlaneRes{}), 16},
		"drm_mode_get_plane":          {unsafe.Sizeof(sysGetPlane{}), 32},
		"drm_mode_obj_get_properties": {unsafe.Sizeof(sysObjGetProperties{}), 32},
		"drm_mode_get_property":       {unsafe.Sizeof(sysGetProperty{}), 64},
		"drm_mode_property_enum":      {unsafe.Sizeof(sysPropertyEnum{}), 40},
		"drm_mode_fb_cmd2":            {unsafe.Sizeof(sysFBCmd2{}), 104},
		"drm_mode_crtc_page_flip":     {unsafe.Sizeof(sysCrtcPageFlip{}), 24},
	} {
		assert.Equal(t, tc.want, tc.got, name)
	}
}

func TestIOCTLCodes(t *testing.T) {
	assert.Equal(t, uint32(0xc06864a2), IOCTLModeSetCrtc)
	assert.Equal(t, uint32(0xc01864b0), IOCTLModePageFlip)
	assert.Equal(t, uint32(0xc06864b8), IOCTLModeAddFB2)
	assert.Equal(t, uint32(0xc02064b6), IOCTLModeGetPlane)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, Format(0x34325258), FormatXRGB8888)
	assert.Equal(t, Format(0x34325241), FormatARGB8888)
	assert.Equal(t, Format(0x36314752), FormatRGB565)
	assert.Equal(t, Fourcc('R', 'G', '1', '6'), FormatRGB565)

	assert.Equal(t, "XR24", FormatXRGB8888.String())
	assert.Equal(t, "0x00000001", Format(1).String())

	assert.Equal(t, uint32(32), FormatARGB8888.BPP())
	assert.Equal(t, uint32(16), FormatRGB565.BPP())
	assert.Equal(t, uint32(0), Format(1).BPP())
	assert.Equal(t, uint32(24), FormatXRGB8888.Depth())
}

func TestInfo(t *testing.T) {
	info := Info{Hdisplay: 1920, Vdisplay: 1080}
	copy(info.Name[:], "1920x1080")

	assert.Equal(t, "1920x1080", info.String())
	assert.Equal(t, uint32(1920*1080), info.Area())
}

func TestConnectorName(t *testing.T) {
	c := &Connector{Type: ConnectorHDMIA, TypeID: 1}
	assert.Equal(t, "HDMI-A-1", c.Name())

	c = &Connector{Type: 99, TypeID: 2}
	assert.Equal(t, "Type99-2", c.Name())
}

func TestPlaneSupports(t *testing.T) {
	p := &Plane{Formats: []Format{FormatARGB8888, FormatRGB565}}
	assert.True(t, p.Supports(FormatRGB565))
	assert.False(t, p.Supports(FormatXRGB8888))
}

func TestCstring(t *testing.T) {
	var name [PropNameLen]byte
	copy(name[:], "type")
	assert.Equal(t, "type", cstring(name[:]))
	assert.Equal(t, "abc", cstring([]byte("abc")))
}
