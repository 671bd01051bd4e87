package mode

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/NeowayLabs/kmsflip/drm"
	"github.com/NeowayLabs/kmsflip/ioctl"
)

// KMS object types, used to query object properties.
const (
	ObjectCrtc      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectEncoder   = 0xe0e0e0e0
	ObjectMode      = 0xdededede
	ObjectProperty  = 0xb0b0b0b0
	ObjectFB        = 0xfbfbfbfb
	ObjectBlob      = 0xbbbbbbbb
	ObjectPlane     = 0xeeeeeeee
	ObjectAny       = 0
)

// Property flags.
const (
	PropPending   = 1 << 0
	PropRange     = 1 << 1
	PropImmutable = 1 << 2
	PropEnum      = 1 << 3
	PropBlob      = 1 << 4
	PropBitmask   = 1 << 5
)

type (
	sysObjGetProperties struct {
		propsPtr      uint64
		propValuesPtr uint64
		countProps    uint32
		objID         uint32
		objType       uint32
		pad           uint32
	}

	sysGetProperty struct {
		valuesPtr      uint64
		enumBlobPtr    uint64
		propID         uint32
		flags          uint32
		name           [PropNameLen]byte
		countValues    uint32
		countEnumBlobs uint32
	}

	sysPropertyEnum struct {
		value uint64
		name  [PropNameLen]byte
	}

	// ObjectProperties is the attribute bag of a KMS object: property
	// IDs and their current values, index aligned.
	ObjectProperties struct {
		ObjectID   uint32
		ObjectType uint32
		Props      []uint32
		Values     []uint64
	}

	PropertyEnum struct {
		Value uint64
		Name  string
	}

	// Property is the description of a property ID.
	Property struct {
		ID     uint32
		Flags  uint32
		Name   string
		Values []uint64
		Enums  []PropertyEnum
	}
)

var (
	// DRM_IOWR(0xAA, struct drm_mode_get_property)
	IOCTLModeGetProperty = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetProperty{})), drm.IOCTLBase, 0xAA)

	// DRM_IOWR(0xB9, struct drm_mode_obj_get_properties)
	IOCTLModeObjGetProperties = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysObjGetProperties{})), drm.IOCTLBase, 0xB9)
)

func GetObjectProperties(file *os.File, objID, objType uint32) (*ObjectProperties, error) {
	req := &sysObjGetProperties{objID: objID, objType: objType}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeObjGetProperties),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, err
	}

	var (
		props  []uint32
		values []uint64
	)
	if req.countProps > 0 {
		props = make([]uint32, req.countProps)
		values = make([]uint64, req.countProps)
		req.propsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		req.propValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
		err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeObjGetProperties),
			uintptr(unsafe.Pointer(req)))
		if err != nil {
			return nil, err
		}
		n := min(len(props), int(req.countProps))
		props, values = props[:n], values[:n]
	}

	return &ObjectProperties{
		ObjectID:   objID,
		ObjectType: objType,
		Props:      props,
		Values:     values,
	}, nil
}

func GetProperty(file *os.File, id uint32) (*Property, error) {
	req := &sysGetProperty{propID: id}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetProperty),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, err
	}

	var (
		values []uint64
		enums  []sysPropertyEnum
	)
	if req.countValues > 0 {
		values = make([]uint64, req.countValues)
		req.valuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}
	// blob properties report blob ids through the same pointer, not wanted here
	if req.flags&(PropEnum|PropBitmask) != 0 && req.countEnumBlobs > 0 {
		enums = make([]sysPropertyEnum, req.countEnumBlobs)
		req.enumBlobPtr = uint64(uintptr(unsafe.Pointer(&enums[0])))
	} else {
		req.countEnumBlobs = 0
	}

	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetProperty),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, err
	}

	prop := &Property{
		ID:     req.propID,
		Flags:  req.flags,
		Name:   cstring(req.name[:]),
		Values: values[:min(len(values), int(req.countValues))],
	}
	for _, e := range enums[:min(len(enums), int(req.countEnumBlobs))] {
		prop.Enums = append(prop.Enums, PropertyEnum{
			Value: e.value,
			Name:  cstring(e.name[:]),
		})
	}
	return prop, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
