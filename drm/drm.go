package drm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/kmsflip/ioctl"
)

type (
	version struct {
		Major   int32
		Minor   int32
		Patch   int32
		namelen int64
		name    uintptr
		datelen int64
		date    uintptr
		desclen int64
		desc    uintptr
	}

	// Version of DRM driver
	Version struct {
		Major, Minor, Patch int32
		Name                string // Name of the driver (eg.: i915)
		Date                string
		Desc                string
	}
)

const (
	driPath = "/dev/dri"
)

// DefaultDrivers is the ordered list of kernel drivers tried by
// OpenDriver when no list is given.
var DefaultDrivers = []string{
	"omapdrm", "tilcdc", "i915", "radeon", "nouveau", "vmwgfx", "exynos",
	"amdgpu", "virtio_gpu", "vc4",
}

// ErrNoDevice is returned when no card answers for any of the
// requested drivers.
var ErrNoDevice = errors.New("no drm device found")

func Available() (Version, error) {
	f, err := OpenCard(0)
	if err != nil {
		// handle backward linux compat?
		// check /proc/dri/0 ?
		return Version{}, err
	}
	defer f.Close()
	return GetVersion(f)
}

func OpenCard(n int) (*os.File, error) {
	return open(fmt.Sprintf("%s/card%d", driPath, n))
}

func open(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
}

// OpenDriver opens the first card driven by one of drivers, trying the
// names in order. For every name all cards under /dev/dri are probed.
func OpenDriver(drivers []string) (*os.File, Version, error) {
	if len(drivers) == 0 {
		drivers = DefaultDrivers
	}
	cards, err := cardPaths()
	if err != nil {
		return nil, Version{}, err
	}

	for _, driver := range drivers {
		for _, path := range cards {
			file, err := open(path)
			if err != nil {
				continue
			}
			v, err := GetVersion(file)
			if err == nil && v.Name == driver {
				return file, v, nil
			}
			file.Close()
		}
	}

	return nil, Version{}, fmt.Errorf("%w (tried %s)", ErrNoDevice,
		strings.Join(drivers, ", "))
}

// cardPaths lists the primary nodes in card index order.
func cardPaths() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(driPath, "card*"))
	if err != nil {
		return nil, err
	}
	index := func(p string) int {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(p), "card"))
		if err != nil {
			return -1
		}
		return n
	}
	sort.Slice(paths, func(i, j int) bool {
		return index(paths[i]) < index(paths[j])
	})
	return paths, nil
}

func GetVersion(file *os.File) (Version, error) {
	var (
		name, date, desc []byte
	)

	version := &version{}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, err
	}

	if version.namelen > 0 {
		name = make([]byte, version.namelen+1)
		version.name = uintptr(unsafe.Pointer(&name[0]))
	}

	if version.datelen > 0 {
		date = make([]byte, version.datelen+1)
		version.date = uintptr(unsafe.Pointer(&date[0]))
	}
	if version.desclen > 0 {
		desc = make([]byte, version.desclen+1)
		version.desc = uintptr(unsafe.Pointer(&desc[0]))
	}

	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, err
	}

	// remove C null byte at end
	name = name[:version.namelen]
	date = date[:version.datelen]
	desc = desc[:version.desclen]

	nozero := func(r rune) bool { return r == 0 }

	return Version{
		Major: version.Major,
		Minor: version.Minor,
		Patch: version.Patch,
		Name:  string(bytes.TrimFunc(name, nozero)),
		Date:  string(bytes.TrimFunc(date, nozero)),
		Desc:  string(bytes.TrimFunc(desc, nozero)),
	}, nil
}
