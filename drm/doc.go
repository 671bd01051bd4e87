// Package drm provides access to the DRM (Direct Rendering Manager)
// device files: opening a card, by index or by the name of the kernel
// driver behind it, querying driver version and capabilities, toggling
// client capabilities and decoding the events the kernel delivers on
// the device file descriptor (page flip and vblank completion).
//
// KMS (Kernel Mode Setting) objects are handled by the mode package.
package drm
