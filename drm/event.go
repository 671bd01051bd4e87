package drm

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Event types delivered on the device file.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCrtcSequence = 0x03
)

const (
	eventHeaderLen = 8  // struct drm_event
	vblankEventLen = 32 // struct drm_event_vblank

	// Enough room for a few events per read, like libdrm's drmHandleEvent.
	eventBufferLen = 1024
)

type (
	// Event is a decoded struct drm_event_vblank, used by both vblank and
	// page flip completion notifications.
	Event struct {
		Type     uint32
		UserData uint64
		Sequence uint32 // frame counter of the CRTC
		Sec      uint32
		Usec     uint32
		CrtcID   uint32
	}

	// EventContext holds the callbacks invoked by HandleEvent. Nil
	// handlers drop the corresponding events.
	EventContext struct {
		VBlankHandler   func(Event)
		PageFlipHandler func(Event)
	}
)

// Timestamp returns the event time as an offset of the kernel clock
// used by the driver (monotonic when CapTimestampMonotonic is set).
func (e Event) Timestamp() time.Duration {
	return time.Duration(e.Sec)*time.Second + time.Duration(e.Usec)*time.Microsecond
}

// ParseEvents decodes every complete event in buf. Unknown event types
// are skipped using their length field.
func ParseEvents(buf []byte) ([]Event, error) {
	var events []Event

	for len(buf) >= eventHeaderLen {
		typ := binary.NativeEndian.Uint32(buf[0:])
		length := binary.NativeEndian.Uint32(buf[4:])
		if length < eventHeaderLen || int(length) > len(buf) {
			return events, fmt.Errorf("malformed drm event: type %d, length %d", typ, length)
		}

		switch typ {
		case EventVBlank, EventFlipComplete:
			if length < vblankEventLen {
				return events, fmt.Errorf("short drm event: type %d, length %d", typ, length)
			}
			events = append(events, Event{
				Type:     typ,
				UserData: binary.NativeEndian.Uint64(buf[8:]),
				Sec:      binary.NativeEndian.Uint32(buf[16:]),
				Usec:     binary.NativeEndian.Uint32(buf[20:]),
				Sequence: binary.NativeEndian.Uint32(buf[24:]),
				CrtcID:   binary.NativeEndian.Uint32(buf[28:]),
			})
		}

		buf = buf[length:]
	}

	return events, nil
}

// HandleEvent reads one batch of events from r (the device file) and
// dispatches them to ctx. It blocks in read when nothing is pending,
// so callers normally poll the descriptor first.
func HandleEvent(r io.Reader, ctx *EventContext) error {
	buf := make([]byte, eventBufferLen)
	n, err := r.Read(buf)
	if err != nil {
		return err
	}
	if n < eventHeaderLen {
		return nil
	}

	events, err := ParseEvents(buf[:n])
	for _, ev := range events {
		switch ev.Type {
		case EventVBlank:
			if ctx.VBlankHandler != nil {
				ctx.VBlankHandler(ev)
			}
		case EventFlipComplete:
			if ctx.PageFlipHandler != nil {
				ctx.PageFlipHandler(ev)
			}
		}
	}
	return err
}
