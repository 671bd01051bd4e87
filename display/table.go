package display

import "github.com/NeowayLabs/kmsflip/mode"

type (
	// ConnectorRef, EncoderRef, PipeRef and PlaneRef index the resolved
	// descriptors of a Table. They stay valid for the table's lifetime.
	ConnectorRef int
	EncoderRef   int
	PipeRef      int
	PlaneRef     int

	// Pipe is a CRTC together with its position in the device resource
	// list, which is the bit used by possible_crtcs masks.
	Pipe struct {
		ID    uint32
		Index int
		Crtc  *mode.Crtc // nil until read back by discovery
	}

	// Table is the arena of KMS objects resolved during discovery.
	// Components refer to objects by Ref, never by raw kernel data.
	Table struct {
		connectors []*mode.Connector
		encoders   []*mode.Encoder
		pipes      []Pipe
		planes     []*mode.Plane

		pipeByID map[uint32]PipeRef
	}
)

// NoRef marks an unresolved link.
const NoRef = -1

func newTable(res *mode.Resources) *Table {
	t := &Table{
		pipeByID: make(map[uint32]PipeRef, len(res.Crtcs)),
	}
	for i, id := range res.Crtcs {
		t.pipes = append(t.pipes, Pipe{ID: id, Index: i})
		t.pipeByID[id] = PipeRef(i)
	}
	return t
}

func (t *Table) addConnector(c *mode.Connector) ConnectorRef {
	t.connectors = append(t.connectors, c)
	return ConnectorRef(len(t.connectors) - 1)
}

func (t *Table) addEncoder(e *mode.Encoder) EncoderRef {
	t.encoders = append(t.encoders, e)
	return EncoderRef(len(t.encoders) - 1)
}

func (t *Table) addPlane(p *mode.Plane) PlaneRef {
	t.planes = append(t.planes, p)
	return PlaneRef(len(t.planes) - 1)
}

func (t *Table) Connector(ref ConnectorRef) *mode.Connector { return t.connectors[ref] }

func (t *Table) Encoder(ref EncoderRef) *mode.Encoder { return t.encoders[ref] }

func (t *Table) Pipe(ref PipeRef) *Pipe { return &t.pipes[ref] }

func (t *Table) Plane(ref PlaneRef) *mode.Plane { return t.planes[ref] }

// Pipes returns the number of pipes of the device.
func (t *Table) Pipes() int { return len(t.pipes) }

// PipeByID resolves a CRTC id to its pipe.
func (t *Table) PipeByID(id uint32) (PipeRef, bool) {
	ref, ok := t.pipeByID[id]
	return ref, ok
}
