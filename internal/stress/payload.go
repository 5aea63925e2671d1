package stress

import "sync/atomic"

// Payload is the value shared by every worker. It counts the reads made through
// handles and how many times it was destroyed, which must end up being exactly once.
type Payload struct {
	ID        string
	Data      []byte
	reads     atomic.Int64
	destroyed atomic.Int32
}

func NewPayload(id string, size int) *Payload {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &Payload{ID: id, Data: data}
}

// Touch reads the payload data and records the access.
func (p *Payload) Touch() byte {
	p.reads.Add(1)
	if len(p.Data) == 0 {
		return 0
	}
	return p.Data[len(p.Data)-1]
}

func (p *Payload) Destroy() {
	p.destroyed.Add(1)
	p.Data = nil
}

func (p *Payload) Reads() int64     { return p.reads.Load() }
func (p *Payload) Destroyed() int32 { return p.destroyed.Load() }
