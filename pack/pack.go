// Package pack implements the argument packer/unpacker: converting user
// values to and from the wire's Content representation, transparently
// spilling large array values into shared-memory slots. It is a direct
// port of the original daemon's content_to_any/args_to_anys
// (reccd/packet/unpacker.py) together with the packing half spec.md
// §4.4 describes but the original splits across content_inspector.py
// and the packet builder used by daemon_client.py.
package pack

import (
	"context"
	"fmt"

	"github.com/reccd/reccd/internal/rerrors"
	"github.com/reccd/reccd/rpcapi"
)

// Array is the value type a caller passes when they want array-aware
// packing (shared-memory spill eligibility, shape/dtype metadata carried
// to the peer). Values that don't implement Array are always encoded
// through the active Codec and never spill, regardless of size.
type Array interface {
	Shape() []int64
	Strides() []int64
	Dtype() string
	Bytes() []byte
}

// Response is the unpacked form of a PacketQ/PacketA: positional args
// and keyword kwargs as plain Go values (either codec-decoded or, for
// array Contents, a *RawArray reconstructed over the Content's bytes).
type Response struct {
	Args   []any
	Kwargs map[string]any
}

// RawArray is what an Unpacker reconstructs for any Content carrying
// array metadata: the caller is responsible for interpreting Bytes
// against Shape/Dtype/Strides (Go has no numpy.ndarray equivalent in the
// standard library, so this is the closest faithful analogue — the
// original's Unpacker.content_to_any builds a real numpy view over the
// same bytes).
type RawArray struct {
	Shape   []int64
	Strides []int64
	Dtype   string
	Data    []byte
}

func (a *RawArray) ArrayShape() []int64   { return a.Shape }
func (a *RawArray) ArrayStrides() []int64 { return a.Strides }
func (a *RawArray) ArrayDtype() string    { return a.Dtype }
func (a *RawArray) ArrayBytes() []byte    { return a.Data }

// Packed is a Packer.Pack result: the wire Contents plus the Slots
// rented to back them, scoped to one request. Callers must defer
// Packed.Release() (Release is a no-op if nothing was rented).
type Packed struct {
	Args   []*rpcapi.Content
	Kwargs map[string]*rpcapi.Content
	Slots  *Slots
}

// Release releases any shared-memory slots rented while packing.
func (p *Packed) Release() {
	if p.Slots != nil {
		p.Slots.Release()
	}
}

// Packer converts (args, kwargs) into wire Contents, spilling array
// values that exceed the negotiated thresholds into shared memory.
type Packer struct {
	Codec Codec
	Pool  SharedMemoryPool
	Neg   ShmNegotiation
}

// NewPacker builds a Packer. pool may be nil, meaning shared memory is
// never available regardless of neg (rule 1 of spec.md §4.4).
func NewPacker(codec Codec, pool SharedMemoryPool, neg ShmNegotiation) *Packer {
	return &Packer{Codec: codec, Pool: pool, Neg: neg}
}

func (p *Packer) shmAvailable() bool {
	return p.Pool != nil && p.Neg.IsSm
}

// exceedsThreshold reports whether an Array is large enough to spill,
// per spec.md rule 2: element count beyond MinSmSize OR raw byte length
// beyond MinSmByte.
func (p *Packer) exceedsThreshold(a Array) bool {
	elems := int64(1)
	for _, d := range a.Shape() {
		elems *= d
	}
	return elems > p.Neg.MinSmSize || int64(len(a.Bytes())) > p.Neg.MinSmByte
}

// Pack encodes args and kwargs into wire Contents. The returned Packed
// must have Release called on it once the caller is done with the
// request (success or failure) — see spec.md's "slot rental is scoped".
func (p *Packer) Pack(args []any, kwargs map[string]any) (*Packed, error) {
	const op = rerrors.Op("pack.Packer.Pack")

	slots, err := p.rentWorstCase(args, kwargs)
	if err != nil {
		return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "", err)
	}

	packed := &Packed{
		Kwargs: make(map[string]*rpcapi.Content, len(kwargs)),
		Slots:  slots,
	}

	next := 0
	nextSlot := func() *Slot {
		if slots == nil || next >= slots.Len() {
			return nil
		}
		s := slots.Get(next)
		next++
		return s
	}

	for _, v := range args {
		c, err := p.packOne(v, nextSlot)
		if err != nil {
			packed.Release()
			return nil, err
		}
		packed.Args = append(packed.Args, c)
	}
	for k, v := range kwargs {
		c, err := p.packOne(v, nextSlot)
		if err != nil {
			packed.Release()
			return nil, err
		}
		packed.Kwargs[k] = c
	}

	return packed, nil
}

// rentWorstCase requests one slot per array value that could possibly
// spill, every slot sized to the largest such array's byte length —
// "requests N slots sized for the worst case" per spec.md §4.4.
func (p *Packer) rentWorstCase(args []any, kwargs map[string]any) (*Slots, error) {
	if !p.shmAvailable() {
		return nil, nil
	}

	var sizes []int64
	collect := func(v any) {
		if a, ok := v.(Array); ok && p.exceedsThreshold(a) {
			sizes = append(sizes, int64(len(a.Bytes())))
		}
	}
	for _, v := range args {
		collect(v)
	}
	for _, v := range kwargs {
		collect(v)
	}
	if len(sizes) == 0 {
		return nil, nil
	}

	var maxSize int64
	for _, s := range sizes {
		if s > maxSize {
			maxSize = s
		}
	}
	return p.Pool.Rent(context.Background(), len(sizes), maxSize)
}

func (p *Packer) packOne(v any, nextSlot func() *Slot) (*rpcapi.Content, error) {
	if a, ok := v.(Array); ok {
		meta := &rpcapi.ArrayMeta{Shape: a.Shape(), Dtype: a.Dtype(), Strides: a.Strides()}

		if p.shmAvailable() && p.exceedsThreshold(a) {
			slot := nextSlot()
			if slot == nil {
				return nil, fmt.Errorf("pack: ran out of rented slots for array payload")
			}
			copy(slot.Bytes(), a.Bytes())
			return &rpcapi.Content{SmName: slot.Name, Size: int64(len(a.Bytes())), Array: meta}, nil
		}

		return &rpcapi.Content{Data: a.Bytes(), Size: int64(len(a.Bytes())), Array: meta}, nil
	}

	data, err := p.Codec.Encode(v, 0)
	if err != nil {
		return nil, err
	}
	return &rpcapi.Content{Data: data, Size: int64(len(data))}, nil
}

// Unpacker is the inverse of Packer: it turns wire Contents back into
// plain Go values, reading shared-memory-backed Contents from the slots
// map supplied at construction (the peer-visible, already-rented
// segments for this exchange).
type Unpacker struct {
	Codec Codec
	Slots map[string]*Slot // keyed by Content.SmName
}

// NewUnpacker builds an Unpacker. slots may be nil if no shared-memory
// Contents are expected.
func NewUnpacker(codec Codec, slots map[string]*Slot) *Unpacker {
	return &Unpacker{Codec: codec, Slots: slots}
}

// contentBytes resolves one Content's raw bytes, from shared memory if
// SmName is set, otherwise from the inline Data field.
func (u *Unpacker) contentBytes(c *rpcapi.Content) ([]byte, error) {
	const op = rerrors.Op("pack.Unpacker.contentBytes")

	if c.SmName == "" {
		return c.Data, nil
	}
	if len(u.Slots) == 0 {
		return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "",
			fmt.Errorf("content references shared memory %q but no slots were supplied", c.SmName))
	}
	slot, ok := u.Slots[c.SmName]
	if !ok {
		return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "",
			fmt.Errorf("shared-memory segment %q does not exist", c.SmName))
	}
	buf := slot.Bytes()
	if int64(len(buf)) < c.Size {
		return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "",
			fmt.Errorf("shared-memory segment %q shorter than declared size", c.SmName))
	}
	return buf[:c.Size], nil
}

// ContentToAny decodes one Content into a plain Go value.
func (u *Unpacker) ContentToAny(c *rpcapi.Content) (any, error) {
	data, err := u.contentBytes(c)
	if err != nil {
		return nil, err
	}

	if c.Array != nil {
		return &RawArray{Shape: c.Array.Shape, Strides: c.Array.Strides, Dtype: c.Array.Dtype, Data: data}, nil
	}

	var v any
	if err := u.Codec.Decode(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Unpack decodes args and kwargs into a Response. It also enforces
// spec.md §4.4's sm_names invariant: the wire's shared-memory name set
// must equal the union of names actually referenced by args/kwargs —
// an opened segment nothing references is a protocol violation, not a
// harmless extra.
func (u *Unpacker) Unpack(args []*rpcapi.Content, kwargs map[string]*rpcapi.Content) (*Response, error) {
	const op = rerrors.Op("pack.Unpacker.Unpack")

	resp := &Response{Kwargs: make(map[string]any, len(kwargs))}
	referenced := make(map[string]struct{}, len(u.Slots))

	for _, c := range args {
		v, err := u.ContentToAny(c)
		if err != nil {
			return nil, err
		}
		if c.SmName != "" {
			referenced[c.SmName] = struct{}{}
		}
		resp.Args = append(resp.Args, v)
	}
	for k, c := range kwargs {
		v, err := u.ContentToAny(c)
		if err != nil {
			return nil, err
		}
		if c.SmName != "" {
			referenced[c.SmName] = struct{}{}
		}
		resp.Kwargs[k] = v
	}

	if len(referenced) != len(u.Slots) {
		for name := range u.Slots {
			if _, ok := referenced[name]; !ok {
				return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "",
					fmt.Errorf("shared-memory segment %q was opened but never referenced", name))
			}
		}
	}

	return resp, nil
}
