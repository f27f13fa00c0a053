package pack

import (
	"context"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sync/errgroup"

	"github.com/reccd/reccd/internal/rerrors"
)

// ShmNegotiation is the shared-memory policy discovered at Register
// time: a client never attempts shared memory before Register succeeds,
// and minSmSize/minSmByte only ever grow across a session.
type ShmNegotiation struct {
	MinSmSize int64
	MinSmByte int64
	IsSm      bool
}

// Slot is one shared-memory segment, either rented (owns deletion) or
// opened by name on the non-renting side of a pairing (does not).
type Slot struct {
	Name       string
	data       mmap.MMap
	file       *os.File // set when this side rented the segment; owns deletion.
	openedFile *os.File // set when this side only opened an existing segment.
}

// Bytes returns the slot's backing memory.
func (s *Slot) Bytes() []byte { return s.data }

// Slots is the scoped handle a Packer holds for the duration of one
// request: every slot rented for that request is released together,
// always via a deferred Release() at the call site, matching spec.md's
// "slot rental is scoped" rule and the original's SharedMemory lifetime.
type Slots struct {
	items []*Slot
}

// Get returns the i'th rented slot.
func (s *Slots) Get(i int) *Slot { return s.items[i] }

// Add appends an already-constructed Slot (e.g. from Open) to s. The
// zero value of Slots is ready to accumulate slots this way.
func (s *Slots) Add(slot *Slot) { s.items = append(s.items, slot) }

// Len reports how many slots were rented.
func (s *Slots) Len() int { return len(s.items) }

// ByName indexes the rented slots by name, for an Unpacker on the same
// side of the pairing that rented them (a real cross-process peer would
// instead open each named segment itself).
func (s *Slots) ByName() map[string]*Slot {
	out := make(map[string]*Slot, len(s.items))
	for _, slot := range s.items {
		out[slot.Name] = slot
	}
	return out
}

// Release unmaps and removes every segment in s. Safe to call multiple
// times; later calls are no-ops.
func (s *Slots) Release() {
	for _, slot := range s.items {
		if slot.data != nil {
			_ = slot.data.Unmap()
			slot.data = nil
		}
		if slot.file != nil {
			name := slot.file.Name()
			_ = slot.file.Close()
			_ = os.Remove(name)
			slot.file = nil
		}
		if slot.openedFile != nil {
			_ = slot.openedFile.Close()
			slot.openedFile = nil
		}
	}
	s.items = nil
}

// SharedMemoryPool rents named, size-bounded segments, validates that a
// peer can actually read back what was written to one (the Register
// handshake's shm-test), and opens segments rented by a peer so they can
// be read on this side of the pairing.
type SharedMemoryPool interface {
	Rent(ctx context.Context, count int, bytes int64) (*Slots, error)
	Validate(name string, expectedBytes int64) (bool, error)
	Open(name string) (*Slot, error)
}

// MmapPool is the default SharedMemoryPool, backed by anonymous-ish
// temp files under the pool's directory (os.TempDir by default) and
// mapped with edsrzf/mmap-go. Each
// rented slot is its own file so peers can open it by name.
type MmapPool struct {
	dir string
}

// NewMmapPool builds a pool that creates segments under dir (os.TempDir
// if dir is empty).
func NewMmapPool(dir string) *MmapPool {
	if dir == "" {
		dir = os.TempDir()
	}
	return &MmapPool{dir: dir}
}

// Rent allocates count segments of bytes length concurrently, using
// errgroup so one request's worst-case slot set is rented in parallel
// rather than serially.
func (p *MmapPool) Rent(ctx context.Context, count int, bytes int64) (*Slots, error) {
	const op = rerrors.Op("pack.MmapPool.Rent")

	slots := make([]*Slot, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			slot, err := p.rentOne(bytes)
			if err != nil {
				return err
			}
			slots[i] = slot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range slots {
			if s != nil {
				(&Slots{items: []*Slot{s}}).Release()
			}
		}
		return nil, rerrors.Callback(op, rerrors.KindShmProtocol, "", "", err)
	}
	return &Slots{items: slots}, nil
}

func (p *MmapPool) rentOne(size int64) (*Slot, error) {
	f, err := os.CreateTemp(p.dir, "reccd-shm-*")
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &Slot{Name: f.Name(), data: data, file: f}, nil
}

// Validate stats the segment named name and reports whether it is at
// least expectedBytes long. It checks size only, not contents.
func (p *MmapPool) Validate(name string, expectedBytes int64) (bool, error) {
	info, err := os.Stat(name)
	if err != nil {
		return false, fmt.Errorf("pack: validate shm segment %q: %w", name, err)
	}
	return info.Size() >= expectedBytes, nil
}

// Open maps an already-rented segment named name for reading/writing by
// this side of the pairing (the peer that did not call Rent for it).
// The returned Slot's Release path is the caller's Slots.Release, same
// as a rented one, except Open never removes the underlying file —
// only the renter owns deletion.
func (p *MmapPool) Open(name string) (*Slot, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pack: open shm segment %q: %w", name, err)
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pack: map shm segment %q: %w", name, err)
	}
	return &Slot{Name: name, data: data, file: nil, openedFile: f}, nil
}
