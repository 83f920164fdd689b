// Package memory implements the physical frame allocator (spec §4.2): a
// single bitmap over a contiguous RAM region, reserving the kernel image
// and device-tree blob up front and handing out 4 KiB frames from the
// lowest clear bit.
package memory

import (
	"math/bits"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/kerr"
)

// FrameSize is the allocator's native unit (spec §4.2 "hands out 4 KiB
// frames").
const FrameSize = 1 << 12

// Allocator is a bitmap-backed physical frame allocator over [Base, Base+
// Size). Bit i set means frame i is in use.
type Allocator struct {
	base   addr.Phys
	frames int
	bitmap []uint64
	free   int
}

// New constructs an allocator over a RAM region of size bytes starting at
// base, which must be frame-aligned. size is rounded down to a whole
// number of frames.
func New(base addr.Phys, size uint64) (*Allocator, error) {
	if !base.Aligned(FrameSize) {
		return nil, kerr.New(kerr.InvalidArguments, "memory: base not frame-aligned")
	}
	frames := int(size / FrameSize)
	words := (frames + 63) / 64
	return &Allocator{base: base, frames: frames, bitmap: make([]uint64, words), free: frames}, nil
}

// Base returns the region's physical base address.
func (a *Allocator) Base() addr.Phys { return a.base }

// Frames returns the total number of 4 KiB frames in the region.
func (a *Allocator) Frames() int { return a.frames }

// FreeFrames returns how many frames remain unallocated.
func (a *Allocator) FreeFrames() int { return a.free }

func (a *Allocator) index(p addr.Phys) (int, error) {
	if p < a.base {
		return 0, kerr.New(kerr.InvalidArguments, "memory: address below region")
	}
	i := int((p - a.base) / FrameSize)
	if i >= a.frames {
		return 0, kerr.New(kerr.InvalidArguments, "memory: address above region")
	}
	return i, nil
}

func (a *Allocator) set(i int)      { a.bitmap[i/64] |= uint64(1) << uint(i%64) }
func (a *Allocator) isSet(i int) bool { return a.bitmap[i/64]&(uint64(1)<<uint(i%64)) != 0 }

// Reserve marks the frames covering [p, p+size) as permanently in use
// (spec §4.2 "reserves the kernel image and the DTB"). It is an error to
// reserve a frame already in use, since reservation is meant to run once
// at boot before any allocation.
func (a *Allocator) Reserve(p addr.Phys, size uint64) error {
	start, err := a.index(p)
	if err != nil {
		return err
	}
	end, err := a.index(addr.Phys(uint64(p) + size - 1))
	if err != nil {
		return err
	}
	for i := start; i <= end; i++ {
		if a.isSet(i) {
			return kerr.New(kerr.InvalidArguments, "memory: reserve overlaps already-reserved frame")
		}
		a.set(i)
		a.free--
	}
	return nil
}

// Alloc returns the lowest free frame's physical address, marking it in
// use (spec §4.2 "allocation picks the lowest clear bit"). The frame is not
// zeroed by this call — callers that need a zeroed frame (spec §4.3
// "zeroed on allocation" for intermediate page tables) must zero it
// themselves once mapped.
func (a *Allocator) Alloc() (addr.Phys, error) {
	for w, word := range a.bitmap {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		i := w*64 + bit
		if i >= a.frames {
			break
		}
		a.set(i)
		a.free--
		return a.base.Add(uint64(i) * FrameSize), nil
	}
	return 0, kerr.New(kerr.InsufficientMemory, "memory: no free frames")
}

// Free clears the frame at p, making it available for a future Alloc.
func (a *Allocator) Free(p addr.Phys) error {
	i, err := a.index(p)
	if err != nil {
		return err
	}
	if !a.isSet(i) {
		return kerr.New(kerr.InvalidArguments, "memory: double free")
	}
	a.bitmap[i/64] &^= uint64(1) << uint(i%64)
	a.free++
	return nil
}
