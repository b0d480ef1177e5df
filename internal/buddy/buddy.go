// Package buddy implements a binary-buddy allocator over a fixed byte pool.
// A session owns one Pool exclusively, so no locking is done.
//
// The pool is 2^orderMax bytes. Every node of the implicit binary tree
// carries a marker holding the largest free order available in its
// subtree, encoded as order-orderMin+1 (0 means nothing free).
package buddy

import (
	"errors"
	"fmt"
	"math/bits"
)

// Errors returned by Pool.
var (
	ErrNoSpace  = errors.New("buddy: pool exhausted")
	ErrTooLarge = errors.New("buddy: request larger than pool")
	ErrBadFree  = errors.New("buddy: offset is not a live allocation")
)

// maxLevels bounds the marker tree at 2^25 nodes.
const maxLevels = 24

// Block is a granted allocation: 2^Order bytes starting at Off.
type Block struct {
	Off   int
	Order uint
}

// Len returns the granted size in bytes.
func (b Block) Len() int {
	return 1 << b.Order
}

// Pool is a buddy allocator over a flat byte array.
type Pool struct {
	orderMin uint
	orderMax uint
	tree     []uint8
	mem      []byte
	live     int
}

// New creates a pool of 2^orderMax bytes whose smallest block is
// 2^orderMin bytes.
func New(orderMin, orderMax uint) (*Pool, error) {
	if orderMin == 0 || orderMin > orderMax || orderMax > 30 {
		return nil, fmt.Errorf("buddy: invalid orders %d..%d", orderMin, orderMax)
	}
	if orderMax-orderMin > maxLevels {
		return nil, fmt.Errorf("buddy: %d levels exceeds %d", orderMax-orderMin, maxLevels)
	}
	levels := orderMax - orderMin
	p := &Pool{
		orderMin: orderMin,
		orderMax: orderMax,
		tree:     make([]uint8, (1<<(levels+1))-1),
		mem:      make([]byte, 1<<orderMax),
	}
	p.Reset()
	return p, nil
}

// Reset marks the whole pool free. Outstanding blocks become invalid.
func (p *Pool) Reset() {
	for i := range p.tree {
		p.tree[i] = p.full(i)
	}
	p.live = 0
}

// Size returns the pool size in bytes.
func (p *Pool) Size() int {
	return len(p.mem)
}

// Live returns the number of outstanding allocations.
func (p *Pool) Live() int {
	return p.live
}

// Largest reports the order of the largest free block. ok is false when the
// pool is completely allocated.
func (p *Pool) Largest() (order uint, ok bool) {
	m := p.tree[0]
	if m == 0 {
		return 0, false
	}
	return p.orderMin + uint(m) - 1, true
}

// Alloc grants the smallest block that holds size bytes.
func (p *Pool) Alloc(size int) (Block, error) {
	order, err := p.orderFor(size)
	if err != nil {
		return Block{}, err
	}
	need := uint8(order - p.orderMin + 1)
	if p.tree[0] < need {
		return Block{}, ErrNoSpace
	}

	i := 0
	for o := p.orderMax; o > order; o-- {
		l := 2*i + 1
		if p.tree[l] >= need {
			i = l
		} else {
			i = l + 1
		}
	}
	p.tree[i] = 0
	p.update(i)
	p.live++

	return Block{Off: p.offset(i, order), Order: order}, nil
}

// Free returns the block starting at off to the pool.
func (p *Pool) Free(off int) error {
	if off < 0 || off >= len(p.mem) || off&(1<<p.orderMin-1) != 0 {
		return fmt.Errorf("%w: %d", ErrBadFree, off)
	}

	i := (1 << (p.orderMax - p.orderMin)) - 1 + off>>p.orderMin
	for p.tree[i] != 0 {
		// Only a left child shares its parent's start offset.
		if i == 0 || i%2 == 0 {
			return fmt.Errorf("%w: %d", ErrBadFree, off)
		}
		i = (i - 1) / 2
	}

	p.tree[i] = p.full(i)
	p.update(i)
	p.live--
	return nil
}

// Bytes returns the pool memory backing b.
func (p *Pool) Bytes(b Block) []byte {
	end := b.Off + b.Len()
	return p.mem[b.Off:end:end]
}

func (p *Pool) orderFor(size int) (uint, error) {
	if size < 1 {
		size = 1
	}
	order := uint(bits.Len(uint(size - 1)))
	if order < p.orderMin {
		order = p.orderMin
	}
	if order > p.orderMax {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return order, nil
}

// update recomputes the ancestors of node i.
func (p *Pool) update(i int) {
	for i > 0 {
		i = (i - 1) / 2
		l, r := p.tree[2*i+1], p.tree[2*i+2]
		f := p.full(2*i + 1)
		switch {
		case l == f && r == f:
			p.tree[i] = f + 1
		case l > r:
			p.tree[i] = l
		default:
			p.tree[i] = r
		}
	}
}

// full is the marker of node i when its whole subtree is free.
func (p *Pool) full(i int) uint8 {
	return uint8(p.orderMax-p.orderMin) - uint8(depth(i)) + 1
}

func (p *Pool) offset(i int, order uint) int {
	first := 1<<depth(i) - 1
	return (i - first) << order
}

func depth(i int) int {
	return bits.Len(uint(i+1)) - 1
}
