//go:build linux

// Package ioring implements the I/O submission façade (C1): a thin, safe
// surface over the kernel's io_uring submit/complete rings. It exposes a
// small set of asynchronous operations, each of which owns any buffer it
// touches until completion, guarantees at-most-one completion per
// submission, and propagates the kernel's errno unchanged without retry.
// Operations the ring does not yet carry fall back to an auxiliary worker
// pool (fallback.go); callers do not observe the difference beyond
// latency. The Facade in facade.go is the only place in the tree that
// touches the io_uring interface; other packages still issue some plain
// syscalls themselves (statx and xattr calls in direntry, lseek in
// copystrategy, fstat, umask and symlink utimensat in pipeline).
package ioring

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// io_uring opcode numbers. The façade submits opFsync, opRead, opWrite
// and opFallocate; opNop, opReadv and opWritev are defined but unused.
const (
	opNop       = 0
	opReadv     = 1
	opWritev    = 2
	opFsync     = 3
	opFallocate = 17
	opRead      = 22
	opWrite     = 23
)

const featSingleMmap = 1 << 0

type sqringOffsets struct {
	Head, Tail, RingMask, RingEntries, Flags, Dropped, Array, Resv1 uint32
	Resv2                                                           uint64
}

type cqringOffsets struct {
	Head, Tail, RingMask, RingEntries, Overflow, Cqes uint32
	Flags                                             uint64
	Resv1                                             uint32
	Resv2                                             uint64
}

type params struct {
	SqEntries, CqEntries, Flags, SqThreadCpu, SqThreadIdle, Features, WqFd uint32
	Resv                                                                   [3]uint32
	SqOff                                                                  sqringOffsets
	CqOff                                                                  cqringOffsets
}

// sqe mirrors struct io_uring_sqe's first fields - enough to drive the
// handful of opcodes this façade submits.
type sqe struct {
	Opcode      uint8
	Flags       uint8
	Ioprio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpFlags     uint32
	UserData    uint64
	_pad        [3]uint64
}

// cqe mirrors struct io_uring_cqe.
type cqe struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Ring is a single io_uring instance plus its shared submission/completion
// memory. Callers never see this type directly; Facade wraps it.
type Ring struct {
	fd      int
	p       params
	ringMem []byte
	sqeMem  []byte

	sqHead, sqTail, sqMask, sqEntries *uint32
	sqArray                           *uint32
	sqes                              []sqe

	cqHead, cqTail, cqMask, cqEntries *uint32
	cqes                              []cqe

	mu      sync.Mutex
	nextTag uint64
	waiters map[uint64]chan cqe
}

func ioUringSetup(entries uint32, p *params) (int, error) {
	r1, _, errno := syscall.Syscall(425 /* SYS_IO_URING_SETUP */, uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

func ioUringEnter(fd int, toSubmit, minComplete uint32, flags uint32) (int, error) {
	r1, _, errno := syscall.Syscall6(426 /* SYS_IO_URING_ENTER */, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// NewRing sets up a ring with the given submission queue depth (rounded
// up to a power of two by the kernel). Requires IORING_FEAT_SINGLE_MMAP
// (Linux 5.4+); older kernels fail here and the caller should run in
// fallback-pool-only mode.
func NewRing(depth uint32) (*Ring, error) {
	var p params
	fd, err := ioUringSetup(depth, &p)
	if err != nil {
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}
	if p.Features&featSingleMmap == 0 {
		_ = syscall.Close(fd)
		return nil, fmt.Errorf("kernel lacks IORING_FEAT_SINGLE_MMAP")
	}

	pageSize := uint32(syscall.Getpagesize())
	sqSize := p.SqOff.Array + p.SqEntries*4
	cqSize := p.CqOff.Cqes + p.CqEntries*uint32(unsafe.Sizeof(cqe{}))
	ringSize := sqSize
	if cqSize > ringSize {
		ringSize = cqSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := syscall.Mmap(fd, 0, int(ringSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Close(fd)
		return nil, fmt.Errorf("mmap ring: %w", err)
	}

	sqeSize := p.SqEntries * uint32(unsafe.Sizeof(sqe{}))
	sqeMem, err := syscall.Mmap(fd, 0x10000000, int(sqeSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Munmap(ringMem)
		_ = syscall.Close(fd)
		return nil, fmt.Errorf("mmap sqe: %w", err)
	}

	r := &Ring{fd: fd, p: p, ringMem: ringMem, sqeMem: sqeMem, waiters: make(map[uint64]chan cqe)}
	r.sqHead = (*uint32)(unsafe.Pointer(&ringMem[p.SqOff.Head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&ringMem[p.SqOff.Tail]))
	r.sqMask = (*uint32)(unsafe.Pointer(&ringMem[p.SqOff.RingMask]))
	r.sqEntries = (*uint32)(unsafe.Pointer(&ringMem[p.SqOff.RingEntries]))
	r.sqArray = (*uint32)(unsafe.Pointer(&ringMem[p.SqOff.Array]))
	r.sqes = unsafe.Slice((*sqe)(unsafe.Pointer(&sqeMem[0])), p.SqEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&ringMem[p.CqOff.Head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&ringMem[p.CqOff.Tail]))
	r.cqMask = (*uint32)(unsafe.Pointer(&ringMem[p.CqOff.RingMask]))
	r.cqEntries = (*uint32)(unsafe.Pointer(&ringMem[p.CqOff.RingEntries]))
	r.cqes = unsafe.Slice((*cqe)(unsafe.Pointer(&ringMem[p.CqOff.Cqes])), p.CqEntries)

	runtime.SetFinalizer(r, func(r *Ring) { _ = r.Close() })
	return r, nil
}

// Close unmaps the ring's memory and closes its file descriptor.
func (r *Ring) Close() error {
	runtime.SetFinalizer(r, nil)
	if r.sqeMem != nil {
		_ = syscall.Munmap(r.sqeMem)
		r.sqeMem = nil
	}
	if r.ringMem != nil {
		_ = syscall.Munmap(r.ringMem)
		r.ringMem = nil
	}
	if r.fd != 0 {
		err := syscall.Close(r.fd)
		r.fd = 0
		return err
	}
	return nil
}

// submit pushes one sqe and returns its completion. It blocks the calling
// goroutine (not an OS thread) until the kernel reports a completion with
// a matching user-data tag.
func (r *Ring) submit(s sqe) (cqe, error) {
	r.mu.Lock()
	tag := r.nextTag
	r.nextTag++
	s.UserData = tag
	ch := make(chan cqe, 1)
	r.waiters[tag] = ch

	tail := atomic.LoadUint32(r.sqTail)
	idx := tail & *r.sqMask
	r.sqes[idx] = s
	atomic.StoreUint32((*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(r.sqArray))+uintptr(idx)*4)), idx)
	atomic.StoreUint32(r.sqTail, tail+1)
	r.mu.Unlock()

	if _, err := ioUringEnter(r.fd, 1, 1, 1 /* IORING_ENTER_GETEVENTS */); err != nil {
		r.mu.Lock()
		delete(r.waiters, tag)
		r.mu.Unlock()
		return cqe{}, err
	}
	r.drainCompletions()

	select {
	case c := <-ch:
		return c, nil
	default:
		// A concurrent submit() already drained this tag's completion
		// onto the channel buffer; read it now.
		return <-ch, nil
	}
}

func (r *Ring) drainCompletions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	for head != tail {
		c := r.cqes[head&*r.cqMask]
		if ch, ok := r.waiters[c.UserData]; ok {
			ch <- c
			delete(r.waiters, c.UserData)
		}
		head++
	}
	atomic.StoreUint32(r.cqHead, head)
}
