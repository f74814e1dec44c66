// Package shm implements the shared-memory segment manager, component C of
// the TAO spec: create/attach/detach/destroy of a kernel-backed byte segment
// identified by a small integer (§4.1). It is the only package in this
// module that talks to the kernel directly; everything above it (pkg/guard,
// pkg/object, pkg/array, ...) works against the []byte a segment hands back.
//
// Segments are backed by System V shared memory, grounded directly on the
// teacher's ffi.SharedMemory (controlplane/ffi/shm.go), which wraps the same
// concept behind a cgo call into a C shim; here the syscalls are made
// directly through golang.org/x/sys/unix, since there is no external C
// library to shim.
package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tao-rt/tao/internal/status"
)

// BadShmid is the sentinel for "no segment", per spec §6.
const BadShmid int32 = -1

// Persistent is the create-flag bit (1 << 20, spec §6) kept in an object
// header's flags: object.DetachObject issues Destroy for an object created
// without it and leaves one created with it in place. This package itself
// removes a segment only through Destroy.
const Persistent uint32 = 1 << 20

// DefaultPerms is the POSIX permission bits applied to segments this module
// creates, matching the spec's "no authentication beyond POSIX file
// permissions" non-goal (§1): owner and group read/write, no world access.
const DefaultPerms = 0o660

// Segment is a handle to an attached System V shared-memory segment.
type Segment struct {
	shmid int32
	data  []byte
}

// Create allocates a new, zero-filled segment of the given size and
// attaches it in the same call, mirroring the spec's
// create(size, perms) -> (shmid, base_ptr).
func Create(size int, perms uint32) (*Segment, status.Code) {
	if size <= 0 {
		return nil, status.New("shm.Create", status.KindBadSize, nil)
	}

	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, int(perms)|unix.IPC_CREAT)
	if err != nil {
		return nil, classifyErrno("shm.Create", err)
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, classifyErrno("shm.Create", err)
	}
	// SysV shared memory is guaranteed zero-filled by the kernel on
	// creation; no explicit clear is required.

	return &Segment{shmid: int32(id), data: data}, status.OK
}

// Attach maps an existing segment identified by shmid into this process,
// returning its base bytes and size.
func Attach(shmid int32) (*Segment, status.Code) {
	if shmid == BadShmid {
		return nil, status.New("shm.Attach", status.KindBadArgument, nil)
	}

	data, err := unix.SysvShmAttach(int(shmid), 0, 0)
	if err != nil {
		return nil, classifyErrno("shm.Attach", err)
	}

	return &Segment{shmid: shmid, data: data}, status.OK
}

// Detach unmaps the segment from this process's address space. It does not
// remove the segment: the kernel keeps it until Destroy has been issued and
// the last attachment has dropped.
func (s *Segment) Detach() status.Code {
	if s == nil || s.data == nil {
		return status.New("shm.Detach", status.KindBadAddress, nil)
	}

	addr := uintptr(unsafe.Pointer(&s.data[0]))
	if err := unix.SysvShmDetach(addr); err != nil {
		return classifyErrno("shm.Detach", err)
	}
	s.data = nil
	return status.OK
}

// Destroy marks the segment for removal. On Linux this is effective
// immediately for future attaches and takes hold of the kernel object once
// the last attachment drops, which is exactly the "destroy while attached"
// semantics the spec allows (§4.1); platforms without that semantic would
// need to poll Stat until Nattch reaches zero before calling this, which
// this package leaves to the caller since it never blocks internally.
func Destroy(shmid int32) status.Code {
	if shmid == BadShmid {
		return status.New("shm.Destroy", status.KindBadArgument, nil)
	}
	if _, err := unix.SysvShmCtl(int(shmid), unix.IPC_RMID, nil); err != nil {
		return classifyErrno("shm.Destroy", err)
	}
	return status.OK
}

// Stat reports a segment's size and attach count, returning (0, 0) for a
// removed or nonexistent segment — the spec's existence-probe contract.
func Stat(shmid int32) (size int64, attachCount int64) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(int(shmid), unix.IPC_STAT, &desc); err != nil {
		return 0, 0
	}
	return int64(desc.Segsz), int64(desc.Nattch)
}

// Bytes returns the segment's mapped memory. Valid until Detach.
func (s *Segment) Bytes() []byte { return s.data }

// Shmid returns the segment's kernel identifier.
func (s *Segment) Shmid() int32 { return s.shmid }

// Size returns the segment's byte length.
func (s *Segment) Size() int { return len(s.data) }

func classifyErrno(fn string, err error) status.Code {
	errno, _ := err.(unix.Errno)
	switch errno {
	case unix.ENOSPC, unix.ENOMEM:
		return status.New(fn, status.KindExhausted, err)
	case unix.EACCES, unix.EPERM:
		return status.New(fn, status.KindNotAcquiring, err)
	case unix.EINVAL, unix.ENOENT:
		return status.New(fn, status.KindBadArgument, err)
	default:
		return status.New(fn, status.KindUnsupported, err)
	}
}
