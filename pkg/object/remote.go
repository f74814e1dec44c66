package object

import (
	"encoding/binary"
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/guard"
	"github.com/tao-rt/tao/pkg/shm"
)

// Remote-object fields, placed immediately after Header (spec §6):
// i64 nbufs; i64 offset; i64 stride; atomic<i64> serial; atomic<i32> state;
// i32 command; atomic<i64> ncmds; char owner[64].
const (
	offNbufs      = HeaderSize
	offRingOffset = HeaderSize + 8
	offStride     = HeaderSize + 16
	offSerial     = HeaderSize + 24
	offState      = HeaderSize + 32
	offCommand    = HeaderSize + 36
	offNcmds      = HeaderSize + 40
	offOwner      = HeaderSize + 48
	ownerLen      = 64

	// RemoteHeaderSize is the fixed prefix of every remote object, rounded
	// to a 64-byte boundary so subclasses (camera/mirror/sensor) can lay
	// their own fixed fields, and then the ring, on clean boundaries.
	RemoteHeaderSize = 192
)

// State is the remote object's server-side state machine (spec §4.5).
type State int32

const (
	StateInitializing State = iota
	StateWaiting
	StateConfiguring
	StateStarting
	StateWorking
	StateStopping
	StateAborting
	StateError
	StateResetting
	StateQuitting
	// StateUnreachable is never stored, and Remote.State never returns it
	// (State reports the stored value); an owning process that appears to
	// be gone is detected through IsAlive instead.
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateWaiting:
		return "waiting"
	case StateConfiguring:
		return "configuring"
	case StateStarting:
		return "starting"
	case StateWorking:
		return "working"
	case StateStopping:
		return "stopping"
	case StateAborting:
		return "aborting"
	case StateError:
		return "error"
	case StateResetting:
		return "resetting"
	case StateQuitting:
		return "quitting"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Command is the remote object's pending-command slot (spec §3/§4.5).
type Command int32

const (
	CommandNone Command = iota
	CommandReset
	CommandSend
	CommandConfig
	CommandStart
	CommandStop
	CommandAbort
	CommandKill
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandReset:
		return "reset"
	case CommandSend:
		return "send"
	case CommandConfig:
		return "config"
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandAbort:
		return "abort"
	case CommandKill:
		return "kill"
	default:
		return "unknown"
	}
}

// Remote is component F: the hardest subsystem. A single-writer (the
// server event loop), many-reader command queue with a one-deep slot, plus
// a cyclic output-frame ring with overwrite detection.
type Remote struct {
	*Header
	mem    []byte
	nbufs  int64
	offset int64
	stride int64
	serial guard.Atomic64
	state  guard.Atomic32
	ncmds  guard.Atomic64
}

// CreateRemote allocates a segment of totalSize bytes (the caller —
// typically a concrete H subclass — has already worked out how large the
// ring and any subclass-specific fields make the object) and writes the
// remote-object fields on top of a fresh Header.
func CreateRemote(family uint32, totalSize int, nbufs, ringOffset, stride int64, owner string, flags uint32) (*Remote, *shm.Segment, status.Code) {
	if nbufs < 2 {
		return nil, nil, status.New("object.CreateRemote", status.KindBadArgument, nil)
	}
	if ringOffset+nbufs*stride > int64(totalSize) {
		return nil, nil, status.New("object.CreateRemote", status.KindBadSize, nil)
	}
	h, seg, code := CreateObject(family, totalSize, flags)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()
	binary.LittleEndian.PutUint64(mem[offNbufs:], uint64(nbufs))
	binary.LittleEndian.PutUint64(mem[offRingOffset:], uint64(ringOffset))
	binary.LittleEndian.PutUint64(mem[offStride:], uint64(stride))
	copy(mem[offOwner:offOwner+ownerLen-1], owner)

	r := &Remote{
		Header: h,
		mem:    mem,
		nbufs:  nbufs,
		offset: ringOffset,
		stride: stride,
		serial: guard.NewAtomic64(mem, offSerial),
		state:  guard.NewAtomic32(mem, offState),
		ncmds:  guard.NewAtomic64(mem, offNcmds),
	}
	r.state.Store(int32(StateInitializing))
	r.setCommand(CommandNone)
	r.state.Store(int32(StateWaiting))
	return r, seg, status.OK
}

// AttachRemote maps an existing remote object, verifying it descends from
// wantFamily (typically FamilyRemote).
func AttachRemote(shmid int32, wantFamily uint32) (*Remote, *shm.Segment, status.Code) {
	h, seg, code := AttachObject(shmid, wantFamily)
	if code != status.OK {
		return nil, nil, code
	}
	if seg.Size() < RemoteHeaderSize {
		seg.Detach()
		return nil, nil, status.New("object.AttachRemote", status.KindBadSize, nil)
	}
	mem := seg.Bytes()
	r := &Remote{
		Header: h,
		mem:    mem,
		nbufs:  int64(binary.LittleEndian.Uint64(mem[offNbufs:])),
		offset: int64(binary.LittleEndian.Uint64(mem[offRingOffset:])),
		stride: int64(binary.LittleEndian.Uint64(mem[offStride:])),
		serial: guard.NewAtomic64(mem, offSerial),
		state:  guard.NewAtomic32(mem, offState),
		ncmds:  guard.NewAtomic64(mem, offNcmds),
	}
	return r, seg, status.OK
}

func (r *Remote) Owner() string {
	end := offOwner
	for end < offOwner+ownerLen && r.mem[end] != 0 {
		end++
	}
	return string(r.mem[offOwner:end])
}

func (r *Remote) Nbufs() int64  { return r.nbufs }
func (r *Remote) Offset() int64 { return r.offset }
func (r *Remote) Stride() int64 { return r.stride }
func (r *Remote) Serial() int64 { return r.serial.Load() }
func (r *Remote) Ncmds() int64  { return r.ncmds.Load() }
func (r *Remote) State() State  { return State(r.state.Load()) }

// SetState updates the atomic server-state field; the server's action
// handlers call this without holding the mutex for the transitional states
// (configuring/starting/working/...), matching §4.5's "may update state..."
func (r *Remote) SetState(s State) { r.state.Store(int32(s)) }

func (r *Remote) command() Command       { return Command(int32(binary.LittleEndian.Uint32(r.mem[offCommand:]))) }
func (r *Remote) setCommand(c Command)   { binary.LittleEndian.PutUint32(r.mem[offCommand:], uint32(c)) }

// Slot returns the byte range of ring slot index i (0-based) — the caller
// attaches to it, or interprets it in place, as a shared array or
// dataframe-headed subclass payload.
func (r *Remote) Slot(i int64) []byte {
	start := r.offset + (i%r.nbufs)*r.stride
	return r.mem[start : start+r.stride]
}

// IsAlive approximates "the owning process has not disappeared": the
// segment must still exist, and the server must not have announced
// quitting. This module has no reliable way to detect a server that died
// without running its quit path (spec §4.5's "unreachable" sentinel is
// explicitly an approximation, "no attach count detectable, state stale");
// callers relying on strict liveness should pair this with an external
// heartbeat, which is out of this module's scope (§1).
func (r *Remote) IsAlive() bool {
	if r.State() == StateQuitting {
		return false
	}
	size, _ := shm.Stat(r.Shmid())
	return size > 0
}

// QueueCommand implements the client side of the command protocol (§4.5
// steps 1-5): wait for the slot to be free and the server ready, write the
// command via writeArgs (called with the mutex held, for subclasses that
// need to stash in-place arguments), and return the serial the matching
// completion will carry.
func (r *Remote) QueueCommand(cmd Command, deadline time.Time, writeArgs func()) (int64, status.Code) {
	if code := r.Mutex.AbstimedLock(deadline); code != status.OK {
		return 0, code
	}
	defer r.Mutex.Unlock()

	for {
		st := r.State()
		if r.command() == CommandNone && (st == StateWaiting || st == StateWorking) {
			break
		}
		if st == StateQuitting {
			return 0, status.New("object.Remote.QueueCommand", status.KindOverwritten, nil)
		}
		if !r.IsAlive() {
			return 0, status.New("object.Remote.QueueCommand", status.KindUnreachable, nil)
		}
		if code := r.Cond.AbstimedWait(r.Mutex, deadline); code != status.OK {
			return 0, status.TIMEOUT
		}
	}

	if writeArgs != nil {
		writeArgs()
	}
	expected := r.ncmds.Load() + 1
	r.setCommand(cmd)
	r.Cond.Broadcast()
	return expected, status.OK
}

// ServerAwaitCommand implements the server event-loop wait (§4.5): set
// state to waiting (unless the server is working, which lasts until a
// later command changes it), block until a command arrives, and return it
// with the mutex held so the caller can read any in-place arguments before
// releasing (via ServerReleaseCommand) and acting on them.
func (r *Remote) ServerAwaitCommand() Command {
	r.Mutex.Lock()
	if r.State() != StateWorking {
		r.SetState(StateWaiting)
	}
	for r.command() == CommandNone {
		r.Cond.Wait(r.Mutex)
	}
	return r.command()
}

// ServerReleaseCommand drops the mutex taken by ServerAwaitCommand, letting
// the server run the command's action (possibly updating State along the
// way) without holding the lock.
func (r *Remote) ServerReleaseCommand() { r.Mutex.Unlock() }

// ServerCompleteCommand implements the tail of the server loop (§4.5):
// retake the mutex, clear the command slot, bump ncmds, move to nextState,
// and broadcast.
func (r *Remote) ServerCompleteCommand(nextState State) {
	r.Mutex.Lock()
	r.setCommand(CommandNone)
	r.ncmds.Add(1)
	r.SetState(nextState)
	r.Cond.Broadcast()
	r.Mutex.Unlock()
}

// WaitCommand is the client-side companion to QueueCommand: block until
// the server has processed at least `expected` commands.
func (r *Remote) WaitCommand(expected int64, deadline time.Time) status.Code {
	if code := r.Mutex.AbstimedLock(deadline); code != status.OK {
		return code
	}
	defer r.Mutex.Unlock()

	for r.ncmds.Load() < expected {
		st := r.State()
		if st == StateQuitting || !r.IsAlive() {
			// Build-time choice (documented in DESIGN.md): report the
			// server-killed-before-completion case as TIMEOUT rather than
			// a distinct UNREACHABLE, matching the spec's stated default.
			return status.TIMEOUT
		}
		if code := r.Cond.AbstimedWait(r.Mutex, deadline); code != status.OK {
			return status.TIMEOUT
		}
	}
	return status.OK
}

// Publish implements the server side of the output ring (§4.5): writeSlot
// is handed the next slot's bytes and the serial it must stamp into the
// slot's own dataframe header before returning; Publish then bumps the
// remote serial and wakes waiters.
func (r *Remote) Publish(writeSlot func(slot []byte, s int64)) {
	r.Mutex.Lock()
	s := r.serial.Load() + 1
	writeSlot(r.Slot(s-1), s)
	r.serial.Store(s)
	r.Cond.Broadcast()
	r.Mutex.Unlock()
}

// Special WaitOutput return values (spec §7): the positive branch returns
// the addressable serial; OutputOverwritten and OutputUnreachable come back
// together with status.ERROR, so callers can dispatch by value alone.
// WaitOutput never returns OutputUnrecoverable.
const (
	OutputOverwritten    int64 = -1
	OutputUnreachable    int64 = -2
	OutputUnrecoverable  int64 = -3
)

// WaitOutput implements the client side of the output ring (§4.5): wait
// for frame sReq (or, if sReq <= 0, the next frame after the one last
// observed) to be published, returning its serial once addressable. A
// deadline that passes before publication returns (0, TIMEOUT) — the
// "not yet" case distinct from the negative overwritten/unreachable codes.
func (r *Remote) WaitOutput(sReq int64, deadline time.Time) (int64, status.Code) {
	if code := r.Mutex.AbstimedLock(deadline); code != status.OK {
		return 0, status.TIMEOUT
	}
	defer r.Mutex.Unlock()

	sTgt := sReq
	if sReq <= 0 {
		sTgt = r.serial.Load() + 1
	}

	check := func() (int64, status.Code, bool) {
		serial := r.serial.Load()
		if serial >= sTgt+r.nbufs {
			return OutputOverwritten, status.New("object.Remote.WaitOutput", status.KindOverwritten, nil), true
		}
		if !r.IsAlive() && sTgt > serial {
			return OutputUnreachable, status.New("object.Remote.WaitOutput", status.KindUnreachable, nil), true
		}
		if serial >= sTgt {
			return sTgt, status.OK, true
		}
		return 0, status.OK, false
	}

	if v, code, done := check(); done {
		return v, code
	}
	for {
		if clock.Remaining(deadline) == 0 {
			return 0, status.TIMEOUT
		}
		if code := r.Cond.AbstimedWait(r.Mutex, deadline); code != status.OK {
			return 0, status.TIMEOUT
		}
		if v, code, done := check(); done {
			return v, code
		}
	}
}
