// Package object implements the typed process-shared object hierarchy,
// components D (shared-object base), E (r/w-locked object) and F (remote
// object). Dispatch between the three is a tagged discriminated union, not
// inheritance: a 32-bit type tag at the front of every segment identifies
// which shape the bytes behind it have, and every "subclass" (pkg/array,
// pkg/camera, pkg/mirror, pkg/sensor) starts with one of these records and
// extends it with its own trailing fields.
package object

import "github.com/tao-rt/tao/internal/status"

// Magic is the 24-bit constant shared by every object created by this
// module. The full type tag is Magic<<8 | family.
const Magic uint32 = 0x54414f // ASCII "TAO"

// Known families (spec §6): base=0, rwlocked=0x20, remote=0x40,
// shared_array=0x21, remote_camera=0x42, remote_mirror=0x43,
// remote_sensor=0x44. Family bits split into 3 upper bits (generation) and
// 5 lower bits (sibling index).
const (
	FamilyBase         uint32 = 0x00
	FamilyRWLocked     uint32 = 0x20
	FamilyRemote       uint32 = 0x40
	FamilySharedArray  uint32 = 0x21
	FamilyRemoteCamera uint32 = 0x42
	FamilyRemoteMirror uint32 = 0x43
	FamilyRemoteSensor uint32 = 0x44
)

// Type builds the full 32-bit type tag for a family.
func Type(family uint32) uint32 { return Magic<<8 | family }

// Generation and Sibling decode the two sub-fields of a family byte.
func Generation(family uint32) uint32 { return (family >> 5) & 0x7 }
func Sibling(family uint32) uint32    { return family & 0x1f }

// IsDescendant reports whether a family found in a header is a recognized
// descendant of wantFamily, the super-type the caller expects: every family
// descends from base; otherwise two families are in the same branch of the
// hierarchy when they share a generation, and wantFamily must be that
// branch's root (sibling 0) to accept any member, or match exactly.
func IsDescendant(gotFamily, wantFamily uint32) bool {
	if wantFamily == FamilyBase {
		return true
	}
	if Generation(gotFamily) != Generation(wantFamily) {
		return false
	}
	if Sibling(wantFamily) == 0 {
		return true
	}
	return gotFamily == wantFamily
}

// CheckTag validates a raw type tag read from a header against an expected
// super-type family, returning the decoded family on success.
func CheckTag(tag uint32, wantFamily uint32) (uint32, status.Code) {
	if tag>>8 != Magic {
		return 0, status.New("object.CheckTag", status.KindBadMagic, nil)
	}
	family := tag & 0xff
	if !IsDescendant(family, wantFamily) {
		return 0, status.New("object.CheckTag", status.KindBadType, nil)
	}
	return family, status.OK
}
