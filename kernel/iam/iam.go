// Package iam implements the identity rules of §4.9: a fixed-size table of
// {uid, gid, euid, egid, suid, sgid} bundles with POSIX-like setuid/seteuid
// semantics, grounded on the teacher's fixed-size-table-plus-handle pattern
// (kernel/mm/vmm's addrSpacePool) generalized to identities (§3 Identity).
package iam

import (
	"kmicro/kernel"
	"kmicro/kernel/mem"
	"kmicro/kernel/sync"
)

// ID identifies an entry in the identity table.
type ID int

// IDNull is returned when no identity is available.
const IDNull = ID(-1)

// Root is the immortal superuser identity, installed once by Init.
const Root = ID(0)

const superuser = 0

type identity struct {
	inUse bool
	uid   uint32
	gid   uint32
	euid  uint32
	egid  uint32
	suid  uint32
	sgid  uint32
}

var (
	table [mem.IdentityMax]identity
	lock  sync.Spinlock

	errFull          = &kernel.Error{Module: "iam", Message: "identity table is full"}
	errInvalidID     = &kernel.Error{Module: "iam", Message: "invalid identity handle"}
	errRootProtected = &kernel.Error{Module: "iam", Message: "the root identity cannot be dropped"}
	errPermission    = &kernel.Error{Module: "iam", Message: "operation not permitted"}
)

// Init installs the root identity at handle 0. Root identifies a superuser
// and can never be dropped (§4.9).
func Init() {
	lock.Acquire()
	defer lock.Release()

	table[Root] = identity{inUse: true}
}

func valid(id ID) bool {
	return id >= 0 && int(id) < mem.IdentityMax
}

// isSuperuserLocked matches identity_is_superuser() in the ground truth: a
// real uid of 0 still counts even after the identity has seteuid'd away from
// 0, not just an effective uid of 0. lock must be held.
func isSuperuserLocked(e *identity) bool {
	return e.uid == superuser || e.euid == superuser
}

func get(id ID) (*identity, *kernel.Error) {
	if !valid(id) {
		return nil, errInvalidID
	}
	e := &table[id]
	if !e.inUse {
		return nil, errInvalidID
	}
	return e, nil
}

// New clones base into a fresh table entry (§4.9 identity_new).
func New(base ID) (ID, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()

	if !valid(base) || !table[base].inUse {
		return IDNull, errInvalidID
	}
	src := table[base]

	for i := 0; i < mem.IdentityMax; i++ {
		if !table[i].inUse {
			src.inUse = true
			table[i] = src
			return ID(i), nil
		}
	}

	return IDNull, errFull
}

// Drop releases id. Root may never be dropped (§4.9, §3).
func Drop(id ID) *kernel.Error {
	if id == Root {
		return errRootProtected
	}

	lock.Acquire()
	defer lock.Release()

	e, err := get(id)
	if err != nil {
		return err
	}
	*e = identity{}
	return nil
}

// Getuid returns the real uid of id (§4.9 identity_getuid).
func Getuid(id ID) (uint32, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()
	e, err := get(id)
	if err != nil {
		return 0, err
	}
	return e.uid, nil
}

// Geteuid returns the effective uid of id.
func Geteuid(id ID) (uint32, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()
	e, err := get(id)
	if err != nil {
		return 0, err
	}
	return e.euid, nil
}

// Getgid returns the real gid of id.
func Getgid(id ID) (uint32, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()
	e, err := get(id)
	if err != nil {
		return 0, err
	}
	return e.gid, nil
}

// Getegid returns the effective gid of id.
func Getegid(id ID) (uint32, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()
	e, err := get(id)
	if err != nil {
		return 0, err
	}
	return e.egid, nil
}

// Setuid implements the §4.9 setuid(u) table: the superuser sets
// real=eff=saved=u unconditionally; a non-superuser may only raise its
// effective uid to u if u matches its real or saved uid; any other request
// fails with permission denied.
func Setuid(id ID, u uint32) *kernel.Error {
	lock.Acquire()
	defer lock.Release()

	e, err := get(id)
	if err != nil {
		return err
	}

	if isSuperuserLocked(e) {
		e.uid, e.euid, e.suid = u, u, u
		return nil
	}
	if u == e.uid || u == e.suid {
		e.euid = u
		return nil
	}
	return errPermission
}

// Seteuid implements §4.9 seteuid(u): the superuser sets eff=u
// unconditionally; a non-superuser may only set eff=u if u already equals
// the current effective uid (a no-op check, matching the spec table).
func Seteuid(id ID, u uint32) *kernel.Error {
	lock.Acquire()
	defer lock.Release()

	e, err := get(id)
	if err != nil {
		return err
	}

	if isSuperuserLocked(e) {
		e.euid = u
		return nil
	}
	if u == e.euid {
		return nil
	}
	return errPermission
}

// Setgid mirrors Setuid for the gid triple (§4.9 setgid(g)).
func Setgid(id ID, g uint32) *kernel.Error {
	lock.Acquire()
	defer lock.Release()

	e, err := get(id)
	if err != nil {
		return err
	}

	if isSuperuserLocked(e) {
		e.gid, e.egid, e.sgid = g, g, g
		return nil
	}
	if g == e.gid || g == e.sgid {
		e.egid = g
		return nil
	}
	return errPermission
}

// Setegid mirrors Seteuid for the gid triple (§4.9 setegid(g)).
func Setegid(id ID, g uint32) *kernel.Error {
	lock.Acquire()
	defer lock.Release()

	e, err := get(id)
	if err != nil {
		return err
	}

	if isSuperuserLocked(e) {
		e.egid = g
		return nil
	}
	if g == e.egid {
		return nil
	}
	return errPermission
}

// IsSuperuser reports whether id is a superuser: its real or effective uid
// is 0 (§4.9, matching spec.md's "root (uid==0) identifies a superuser").
func IsSuperuser(id ID) bool {
	lock.Acquire()
	defer lock.Release()
	e, err := get(id)
	if err != nil {
		return false
	}
	return isSuperuserLocked(e)
}
