package iam

import (
	"testing"

	"kmicro/kernel/mem"
)

func reset() {
	table = [mem.IdentityMax]identity{}
	Init()
}

func TestIdentityLifecycle(t *testing.T) {
	reset()
	defer reset()

	id, err := New(Root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Setuid(id, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uid, err := Getuid(id)
	if err != nil || uid != 7 {
		t.Fatalf("expected uid 7, got %d (err=%v)", uid, err)
	}

	if err := Drop(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Getuid(id); err == nil {
		t.Fatal("expected a dropped identity to be unusable")
	}
}

func TestRootCannotBeDropped(t *testing.T) {
	reset()
	defer reset()

	if err := Drop(Root); err == nil {
		t.Fatal("expected dropping root to fail")
	}
}

func TestNewTableFull(t *testing.T) {
	reset()
	defer reset()

	for i := 1; i < mem.IdentityMax; i++ {
		if _, err := New(Root); err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
	}
	if _, err := New(Root); err == nil {
		t.Fatal("expected identity table to report full")
	}
}

func TestSetuidSuperuserSetsAllThree(t *testing.T) {
	reset()
	defer reset()

	id, _ := New(Root)
	if err := Setuid(id, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uid, _ := Getuid(id)
	euid, _ := Geteuid(id)
	if uid != 42 || euid != 42 {
		t.Fatalf("expected uid=euid=42, got uid=%d euid=%d", uid, euid)
	}
	if IsSuperuser(id) {
		t.Fatal("expected identity to no longer be superuser after setuid(42)")
	}
}

func TestSetuidNonSuperuserRespectsSavedUID(t *testing.T) {
	reset()
	defer reset()

	id, _ := New(Root)
	Setuid(id, 10) // drops superuser, sets real=eff=saved=10

	if err := Setuid(id, 10); err != nil {
		t.Fatalf("expected setting euid back to the saved uid to succeed: %v", err)
	}
	euid, _ := Geteuid(id)
	if euid != 10 {
		t.Fatalf("expected euid 10, got %d", euid)
	}

	if err := Setuid(id, 99); err == nil {
		t.Fatal("expected setuid to an arbitrary uid to fail for a non-superuser")
	}
}

func TestSeteuidRules(t *testing.T) {
	reset()
	defer reset()

	id, _ := New(Root)
	Setuid(id, 10)

	if err := Seteuid(id, 10); err != nil {
		t.Fatalf("expected seteuid to the current euid to succeed as a no-op: %v", err)
	}
	if err := Seteuid(id, 5); err == nil {
		t.Fatal("expected seteuid to a different uid to fail for a non-superuser")
	}
}

func TestRootStaysSuperuserAfterDroppingEffectiveUID(t *testing.T) {
	reset()
	defer reset()

	id, _ := New(Root)
	if err := Seteuid(id, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uid, _ := Getuid(id)
	euid, _ := Geteuid(id)
	if uid != 0 || euid != 50 {
		t.Fatalf("expected uid=0 euid=50, got uid=%d euid=%d", uid, euid)
	}
	if !IsSuperuser(id) {
		t.Fatal("expected a real uid of 0 to still count as superuser even with a dropped effective uid")
	}

	if err := Setuid(id, 77); err != nil {
		t.Fatalf("expected setuid to still behave as superuser: %v", err)
	}
	if euid, _ := Geteuid(id); euid != 77 {
		t.Fatalf("expected setuid(77) to set all three ids unconditionally, got euid=%d", euid)
	}
}

func TestSetgidMirrorsSetuid(t *testing.T) {
	reset()
	defer reset()

	id, _ := New(Root)
	if err := Setgid(id, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gid, _ := Getgid(id)
	egid, _ := Getegid(id)
	if gid != 3 || egid != 3 {
		t.Fatalf("expected gid=egid=3, got gid=%d egid=%d", gid, egid)
	}
}

func TestInvalidHandleIsRejected(t *testing.T) {
	reset()
	defer reset()

	if _, err := Getuid(IDNull); err == nil {
		t.Fatal("expected IDNull to be rejected")
	}
	if _, err := Getuid(ID(mem.IdentityMax)); err == nil {
		t.Fatal("expected an out-of-range handle to be rejected")
	}
}
