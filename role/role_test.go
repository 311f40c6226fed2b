package role

import "testing"

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Car:    "car",
		OGPFOB: "og-pfob",
		OGUFOB: "og-ufob",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestIsFob(t *testing.T) {
	if Car.IsFob() {
		t.Error("Car reported as a fob role")
	}
	if !OGPFOB.IsFob() || !OGUFOB.IsFob() {
		t.Error("fob roles not reported as fobs")
	}
}

func TestOriginallyUnpaired(t *testing.T) {
	if OGPFOB.OriginallyUnpaired() {
		t.Error("OG-PFOB reported as originally unpaired")
	}
	if !OGUFOB.OriginallyUnpaired() {
		t.Error("OG-UFOB not reported as originally unpaired")
	}
	if Car.OriginallyUnpaired() {
		t.Error("Car reported as originally unpaired")
	}
}
