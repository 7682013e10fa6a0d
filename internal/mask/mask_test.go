package mask_test

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/fanmon/fanmon/internal/mask"
)

var allCategories = []mask.Category{
	mask.Access, mask.Modify, mask.CloseWrite, mask.CloseNoWrite,
	mask.Open, mask.OnDir, mask.EventOnChild,
}

func TestBase_CoversEveryCategory(t *testing.T) {
	base := mask.Base()
	for _, c := range allCategories {
		if !base.Has(c) {
			t.Errorf("Base() missing %s", c)
		}
	}
	if base.Has(mask.Overflow) {
		t.Error("Base() must not subscribe to FAN_Q_OVERFLOW")
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want mask.Category
		ok   bool
	}{
		{"OPEN", mask.Open, true},
		{"open", mask.Open, true},
		{"FAN_OPEN", mask.Open, true},
		{"fan_close_write", mask.CloseWrite, true},
		{"Close_NoWrite", mask.CloseNoWrite, true},
		{"EVENT_ON_CHILD", mask.EventOnChild, true},
		{"FAN_ONDIR", mask.OnDir, true},
		{"  access ", mask.Access, true},
		{"FAN_", 0, false},
		{"Q_OVERFLOW", 0, false},
		{"OPENED", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mask.Lookup(tt.name)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Lookup(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestApply(t *testing.T) {
	m := mask.Apply(0, mask.Directive{Op: mask.Add, Category: mask.Open})
	if m != mask.Mask(mask.Open) {
		t.Fatalf("add to zero = %v, want FAN_OPEN", m)
	}
	m = mask.Apply(m, mask.Directive{Op: mask.Add, Category: mask.Open})
	if m != mask.Mask(mask.Open) {
		t.Fatalf("add is not idempotent: %v", m)
	}
	m = mask.Apply(m, mask.Directive{Op: mask.Remove, Category: mask.Access})
	if m != mask.Mask(mask.Open) {
		t.Fatalf("removing an absent bit changed the mask: %v", m)
	}
	m = mask.Apply(m, mask.Directive{Op: mask.Remove, Category: mask.Open})
	if m != 0 {
		t.Fatalf("remove = %v, want 0", m)
	}
}

// TestBuild_MatchesFold checks Build against an explicit bit-by-bit fold for
// random directive sequences.
func TestBuild_MatchesFold(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		reset := rng.Intn(2) == 0
		n := rng.Intn(10)
		ds := make([]mask.Directive, n)
		for j := range ds {
			ds[j] = mask.Directive{
				Op:       mask.Op(rng.Intn(2)),
				Category: allCategories[rng.Intn(len(allCategories))],
			}
		}

		want := uint64(mask.Base())
		if reset {
			want = 0
		}
		for _, d := range ds {
			if d.Op == mask.Add {
				want |= uint64(d.Category)
			} else {
				want &^= uint64(d.Category)
			}
		}

		if got := mask.Build(reset, ds); uint64(got) != want {
			t.Fatalf("Build(%v, %v) = %#x, want %#x", reset, ds, uint64(got), want)
		}
	}
}

func TestBuild_AddThenRemoveCancels(t *testing.T) {
	for _, c := range allCategories {
		ds := []mask.Directive{{Op: mask.Add, Category: c}, {Op: mask.Remove, Category: c}}
		if got := mask.Build(true, ds); got != 0 {
			t.Errorf("reset +%s -%s = %v, want 0", c, c, got)
		}
		if got := mask.Build(false, ds); got != mask.Base()&^mask.Mask(c) {
			t.Errorf("base +%s -%s = %v", c, c, got)
		}
	}
}

func TestBuild_ResetOpenOnly(t *testing.T) {
	got := mask.Build(true, []mask.Directive{{Op: mask.Add, Category: mask.Open}})
	if got != mask.Mask(mask.Open) {
		t.Fatalf("got %v, want FAN_OPEN only", got)
	}
	if got.Has(mask.Access) {
		t.Error("FAN_ACCESS must not be subscribed")
	}
}

func TestMask_Names(t *testing.T) {
	m := mask.Mask(mask.CloseWrite) | mask.Mask(mask.Open) | mask.Mask(mask.Overflow)
	want := []string{"FAN_OPEN", "FAN_CLOSE_WRITE", "FAN_Q_OVERFLOW"}
	if got := m.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if s := mask.Mask(0).String(); s != "0" {
		t.Errorf("zero String() = %q", s)
	}
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		in     string
		want   mask.Directive
		ok     bool
		hasErr bool
	}{
		{"+OPEN", mask.Directive{Op: mask.Add, Category: mask.Open}, true, false},
		{"-fan_access", mask.Directive{Op: mask.Remove, Category: mask.Access}, true, false},
		{"modify", mask.Directive{Op: mask.Add, Category: mask.Modify}, true, false},
		{"+BOGUS", mask.Directive{}, false, false},
		{"", mask.Directive{}, false, true},
	}
	for _, tt := range tests {
		d, ok, err := mask.ParseDirective(tt.in)
		if (err != nil) != tt.hasErr {
			t.Errorf("ParseDirective(%q) err = %v", tt.in, err)
		}
		if ok != tt.ok || d != tt.want {
			t.Errorf("ParseDirective(%q) = %v, %v; want %v, %v", tt.in, d, ok, tt.want, tt.ok)
		}
	}
}
