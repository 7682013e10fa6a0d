// Package mask holds the fanotify event categories and the bit-set algebra
// used to build the subscription mask from a base default and a sequence of
// add/remove directives.
package mask

import (
	"fmt"
	"strings"
)

// Category is a single fanotify event flag.
type Category uint64

// Fanotify event flag constants (kernel ABI values).
// These match the values in <linux/fanotify.h>.
const (
	Access       Category = 0x00000001 // FAN_ACCESS: file was read
	Modify       Category = 0x00000002 // FAN_MODIFY: file was written
	CloseWrite   Category = 0x00000008 // FAN_CLOSE_WRITE: writable file closed
	CloseNoWrite Category = 0x00000010 // FAN_CLOSE_NOWRITE: read-only file closed
	Open         Category = 0x00000020 // FAN_OPEN: file was opened
	Overflow     Category = 0x00004000 // FAN_Q_OVERFLOW: kernel queue overflowed
	EventOnChild Category = 0x08000000 // FAN_EVENT_ON_CHILD: report events on directory children
	OnDir        Category = 0x40000000 // FAN_ONDIR: report events on the directory itself
)

// namePrefix is the optional prefix accepted by Lookup.
const namePrefix = "FAN_"

// categories is the static name table. Order is the rendering order used by
// Mask.Names. Overflow is reported by the kernel but cannot be subscribed to,
// so it is deliberately absent from Lookup.
var categories = []struct {
	name string
	cat  Category
}{
	{"OPEN", Open},
	{"ACCESS", Access},
	{"MODIFY", Modify},
	{"CLOSE_WRITE", CloseWrite},
	{"CLOSE_NOWRITE", CloseNoWrite},
	{"ONDIR", OnDir},
	{"EVENT_ON_CHILD", EventOnChild},
}

// String returns the kernel-style name of c, e.g. "FAN_OPEN".
func (c Category) String() string {
	if c == Overflow {
		return namePrefix + "Q_OVERFLOW"
	}
	for _, e := range categories {
		if e.cat == c {
			return namePrefix + e.name
		}
	}
	return fmt.Sprintf("Category(%#x)", uint64(c))
}

// Lookup resolves a category name. Matching is case-insensitive and the
// "FAN_" prefix is optional. Unknown names report false.
func Lookup(name string) (Category, bool) {
	body := strings.TrimSpace(name)
	if len(body) >= len(namePrefix) && strings.EqualFold(body[:len(namePrefix)], namePrefix) {
		body = body[len(namePrefix):]
	}
	for _, e := range categories {
		if strings.EqualFold(body, e.name) {
			return e.cat, true
		}
	}
	return 0, false
}

// KnownNames lists the subscribable category names without prefix, in table
// order. Used for usage text.
func KnownNames() []string {
	out := make([]string, len(categories))
	for i, e := range categories {
		out[i] = e.name
	}
	return out
}

// Mask is a bitwise-OR'd set of categories. The zero Mask subscribes to
// nothing and is valid.
type Mask uint64

// Base returns the default subscription: every subscribable category.
func Base() Mask {
	var m Mask
	for _, e := range categories {
		m |= Mask(e.cat)
	}
	return m
}

// Has reports whether every bit of c is set in m.
func (m Mask) Has(c Category) bool {
	return m&Mask(c) == Mask(c)
}

// Categories returns the known categories set in m, in rendering order.
// Overflow is included when present.
func (m Mask) Categories() []Category {
	var out []Category
	for _, e := range categories {
		if m.Has(e.cat) {
			out = append(out, e.cat)
		}
	}
	if m.Has(Overflow) {
		out = append(out, Overflow)
	}
	return out
}

// Names renders the categories set in m, e.g. ["FAN_OPEN", "FAN_CLOSE_WRITE"].
func (m Mask) Names() []string {
	cats := m.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}

// String joins Names with "|", or returns "0" for the empty mask.
func (m Mask) String() string {
	if m == 0 {
		return "0"
	}
	return strings.Join(m.Names(), "|")
}

// Op is the direction of a Directive.
type Op int

const (
	// Add sets the category bit.
	Add Op = iota
	// Remove clears the category bit.
	Remove
)

func (o Op) String() string {
	if o == Remove {
		return "-"
	}
	return "+"
}

// Directive is one add/remove instruction against a mask.
type Directive struct {
	Op       Op
	Category Category
}

func (d Directive) String() string {
	return d.Op.String() + d.Category.String()
}

// Apply returns m with d applied: Add ORs the bit in, Remove clears it.
func Apply(m Mask, d Directive) Mask {
	switch d.Op {
	case Remove:
		return m &^ Mask(d.Category)
	default:
		return m | Mask(d.Category)
	}
}

// Build folds ds over the starting mask, which is zero when reset is set and
// Base otherwise.
func Build(reset bool, ds []Directive) Mask {
	m := Base()
	if reset {
		m = 0
	}
	for _, d := range ds {
		m = Apply(m, d)
	}
	return m
}

// ParseDirective parses the config-file form "+NAME" or "-NAME". A bare name
// is treated as an add. ok is false when the name is not a known category;
// err is non-nil only for an empty directive.
func ParseDirective(s string) (d Directive, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Directive{}, false, fmt.Errorf("mask: empty directive")
	}
	op := Add
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		op = Remove
		s = s[1:]
	}
	c, ok := Lookup(s)
	if !ok {
		return Directive{}, false, nil
	}
	return Directive{Op: op, Category: c}, true, nil
}
