// Package modkey defines the modifier key categories and the ignore
// policy that decides which of them are exempt from hiding the pointer.
//
// The category space mirrors the X11 modifier rows: Shift, Lock (caps),
// Control, and Mod1 through Mod4. It is closed: names are validated at
// configuration time and an IgnoreSet never changes after construction.
package modkey

import (
	"fmt"
	"strings"
)

// Category identifies a class of modifier key.
type Category uint8

const (
	Shift Category = iota
	CapsLock
	Ctrl
	Mod1
	Mod2
	Mod3
	Mod4
)

// String returns the configuration name of the category.
func (c Category) String() string {
	switch c {
	case Shift:
		return "shift"
	case CapsLock:
		return "caps"
	case Ctrl:
		return "ctrl"
	case Mod1:
		return "mod1"
	case Mod2:
		return "mod2"
	case Mod3:
		return "mod3"
	case Mod4:
		return "mod4"
	}
	return fmt.Sprintf("modkey.Category(%d)", uint8(c))
}

// ParseCategory parses a single configuration name. "all" is not a
// category; it is handled by ParseIgnoreSet.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shift":
		return Shift, nil
	case "caps", "capslock", "lock":
		return CapsLock, nil
	case "ctrl", "control":
		return Ctrl, nil
	case "mod1", "alt":
		return Mod1, nil
	case "mod2":
		return Mod2, nil
	case "mod3":
		return Mod3, nil
	case "mod4", "super":
		return Mod4, nil
	}
	return 0, fmt.Errorf("unknown modifier name: %q", s)
}

// Categories returns every category, in declaration order.
func Categories() []Category {
	return []Category{Shift, CapsLock, Ctrl, Mod1, Mod2, Mod3, Mod4}
}

// IgnoreSet is the set of modifier categories exempt from triggering a
// hide. The zero value ignores nothing. Built once at startup and
// read-only afterwards.
type IgnoreSet struct {
	mask uint8
	all  bool
}

// All ignores every modifier category, present and future.
var All = IgnoreSet{all: true}

// NewIgnoreSet builds a set from explicit categories.
func NewIgnoreSet(cats ...Category) IgnoreSet {
	var s IgnoreSet
	for _, c := range cats {
		s.mask |= 1 << c
	}
	return s
}

// ParseIgnoreSet parses configuration names into a set. The name "all"
// is shorthand for every category and may be combined with others
// (the result is still All).
func ParseIgnoreSet(names []string) (IgnoreSet, error) {
	var s IgnoreSet
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			s.all = true
			continue
		}
		c, err := ParseCategory(name)
		if err != nil {
			return IgnoreSet{}, err
		}
		s.mask |= 1 << c
	}
	return s, nil
}

// Ignored reports whether the category is exempt.
func (s IgnoreSet) Ignored(c Category) bool {
	if s.all {
		return true
	}
	return s.mask&(1<<c) != 0
}

// IsAll reports whether the set is the distinguished "all" value.
func (s IgnoreSet) IsAll() bool { return s.all }

// Empty reports whether nothing is ignored.
func (s IgnoreSet) Empty() bool { return !s.all && s.mask == 0 }

// String returns the set in configuration syntax, for logging.
func (s IgnoreSet) String() string {
	if s.all {
		return "all"
	}
	if s.mask == 0 {
		return "none"
	}
	var names []string
	for _, c := range Categories() {
		if s.mask&(1<<c) != 0 {
			names = append(names, c.String())
		}
	}
	return strings.Join(names, ",")
}
