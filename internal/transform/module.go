package transform

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ModuleKind is the module system the host compiler emits.
type ModuleKind int

const (
	ModuleUnset ModuleKind = iota
	ModuleNone
	ModuleCommonJS
	ModuleAMD
	ModuleUMD
	ModuleSystem
	ModuleES2015
	ModuleES2020
	ModuleES2022
	ModuleESNext
	ModuleNode16
	ModuleNode18
	ModuleNodeNext
	ModulePreserve
)

var moduleNames = map[ModuleKind]string{
	ModuleUnset:    "unset",
	ModuleNone:     "none",
	ModuleCommonJS: "commonjs",
	ModuleAMD:      "amd",
	ModuleUMD:      "umd",
	ModuleSystem:   "system",
	ModuleES2015:   "es2015",
	ModuleES2020:   "es2020",
	ModuleES2022:   "es2022",
	ModuleESNext:   "esnext",
	ModuleNode16:   "node16",
	ModuleNode18:   "node18",
	ModuleNodeNext: "nodenext",
	ModulePreserve: "preserve",
}

func (m ModuleKind) String() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ModuleKind(%d)", int(m))
}

// ParseModuleKind parses a tsconfig "module" value. Matching is case
// insensitive and the empty string means unset.
func ParseModuleKind(s string) (ModuleKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return ModuleUnset, nil
	case "es6":
		return ModuleES2015, nil
	}
	for kind, name := range moduleNames {
		if kind != ModuleUnset && name == s {
			return kind, nil
		}
	}
	return ModuleUnset, errors.Newf("unknown module kind %q", s)
}

// ScriptTarget is the language level the host compiler emits.
type ScriptTarget int

const (
	TargetUnset ScriptTarget = iota
	TargetES3
	TargetES5
	TargetES2015
	TargetES2016
	TargetES2017
	TargetES2018
	TargetES2019
	TargetES2020
	TargetES2021
	TargetES2022
	TargetES2023
	TargetES2024
	TargetESNext
)

var targetNames = map[ScriptTarget]string{
	TargetUnset:  "unset",
	TargetES3:    "es3",
	TargetES5:    "es5",
	TargetES2015: "es2015",
	TargetES2016: "es2016",
	TargetES2017: "es2017",
	TargetES2018: "es2018",
	TargetES2019: "es2019",
	TargetES2020: "es2020",
	TargetES2021: "es2021",
	TargetES2022: "es2022",
	TargetES2023: "es2023",
	TargetES2024: "es2024",
	TargetESNext: "esnext",
}

func (t ScriptTarget) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ScriptTarget(%d)", int(t))
}

// ParseScriptTarget parses a tsconfig "target" value.
func ParseScriptTarget(s string) (ScriptTarget, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return TargetUnset, nil
	case "es6":
		return TargetES2015, nil
	}
	for target, name := range targetNames {
		if target != TargetUnset && name == s {
			return target, nil
		}
	}
	return TargetUnset, errors.Newf("unknown script target %q", s)
}

// CompilerOptions are the host compiler settings the transform depends on.
type CompilerOptions struct {
	Module ModuleKind
	Target ScriptTarget
}

// EmitsCommonJS reports whether the host output has a mutable `exports`
// table: either module is commonjs, or module is unset and the target is
// old enough that the compiler defaults to commonjs.
func (o CompilerOptions) EmitsCommonJS() bool {
	switch o.Module {
	case ModuleCommonJS:
		return true
	case ModuleUnset:
		switch o.Target {
		case TargetUnset, TargetES3, TargetES5:
			return true
		}
	}
	return false
}

// ErrUnsupportedModuleTarget matches every *UnsupportedModuleTargetError.
var ErrUnsupportedModuleTarget = errors.New("unsupported module target")

// UnsupportedModuleTargetError is returned by New when the host does not
// emit CommonJS.
type UnsupportedModuleTargetError struct {
	Module ModuleKind
	Target ScriptTarget
}

func (e *UnsupportedModuleTargetError) Error() string {
	if e.Module == ModuleUnset {
		return fmt.Sprintf("%s: module is unset and target %s does not default to commonjs", ErrUnsupportedModuleTarget, e.Target)
	}
	return fmt.Sprintf("%s: %s (only commonjs output can be rewritten)", ErrUnsupportedModuleTarget, e.Module)
}

func (e *UnsupportedModuleTargetError) Unwrap() error {
	return ErrUnsupportedModuleTarget
}

// CheckModuleTarget returns an *UnsupportedModuleTargetError unless opts
// produce CommonJS output.
func CheckModuleTarget(opts CompilerOptions) error {
	if opts.EmitsCommonJS() {
		return nil
	}
	return &UnsupportedModuleTargetError{Module: opts.Module, Target: opts.Target}
}
