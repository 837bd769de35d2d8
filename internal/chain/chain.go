// Package chain implements the chain walker (component D): given an
// annotated root Symbol, it performs the depth-first traversal of spec.md
// §4.D, pushing a frame onto the path only when its pragma is non-empty,
// expanding array-typed frames to their selected indices, and yielding one
// Chain per root-to-leaf path.
//
// The walker is presented as a single materialized slice rather than a pull
// sequence (spec.md §9 notes the source's lazy generator becomes, here, an
// eagerly built slice per symbol — projects are small enough per-symbol that
// the laziness is not worth the API complexity it would add).
package chain

import (
	"fmt"

	"github.com/plcrecord/pvgen/internal/pragma"
	"github.com/plcrecord/pvgen/internal/tctypes"
)

// Frame is one level of a root-to-leaf path.
type Frame struct {
	Name       string // the symbol/subitem name at this level, or "[N]" for an array-index frame
	Pragma     pragma.Pragma
	HasPragma  bool
	ArrayIndex *int   // non-nil when this frame represents one selected index of an array-typed parent
	Suffix     string // pre-rendered PV suffix (e.g. ":00") for an array-index frame, honoring array:/expand:
}

// Chain is an ordered sequence of frames from the root Symbol down to a leaf
// having a primitive data type, a string, or an array of either.
type Chain struct {
	Frames   []Frame
	Symbol   *tctypes.Symbol
	LeafType LeafType
}

// LeafType describes the resolved terminal type of a Chain.
type LeafType struct {
	Family       tctypes.RecordFamily
	TypeName     string
	Array        *tctypes.ArrayInfo
	StringLength int // >0 when Family == FamilyString
	Enum         *tctypes.EnumInfo
	PointerDepth int
}

// TCName returns the dotted, fully-qualified path from the root symbol down
// to the leaf, skipping synthetic array-index frames (those are represented
// in the PV suffix, not the tcname's dot path, mirroring pytmc's tcname
// construction from symbol/subitem names only).
func (c *Chain) TCName() string {
	out := ""
	for _, f := range c.Frames {
		if f.ArrayIndex != nil {
			continue
		}
		if out == "" {
			out = f.Name
		} else {
			out += "." + f.Name
		}
	}
	return out
}

// Walker performs chain enumeration against a resolved type Index.
type Walker struct {
	Index *tctypes.Index
}

// NewWalker returns a Walker bound to idx.
func NewWalker(idx *tctypes.Index) *Walker {
	return &Walker{Index: idx}
}

// UnresolvedTypeError reports a type the walker could not resolve while
// descending a chain.
type UnresolvedTypeError struct {
	TypeName string
	Path     string
	Cause    error
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("chain: unresolved type %q at %s: %v", e.TypeName, e.Path, e.Cause)
}
func (e *UnresolvedTypeError) Unwrap() error { return e.Cause }

// UnsupportedTypeError reports a §4.B "unsupported" leaf (64-bit integers).
type UnsupportedTypeError struct {
	TypeName string
	Path     string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("chain: unsupported type %q at %s", e.TypeName, e.Path)
}

// Walk enumerates every root-to-leaf chain through sym. Chains whose root
// symbol pragma is empty are never produced (the caller is expected to have
// already filtered to annotated symbols, but Walk re-checks defensively).
// Non-fatal resolution failures along individual branches are returned as
// warnings rather than aborting the whole walk, so that other branches of
// the same symbol still yield chains.
func (w *Walker) Walk(sym *tctypes.Symbol) ([]*Chain, []error) {
	rootPragma, err := pragma.Parse(sym.Pragma)
	if err != nil {
		return nil, []error{fmt.Errorf("chain: symbol %q: %w", sym.Name, err)}
	}
	if rootPragma.Empty() {
		return nil, nil
	}

	root := Frame{Name: sym.Name, Pragma: rootPragma, HasPragma: true}
	var chains []*Chain
	var warnings []error

	w.descend(sym, sym.TypeName, sym.PointerDepth, sym.Array, []Frame{root}, sym.Name, &chains, &warnings)

	return chains, warnings
}

// descend walks from the current typed position (typeName/pointerDepth/array
// describe the *current* frame's declared type) down to leaves, appending
// completed Chains to *out.
func (w *Walker) descend(sym *tctypes.Symbol, typeName string, pointerDepth int, array *tctypes.ArrayInfo, frames []Frame, path string, out *[]*Chain, warnings *[]error) {
	// Pointers/references: treated as a scalar integer of platform word
	// size, per §4.B; never descended (cycle avoidance).
	if pointerDepth > 0 {
		*out = append(*out, &Chain{
			Frames: cloneFrames(frames),
			Symbol: sym,
			LeafType: LeafType{
				Family:       tctypes.FamilyLong,
				TypeName:     typeName,
				PointerDepth: pointerDepth,
			},
		})
		return
	}

	if tctypes.IsUnsupported64Bit(typeName) {
		*warnings = append(*warnings, &UnsupportedTypeError{TypeName: typeName, Path: path})
		return
	}

	if length, ok := tctypes.IsStringType(typeName); ok {
		*out = append(*out, &Chain{
			Frames: cloneFrames(frames),
			Symbol: sym,
			LeafType: LeafType{
				Family:       tctypes.FamilyString,
				TypeName:     typeName,
				Array:        array,
				StringLength: length,
			},
		})
		return
	}

	if transport, ok := tctypes.ResolveBuiltin(typeName); ok {
		*out = append(*out, &Chain{
			Frames: cloneFrames(frames),
			Symbol: sym,
			LeafType: LeafType{
				Family:   transport.Family,
				TypeName: typeName,
				Array:    array,
			},
		})
		return
	}

	// Not a built-in: must be a composite DataType.
	dt, warn, err := w.Index.Lookup(typeName, "")
	if err != nil {
		*warnings = append(*warnings, &UnresolvedTypeError{TypeName: typeName, Path: path, Cause: err})
		return
	}
	if warn {
		*warnings = append(*warnings, fmt.Errorf("chain: type %q resolved by bare name only at %s", typeName, path))
	}

	if dt.IsEnum() {
		*out = append(*out, &Chain{
			Frames: cloneFrames(frames),
			Symbol: sym,
			LeafType: LeafType{
				Family:   tctypes.FamilyEnum,
				TypeName: typeName,
				Array:    array,
				Enum:     dt.Enum,
			},
		})
		return
	}

	if array != nil {
		// Array of composite: expand into one branch per selected index,
		// then continue descending into the composite's subitems for each.
		// The array: and expand: keys are only meaningful on this level's
		// own pragma (the one already at the end of frames), per §4.D/§4.E.
		bound, ok := array.Primary()
		if !ok {
			return
		}
		levelPragma := frames[len(frames)-1].Pragma
		selector, expandFormat, err := arraySelectorAndFormat(levelPragma, bound)
		if err != nil {
			*warnings = append(*warnings, fmt.Errorf("chain: %s: %w", path, err))
			return
		}
		for _, idx := range selector.Resolve(bound.Lower, bound.Upper) {
			idxCopy := idx
			suffix := fmt.Sprintf(expandFormat, idx)
			idxFrame := Frame{Name: fmt.Sprintf("[%d]", idx), ArrayIndex: &idxCopy, Suffix: suffix}
			w.descendComposite(sym, dt, append(frames, idxFrame), fmt.Sprintf("%s[%d]", path, idx), out, warnings)
		}
		return
	}

	w.descendComposite(sym, dt, frames, path, out, warnings)
}

// descendComposite walks every subitem of dt (including inherited ones via
// its extends chain) that carries a non-empty pragma.
func (w *Walker) descendComposite(sym *tctypes.Symbol, dt *tctypes.DataType, frames []Frame, path string, out *[]*Chain, warnings *[]error) {
	subItems, err := w.Index.AllSubItems(dt)
	if err != nil {
		*warnings = append(*warnings, &UnresolvedTypeError{TypeName: dt.QualifiedName(), Path: path, Cause: err})
		return
	}
	for _, si := range subItems {
		p, err := pragma.Parse(si.Pragma)
		if err != nil {
			*warnings = append(*warnings, fmt.Errorf("chain: subitem %q at %s: %w", si.Name, path, err))
			continue
		}
		if p.Empty() {
			// §3 Chain invariant: no pragma at this level => no chain
			// descends through it.
			continue
		}
		f := Frame{Name: si.Name, Pragma: p, HasPragma: true}
		w.descend(sym, si.TypeName, si.PointerDepth, si.Array, append(frames, f), path+"."+si.Name, out, warnings)
	}
}

// arraySelectorAndFormat pulls the array: and expand: pairs (if present)
// out of a single frame's own pragma and resolves them against bound, per
// §3/§4.D. A bare array-typed frame with no array: selects every index; a
// bare frame with no expand: auto-sizes its suffix width to bound (§4.F).
func arraySelectorAndFormat(p pragma.Pragma, bound tctypes.Bound) (pragma.ArraySelector, string, error) {
	var arrayRaw, expandRaw string
	var haveArray, haveExpand bool
	for _, pair := range p.Pairs {
		switch pair.Key {
		case "array":
			if haveArray {
				return pragma.ArraySelector{}, "", fmt.Errorf("duplicate array: key")
			}
			arrayRaw, haveArray = pair.Value, true
		case "expand":
			if haveExpand {
				return pragma.ArraySelector{}, "", fmt.Errorf("duplicate expand: key")
			}
			expandRaw, haveExpand = pair.Value, true
		}
	}
	selector, err := pragma.ParseArraySelector(arrayRaw)
	if err != nil {
		return pragma.ArraySelector{}, "", err
	}
	format := pragma.AutoExpandFormat(bound.Lower, bound.Upper)
	if haveExpand {
		format = expandRaw
	}
	return selector, format, nil
}

func cloneFrames(frames []Frame) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	return out
}
