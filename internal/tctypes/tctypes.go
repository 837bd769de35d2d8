// Package tctypes implements the type resolver (component B): it
// reconstructs Symbol, DataType, SubItem, ArrayInfo, and EnumInfo from the
// generic xmlmodel tree, follows ExtendsType single-inheritance chains with
// a cycle guard, and maps built-in TwinCAT types onto the record-kind/DTYP
// table of spec.md §4.B.
package tctypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plcrecord/pvgen/internal/xmlmodel"
)

// Bound is one inclusive [lower, upper] array dimension.
type Bound struct {
	Lower, Upper int
}

// Count returns the number of elements spanned by this bound.
func (b Bound) Count() int {
	if b.Upper < b.Lower {
		return 0
	}
	return b.Upper - b.Lower + 1
}

// ArrayInfo is the resolved, possibly multi-dimensional, array shape of a
// Symbol or SubItem.
type ArrayInfo struct {
	Bounds []Bound
}

// ElementCount returns the cross-product of every dimension's count, per
// spec.md §3.
func (a ArrayInfo) ElementCount() int {
	if len(a.Bounds) == 0 {
		return 1
	}
	n := 1
	for _, b := range a.Bounds {
		n *= b.Count()
	}
	return n
}

// Primary returns the first (outermost) bound, which is the dimension the
// chain walker indexes over for array-of-composite expansion (§4.D).
func (a ArrayInfo) Primary() (Bound, bool) {
	if len(a.Bounds) == 0 {
		return Bound{}, false
	}
	return a.Bounds[0], true
}

// EnumValue is one (integer_value, text) pair of an EnumInfo.
type EnumValue struct {
	Value int
	Text  string
}

// EnumInfo is the ordered list of named integer values of an enumerated
// composite.
type EnumInfo struct {
	Values []EnumValue
}

// SubItem is a named member of a DataType.
type SubItem struct {
	Name         string
	TypeName     string // qualified name of the member's type
	BitOffset    int
	BitSize      int
	Array        *ArrayInfo
	PointerDepth int
	Pragma       string
	item         *xmlmodel.Item
}

// DataType is a named composite type.
type DataType struct {
	Name      string
	Namespace string
	GUID      string
	BitSize   int
	SubItems  []*SubItem
	Extends   *ExtendsType // single inheritance, per spec.md §3
	Enum      *EnumInfo
	item      *xmlmodel.Item
}

// QualifiedName returns "Namespace.Name", or bare Name when there is no
// namespace.
func (d *DataType) QualifiedName() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

// IsEnum reports whether this DataType carries enumeration values.
func (d *DataType) IsEnum() bool {
	return d.Enum != nil && len(d.Enum.Values) > 0
}

// ExtendsType records a single-inheritance link from a DataType to its base.
type ExtendsType struct {
	Namespace string
	TypeName  string
	GUID      string
}

// QualifiedName returns "Namespace.TypeName", or bare TypeName.
func (e ExtendsType) QualifiedName() string {
	if e.Namespace == "" {
		return e.TypeName
	}
	return e.Namespace + "." + e.TypeName
}

// Symbol is a named top-level datum within a runtime instance.
type Symbol struct {
	Name         string
	TypeName     string // qualified name of the declared type
	ModuleIndex  int
	ByteOffset   int
	BitSize      int
	Array        *ArrayInfo
	PointerDepth int
	Pragma       string
	item         *xmlmodel.Item
}

// RecordFamily classifies a resolved leaf type for record-kind selection
// (§4.B/§4.F), independent of direction or array-ness.
type RecordFamily string

const (
	FamilyBinary      RecordFamily = "binary"
	FamilyLong        RecordFamily = "long"
	FamilyAnalog      RecordFamily = "analog"
	FamilyEnum        RecordFamily = "enum"
	FamilyString      RecordFamily = "string"
	FamilyUnsupported RecordFamily = "unsupported"
)

// Transport is the scalar/waveform DTYP pairing for a built-in type.
type Transport struct {
	Family       RecordFamily
	ScalarDTYP   string
	ArrayDTYP    string
	ArrayFTVL    string
	FloatBits    int // 32 or 64, for analog/float families; 0 otherwise
}

// builtins is the §4.B type table. Keys are bare TwinCAT type names; pointer
// and reference types never appear here directly (see PointerDepth on
// Symbol/SubItem, handled by the resolver as a platform-word-size integer).
var builtins = map[string]Transport{
	"BOOL":  {Family: FamilyBinary, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt8ArrayIn", ArrayFTVL: "CHAR"},
	"BYTE":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt8ArrayIn", ArrayFTVL: "CHAR"},
	"SINT":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt8ArrayIn", ArrayFTVL: "CHAR"},
	"USINT": {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt8ArrayIn", ArrayFTVL: "CHAR"},
	"WORD":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt16ArrayIn", ArrayFTVL: "SHORT"},
	"INT":   {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt16ArrayIn", ArrayFTVL: "SHORT"},
	"UINT":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt16ArrayIn", ArrayFTVL: "SHORT"},
	"ENUM":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt16ArrayIn", ArrayFTVL: "SHORT"},
	"DWORD": {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt32ArrayIn", ArrayFTVL: "LONG"},
	"DINT":  {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt32ArrayIn", ArrayFTVL: "LONG"},
	"UDINT": {Family: FamilyLong, ScalarDTYP: "asynInt32", ArrayDTYP: "asynInt32ArrayIn", ArrayFTVL: "LONG"},
	"REAL":  {Family: FamilyAnalog, ScalarDTYP: "asynFloat64", ArrayDTYP: "asynFloat32ArrayIn", ArrayFTVL: "FLOAT", FloatBits: 32},
	"LREAL": {Family: FamilyAnalog, ScalarDTYP: "asynFloat64", ArrayDTYP: "asynFloat64ArrayIn", ArrayFTVL: "DOUBLE", FloatBits: 64},
}

// unsupported64Bit is the §4.B "unsupported" row: 64-bit integers.
var unsupported64Bit = map[string]bool{
	"LWORD": true, "LINT": true, "ULINT": true,
}

// ResolveBuiltin returns the Transport for a bare built-in type name, or
// ok=false if the name is not a recognized built-in (it may be a composite
// needing DataType resolution instead, or an unsupported 64-bit integer).
func ResolveBuiltin(typeName string) (Transport, bool) {
	t, ok := builtins[strings.ToUpper(typeName)]
	return t, ok
}

// IsUnsupported64Bit reports whether typeName is one of the §4.B unsupported
// 64-bit integer types, which must be skipped with a diagnostic (§7
// UnsupportedType).
func IsUnsupported64Bit(typeName string) bool {
	return unsupported64Bit[strings.ToUpper(typeName)]
}

// stringLength recognizes "STRING" and "STRING(n)" leaf type declarations.
func stringLength(typeName string) (int, bool) {
	up := strings.ToUpper(typeName)
	if !strings.HasPrefix(up, "STRING") {
		return 0, false
	}
	rest := strings.TrimPrefix(up, "STRING")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return 80, true // TwinCAT's default STRING length
	}
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsStringType reports whether typeName is a STRING(n) declaration and
// returns its declared length.
func IsStringType(typeName string) (length int, ok bool) {
	return stringLength(typeName)
}

// Index is the resolved symbol table built from a project's XML tree: every
// DataType keyed by qualified name and (when present) GUID, per §4.B's
// resolution preference (by-GUID, then fully-qualified name, then bare name
// as a last resort with a warning).
type Index struct {
	byQualifiedName map[string]*DataType
	byGUID          map[string]*DataType
	byBareName      map[string][]*DataType // last-resort lookup; may be ambiguous
}

// BuildIndex walks the project XML's DataTypes container and resolves every
// DataType into the Index.
func BuildIndex(root *xmlmodel.Item) *Index {
	idx := &Index{
		byQualifiedName: make(map[string]*DataType),
		byGUID:          make(map[string]*DataType),
		byBareName:      make(map[string][]*DataType),
	}
	for _, dtItem := range findAll(root, "DataType") {
		dt := resolveDataTypeShallow(dtItem)
		idx.register(dt)
	}
	// Second pass: resolve SubItem types and Extends links now that every
	// DataType name is registered (handles forward references).
	for _, dtItem := range findAll(root, "DataType") {
		dt := idx.lookupShallow(dtItem)
		if dt == nil {
			continue
		}
		resolveDataTypeDeep(dtItem, dt, idx)
	}
	return idx
}

func (idx *Index) register(dt *DataType) {
	idx.byQualifiedName[dt.QualifiedName()] = dt
	if dt.GUID != "" {
		idx.byGUID[dt.GUID] = dt
	}
	idx.byBareName[dt.Name] = append(idx.byBareName[dt.Name], dt)
}

func (idx *Index) lookupShallow(dtItem *xmlmodel.Item) *DataType {
	name := dtItem.AttrOr("Name", "")
	if nameChild := dtItem.FirstChildByTag("Name"); nameChild != nil {
		name = nameChild.TrimmedText()
	}
	for _, dt := range idx.byBareName[name] {
		if dt.item == dtItem {
			return dt
		}
	}
	return nil
}

func resolveDataTypeShallow(item *xmlmodel.Item) *DataType {
	dt := &DataType{item: item}
	nameItem := item.FirstChildByTag("Name")
	if nameItem != nil {
		dt.Name = nameItem.TrimmedText()
		dt.Namespace = nameItem.AttrOr("Namespace", "")
		dt.GUID = nameItem.AttrOr("GUID", "")
	} else {
		dt.Name = item.AttrOr("Name", "")
	}
	if bs := item.FirstChildByTag("BitSize"); bs != nil {
		dt.BitSize, _ = strconv.Atoi(bs.TrimmedText())
	}
	return dt
}

func resolveDataTypeDeep(item *xmlmodel.Item, dt *DataType, idx *Index) {
	if ext := item.FirstChildByTag("ExtendsType"); ext != nil {
		dt.Extends = &ExtendsType{
			Namespace: ext.AttrOr("Namespace", ""),
			TypeName:  ext.TrimmedText(),
			GUID:      ext.AttrOr("GUID", ""),
		}
	}
	if ei := item.FirstChildByTag("EnumInfo"); ei != nil {
		dt.Enum = resolveEnumInfo(item)
	}
	for _, siItem := range item.ChildrenByTag("SubItem") {
		dt.SubItems = append(dt.SubItems, resolveSubItem(siItem))
	}
}

func resolveEnumInfo(dtItem *xmlmodel.Item) *EnumInfo {
	ei := &EnumInfo{}
	for _, entry := range dtItem.ChildrenByTag("EnumInfo") {
		var text string
		var value int
		if t := entry.FirstChildByTag("Text"); t != nil {
			text = t.TrimmedText()
		}
		if v := entry.FirstChildByTag("Enum"); v != nil {
			value, _ = strconv.Atoi(v.TrimmedText())
		}
		ei.Values = append(ei.Values, EnumValue{Value: value, Text: text})
	}
	return ei
}

func resolveSubItem(item *xmlmodel.Item) *SubItem {
	si := &SubItem{item: item}
	if n := item.FirstChildByTag("Name"); n != nil {
		si.Name = n.TrimmedText()
	} else {
		si.Name = item.AttrOr("Name", "")
	}
	if t := item.FirstChildByTag("Type"); t != nil {
		si.TypeName = qualifiedTypeOf(t)
		si.PointerDepth = pointerDepthOf(t)
	}
	if bo := item.FirstChildByTag("BitOffs"); bo != nil {
		si.BitOffset, _ = strconv.Atoi(bo.TrimmedText())
	}
	if bs := item.FirstChildByTag("BitSize"); bs != nil {
		si.BitSize, _ = strconv.Atoi(bs.TrimmedText())
	}
	if ai := item.FirstChildByTag("ArrayInfo"); ai != nil {
		si.Array = resolveArrayInfo(ai)
	}
	si.Pragma = pragmaOf(item)
	return si
}

func resolveArrayInfo(item *xmlmodel.Item) *ArrayInfo {
	lbound := 0
	if lb := item.FirstChildByTag("LBound"); lb != nil {
		lbound, _ = strconv.Atoi(lb.TrimmedText())
	}
	elements := 1
	if el := item.FirstChildByTag("Elements"); el != nil {
		elements, _ = strconv.Atoi(el.TrimmedText())
	}
	ubound := lbound + elements - 1
	if ub := item.FirstChildByTag("UBound"); ub != nil {
		ubound, _ = strconv.Atoi(ub.TrimmedText())
	}
	return &ArrayInfo{Bounds: []Bound{{Lower: lbound, Upper: ubound}}}
}

func qualifiedTypeOf(typeItem *xmlmodel.Item) string {
	ns := typeItem.AttrOr("Namespace", "")
	name := typeItem.TrimmedText()
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func pointerDepthOf(typeItem *xmlmodel.Item) int {
	v := typeItem.AttrOr("PointerTo", "0")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// pragmaOf extracts the pytmc-tagged pragma value from an item's
// Properties/Property[Name=pytmc]/Value child, per pytmc's TMC schema.
func pragmaOf(item *xmlmodel.Item) string {
	props := item.FirstChildByTag("Properties")
	if props == nil {
		return ""
	}
	for _, prop := range props.ChildrenByTag("Property") {
		name := ""
		if n := prop.FirstChildByTag("Name"); n != nil {
			name = n.TrimmedText()
		}
		if name != "pytmc" && name != "plcAttribute_pytmc" {
			continue
		}
		if v := prop.FirstChildByTag("Value"); v != nil {
			return v.TrimmedText()
		}
		return prop.TrimmedText()
	}
	return ""
}

func findAll(root *xmlmodel.Item, tag string) []*xmlmodel.Item {
	var out []*xmlmodel.Item
	var walk func(*xmlmodel.Item)
	walk = func(it *xmlmodel.Item) {
		if it.Tag == tag {
			out = append(out, it)
		}
		for _, c := range it.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// ResolveSymbols walks the project XML's Module/DataArea containers and
// resolves every top-level Symbol.
func ResolveSymbols(root *xmlmodel.Item) []*Symbol {
	var out []*Symbol
	for _, sItem := range findAll(root, "Symbol") {
		out = append(out, resolveSymbol(sItem))
	}
	return out
}

func resolveSymbol(item *xmlmodel.Item) *Symbol {
	s := &Symbol{item: item}
	if n := item.FirstChildByTag("Name"); n != nil {
		s.Name = n.TrimmedText()
	} else {
		s.Name = item.AttrOr("Name", "")
	}
	if bt := item.FirstChildByTag("BaseType"); bt != nil {
		s.TypeName = qualifiedTypeOf(bt)
		s.PointerDepth = pointerDepthOf(bt)
	}
	if bo := item.FirstChildByTag("BitOffs"); bo != nil {
		s.ByteOffset, _ = strconv.Atoi(bo.TrimmedText())
	}
	if bs := item.FirstChildByTag("BitSize"); bs != nil {
		s.BitSize, _ = strconv.Atoi(bs.TrimmedText())
	}
	if ai := item.FirstChildByTag("ArrayInfo"); ai != nil {
		s.Array = resolveArrayInfo(ai)
	}
	s.Pragma = pragmaOf(item)
	return s
}

// Lookup resolves a qualified or bare type name to a DataType, preferring
// GUID, then qualified name, then bare name as a last resort (returning
// warn=true when the bare-name fallback was used, per §4.B).
func (idx *Index) Lookup(qualifiedName, guid string) (dt *DataType, warn bool, err error) {
	if guid != "" {
		if dt, ok := idx.byGUID[guid]; ok {
			return dt, false, nil
		}
	}
	if dt, ok := idx.byQualifiedName[qualifiedName]; ok {
		return dt, false, nil
	}
	bare := qualifiedName
	if i := strings.LastIndexByte(bare, '.'); i >= 0 {
		bare = bare[i+1:]
	}
	if candidates := idx.byBareName[bare]; len(candidates) > 0 {
		return candidates[0], true, nil
	}
	return nil, false, fmt.Errorf("tctypes: unresolved type %q", qualifiedName)
}

// ResolveExtends follows dt.Extends with a cycle guard, returning the full
// single-inheritance chain from dt up through its bases (dt itself first).
func (idx *Index) ResolveExtends(dt *DataType) ([]*DataType, error) {
	chain := []*DataType{dt}
	seen := map[*DataType]bool{dt: true}
	cur := dt
	for cur.Extends != nil {
		base, _, err := idx.Lookup(cur.Extends.QualifiedName(), cur.Extends.GUID)
		if err != nil {
			return chain, fmt.Errorf("tctypes: extends chain for %q: %w", dt.QualifiedName(), err)
		}
		if seen[base] {
			return chain, fmt.Errorf("tctypes: cycle detected in extends chain at %q", base.QualifiedName())
		}
		seen[base] = true
		chain = append(chain, base)
		cur = base
	}
	return chain, nil
}

// AllSubItems returns dt's own SubItems plus every inherited SubItem from
// its extends chain (base members first, so overrides by name later in the
// chain would win were pytmc-style shadowing ever introduced; today the
// source format does not redeclare inherited members).
func (idx *Index) AllSubItems(dt *DataType) ([]*SubItem, error) {
	chain, err := idx.ResolveExtends(dt)
	if err != nil {
		return nil, err
	}
	var items []*SubItem
	for i := len(chain) - 1; i >= 0; i-- {
		items = append(items, chain[i].SubItems...)
	}
	return items, nil
}
