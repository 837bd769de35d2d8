// Package mergeconfig implements the configuration merger (component E):
// given a chain.Chain, it splits each frame's pragma at every "pv" key into
// per-PV segments, then merges those segments in declaration order using
// the per-key combine rules of spec.md §4.E into one or more concrete
// Config values, one per record ultimately emitted.
package mergeconfig

import (
	"fmt"
	"strings"

	"github.com/plcrecord/pvgen/internal/chain"
	"github.com/plcrecord/pvgen/internal/pragma"
)

// Config is one fully merged, concrete configuration: everything needed by
// the record package builder to emit a single record family for one chain.
type Config struct {
	TCName string
	PVName string

	IO            pragma.Direction
	Update        pragma.Update
	Archive       *pragma.Archive
	ArchiveFields []string

	AutosavePass0       []string
	AutosavePass1       []string
	AutosaveInputPass0  []string
	AutosaveInputPass1  []string
	AutosaveOutputPass0 []string
	AutosaveOutputPass1 []string

	Fields map[string]string // later-level field: overrides accumulate here, FIELD_NAME -> value
	Link   string
	Scale  string
	Offset string

	MacroCharacter byte
	TypeOverride   string
	Str            string

	ArraySelector *pragma.ArraySelector // from array:, meaningful only at the array-typed level
	ExpandFormat  string                // from expand:, meaningful only at the array-typed level

	ArraySuffix string // left empty by Merge: an array-index frame's suffix is spliced into PVName instead
}

// InvalidChainError reports a chain whose merged configuration is unusable:
// missing pv, conflicting array/expand, or (detected by the records
// builder, not here) an oversized name.
type InvalidChainError struct {
	TCName string
	Reason string
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("mergeconfig: invalid chain %q: %s", e.TCName, e.Reason)
}

// segment is one pv-delimited slice of a single frame's pragma pairs.
type segment struct {
	pvToken string // empty if this frame contributed no "pv" key at all
	hasPV   bool
	pairs   []pragma.Pair
}

// frameSlot records, for one frame of the chain in its original order,
// whether it is an array-index frame carrying a pre-rendered PV suffix or a
// pragma-bearing frame whose segments participate in the cartesian product.
type frameSlot struct {
	isSuffix bool
	suffix   string
}

// splitByPV breaks one frame's ordered pairs into per-PV segments, per
// §4.E ("the merger first splits each item's pragma at every pv key into
// per-PV segments").
func splitByPV(p pragma.Pragma) []segment {
	var segs []segment
	var cur *segment
	for _, pair := range p.Pairs {
		if pair.Key == "pv" {
			segs = append(segs, segment{pvToken: pair.Value, hasPV: true})
			cur = &segs[len(segs)-1]
			continue
		}
		if cur == nil {
			segs = append(segs, segment{})
			cur = &segs[len(segs)-1]
		}
		cur.pairs = append(cur.pairs, pair)
	}
	return segs
}

// Merge expands c into one or more Configs (multi-PV pragmas at any level
// multiply the result) and returns the normalized configuration per record
// slated for emission.
func Merge(c *chain.Chain) ([]*Config, error) {
	tcname := c.TCName()

	// Build, per frame in the chain's original order, the list of per-PV
	// segments a pragma-bearing frame contributes, and record where each
	// array-index frame's pre-rendered PV suffix (computed by the chain
	// walker, honoring array:/expand:) falls in that same sequence. The
	// suffix belongs to the array-typed frame's own PV position — it must
	// be spliced in there, not appended after every deeper pv: token, per
	// pytmc's idx_config['pv'] += suffix happening before deeper subitem
	// configs are joined in.
	var perFrame [][]segment
	var slots []frameSlot
	for _, f := range c.Frames {
		if f.ArrayIndex != nil {
			slots = append(slots, frameSlot{isSuffix: true, suffix: f.Suffix})
			continue
		}
		perFrame = append(perFrame, splitByPV(f.Pragma))
		slots = append(slots, frameSlot{})
	}

	// Cartesian product across frames' segment lists, combined in
	// declaration order (root frame's segments first).
	combos := cartesian(perFrame)

	var results []*Config
	for _, combo := range combos {
		cfg, err := mergeCombo(tcname, slots, combo)
		if err != nil {
			return nil, err
		}
		if cfg.PVName == "" {
			return nil, &InvalidChainError{TCName: tcname, Reason: "no pv key produced a non-empty PV name"}
		}
		if strings.Contains(cfg.PVName, "::") || strings.HasPrefix(cfg.PVName, ":") || strings.HasSuffix(cfg.PVName, ":") {
			return nil, &InvalidChainError{TCName: tcname, Reason: fmt.Sprintf("malformed PV name %q", cfg.PVName)}
		}
		results = append(results, cfg)
	}
	return results, nil
}

func cartesian(perFrame [][]segment) [][]segment {
	if len(perFrame) == 0 {
		return nil
	}
	result := [][]segment{{}}
	for _, options := range perFrame {
		if len(options) == 0 {
			continue
		}
		var next [][]segment
		for _, r := range result {
			for _, opt := range options {
				combo := append(append([]segment{}, r...), opt)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

func mergeCombo(tcname string, slots []frameSlot, combo []segment) (*Config, error) {
	cfg := &Config{
		TCName:         tcname,
		Fields:         map[string]string{},
		MacroCharacter: '@',
	}

	var pvName string
	archiveFieldsSeen := map[string]bool{}
	autosaveSeen := map[string]map[string]bool{
		"pass0":  {},
		"pass1":  {},
		"ipass0": {},
		"ipass1": {},
		"opass0": {},
		"opass1": {},
	}
	var sawArray, sawExpand bool

	comboIdx := 0
	for _, slot := range slots {
		if slot.isSuffix {
			// The array-index frame's suffix attaches directly to the PV
			// name accumulated so far (it already carries its own leading
			// ':'), at its structural position, not after later levels.
			pvName += slot.suffix
			continue
		}
		seg := combo[comboIdx]
		comboIdx++

		if seg.hasPV && seg.pvToken != "" {
			if pvName == "" {
				pvName = seg.pvToken
			} else {
				pvName += ":" + seg.pvToken
			}
		}
		for _, pair := range seg.pairs {
			switch pair.Key {
			case "io":
				dir, err := pragma.NormalizeIO(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("mergeconfig: %s: %w", tcname, err)
				}
				cfg.IO = dir
			case "field":
				name, value := pragma.SplitField(pair.Value)
				cfg.Fields[name] = value
			case "update":
				u, err := pragma.ParseUpdate(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("mergeconfig: %s: %w", tcname, err)
				}
				cfg.Update = u
			case "archive":
				a, err := pragma.ParseArchive(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("mergeconfig: %s: %w", tcname, err)
				}
				cfg.Archive = &a
			case "archive_fields":
				cfg.ArchiveFields = unionAppend(cfg.ArchiveFields, archiveFieldsSeen, pragma.SplitWords(pair.Value))
			case "autosave_pass0":
				cfg.AutosavePass0 = unionAppend(cfg.AutosavePass0, autosaveSeen["pass0"], pragma.SplitWords(pair.Value))
			case "autosave_pass1":
				cfg.AutosavePass1 = unionAppend(cfg.AutosavePass1, autosaveSeen["pass1"], pragma.SplitWords(pair.Value))
			case "autosave_input_pass0":
				cfg.AutosaveInputPass0 = unionAppend(cfg.AutosaveInputPass0, autosaveSeen["ipass0"], pragma.SplitWords(pair.Value))
			case "autosave_input_pass1":
				cfg.AutosaveInputPass1 = unionAppend(cfg.AutosaveInputPass1, autosaveSeen["ipass1"], pragma.SplitWords(pair.Value))
			case "autosave_output_pass0":
				cfg.AutosaveOutputPass0 = unionAppend(cfg.AutosaveOutputPass0, autosaveSeen["opass0"], pragma.SplitWords(pair.Value))
			case "autosave_output_pass1":
				cfg.AutosaveOutputPass1 = unionAppend(cfg.AutosaveOutputPass1, autosaveSeen["opass1"], pragma.SplitWords(pair.Value))
			case "link":
				cfg.Link = pair.Value
			case "str":
				cfg.Str = pair.Value
			case "scale":
				cfg.Scale = pair.Value
			case "offset":
				cfg.Offset = pair.Value
			case "macro_character":
				if pair.Value != "" {
					cfg.MacroCharacter = pair.Value[0]
				}
			case "type":
				cfg.TypeOverride = pair.Value
			case "array":
				if sawArray {
					return nil, &InvalidChainError{TCName: tcname, Reason: "conflicting array: keys across chain levels"}
				}
				sawArray = true
				sel, err := pragma.ParseArraySelector(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("mergeconfig: %s: %w", tcname, err)
				}
				cfg.ArraySelector = &sel
			case "expand":
				if sawExpand {
					return nil, &InvalidChainError{TCName: tcname, Reason: "conflicting expand: keys across chain levels"}
				}
				sawExpand = true
				cfg.ExpandFormat = pair.Value
			default:
				// Unknown keys are ignored. Neither the merger nor the
				// pipeline raises a diagnostic for them.
			}
		}
	}

	cfg.PVName = pvName
	return cfg, nil
}


// unionAppend implements the "set-union across levels, order by first
// occurrence" rule for autosave lists and archive_fields (§4.E).
func unionAppend(existing []string, seen map[string]bool, add []string) []string {
	for _, v := range add {
		if !seen[v] {
			seen[v] = true
			existing = append(existing, v)
		}
	}
	return existing
}
