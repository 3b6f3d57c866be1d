package module

import (
	"sort"

	"github.com/sbclang/sbcvm/sbcerr"
)

// Validate runs the structural checks spec.md §4.1 requires before a module
// may be handed to the verifier: section disjointness, unknown sections,
// cross-table id references, duplicate imports/exports, and function code
// range integrity. It never inspects opcode semantics; that is verify's job.
func Validate(m *Module) error {
	if err := validateSectionShape(m); err != nil {
		return err
	}
	if err := validateTypesAndFields(m); err != nil {
		return err
	}
	if err := validateSignatures(m); err != nil {
		return err
	}
	if err := validateMethods(m); err != nil {
		return err
	}
	if err := validateGlobals(m); err != nil {
		return err
	}
	if err := validateFunctions(m); err != nil {
		return err
	}
	if err := validateImportsExports(m); err != nil {
		return err
	}
	if err := validateDebug(m); err != nil {
		return err
	}
	return nil
}

// validateSectionShape checks the invariants that survive into the decoded
// Module: the entry method must name a real function, and stack_max must
// be nonzero once defaulted. Section-table-level checks (alignment,
// unknown ids, byte-range overlap) run in decode() itself, against the raw
// on-disk ranges before the loader slices them into typed tables.
func validateSectionShape(m *Module) error {
	if m.Header.EffectiveStackMax() == 0 {
		return sbcerr.Load(sbcerr.KindBadOffset, "stack_max resolves to zero")
	}
	if _, ok := m.FunctionByMethodID(m.Header.EntryMethodID); !ok {
		return sbcerr.Load(sbcerr.KindIndexOutOfRange, "entry_method_id %d has no function", m.Header.EntryMethodID)
	}
	return nil
}

func validateTypesAndFields(m *Module) error {
	for i, f := range m.Fields {
		if int(f.TypeID) >= len(m.Types) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "field %d: type_id %d out of range", i, f.TypeID)
		}
		if _, err := stringAt(m.Consts.StringBlob, f.NameStr); err != nil {
			return sbcerr.LoadWrap(sbcerr.KindInvalidUTF8, err, "field %d name_str", i)
		}
	}
	for i, t := range m.Types {
		if t.Kind == KindRef {
			continue
		}
		if t.Kind > KindRef {
			return sbcerr.Load(sbcerr.KindBadConstTag, "type %d: unknown kind %d", i, t.Kind)
		}
		if t.FieldCount == 0 {
			continue
		}
		if int(t.FieldStart)+int(t.FieldCount) > len(m.Fields) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "type %d: field range [%d,%d) out of range", i, t.FieldStart, t.FieldStart+t.FieldCount)
		}
	}
	return nil
}

func validateSignatures(m *Module) error {
	for i, s := range m.Sigs {
		if s.RetTypeID != VoidRet && int(s.RetTypeID) >= len(m.Types) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "signature %d: ret_type_id %d out of range", i, s.RetTypeID)
		}
		for j, p := range s.ParamTypes {
			if int(p) >= len(m.Types) {
				return sbcerr.Load(sbcerr.KindIndexOutOfRange, "signature %d param %d: type_id %d out of range", i, j, p)
			}
		}
	}
	return nil
}

func validateMethods(m *Module) error {
	for i, meth := range m.Methods {
		if int(meth.SigID) >= len(m.Sigs) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "method %d: sig_id %d out of range", i, meth.SigID)
		}
		if _, err := stringAt(m.Consts.StringBlob, meth.NameStr); err != nil {
			return sbcerr.LoadWrap(sbcerr.KindInvalidUTF8, err, "method %d name_str", i)
		}
	}
	return nil
}

func validateGlobals(m *Module) error {
	for i, g := range m.Globals {
		if int(g.TypeID) >= len(m.Types) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "global %d: type_id %d out of range", i, g.TypeID)
		}
		if g.HasInit && int(g.InitConstID) >= len(m.Consts.Entries) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "global %d: init_const_id %d out of range", i, g.InitConstID)
		}
	}
	return nil
}

func validateFunctions(m *Module) error {
	seen := make(map[uint32]bool, len(m.Functions))
	type codeRange struct{ start, end, idx uint32 }
	ranges := make([]codeRange, 0, len(m.Functions))

	for i, fn := range m.Functions {
		if int(fn.MethodID) >= len(m.Methods) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "function %d: method_id %d out of range", i, fn.MethodID)
		}
		if seen[fn.MethodID] {
			return sbcerr.Load(sbcerr.KindDuplicateImport, "function %d: duplicate method_id %d", i, fn.MethodID)
		}
		seen[fn.MethodID] = true
		if uint64(fn.CodeOffset)+uint64(fn.CodeSize) > uint64(len(m.Code)) {
			return sbcerr.Load(sbcerr.KindOutOfBounds, "function %d: code range runs past code section", i)
		}
		ranges = append(ranges, codeRange{fn.CodeOffset, fn.CodeOffset + fn.CodeSize, uint32(i)})
	}

	sort.Slice(ranges, func(a, b int) bool { return ranges[a].start < ranges[b].start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].start < ranges[i-1].end {
			return sbcerr.Load(sbcerr.KindSectionOverlap, "functions %d and %d have overlapping code ranges", ranges[i-1].idx, ranges[i].idx)
		}
	}
	return nil
}

func validateImportsExports(m *Module) error {
	type key struct{ mod, sym uint32 }
	seen := make(map[key]bool, len(m.Imports))
	for i, im := range m.Imports {
		if _, err := stringAt(m.Consts.StringBlob, im.ModuleStr); err != nil {
			return sbcerr.LoadWrap(sbcerr.KindInvalidUTF8, err, "import %d module_str", i)
		}
		if _, err := stringAt(m.Consts.StringBlob, im.SymbolStr); err != nil {
			return sbcerr.LoadWrap(sbcerr.KindInvalidUTF8, err, "import %d symbol_str", i)
		}
		if int(im.Target) >= len(m.Sigs) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "import %d: sig_id %d out of range", i, im.Target)
		}
		k := key{im.ModuleStr, im.SymbolStr}
		if seen[k] {
			return sbcerr.Load(sbcerr.KindDuplicateImport, "import %d: duplicate (module,symbol)", i)
		}
		seen[k] = true
	}

	seenExp := make(map[uint32]bool, len(m.Exports))
	for i, ex := range m.Exports {
		if _, err := stringAt(m.Consts.StringBlob, ex.SymbolStr); err != nil {
			return sbcerr.LoadWrap(sbcerr.KindInvalidUTF8, err, "export %d symbol_str", i)
		}
		if int(ex.Target) >= len(m.Functions) {
			return sbcerr.Load(sbcerr.KindIndexOutOfRange, "export %d: func_id %d out of range", i, ex.Target)
		}
		if seenExp[ex.SymbolStr] {
			return sbcerr.Load(sbcerr.KindDuplicateImport, "export %d: duplicate symbol", i)
		}
		seenExp[ex.SymbolStr] = true
	}
	return nil
}

func validateDebug(m *Module) error {
	if m.Debug == nil {
		return nil
	}
	for i, e := range m.Debug.Entries {
		if uint64(e.PCEnd) > uint64(len(m.Code)) {
			return sbcerr.Load(sbcerr.KindOutOfBounds, "debug entry %d: pc_end past code section", i)
		}
	}
	return nil
}
