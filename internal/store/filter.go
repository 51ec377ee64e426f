package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"qstore/internal/intern"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// filterProgram is a compiled FindEntities predicate. Field paths
// like "A->B" are rewritten to placeholder identifiers before
// compiling (expr-lang's lexer does not accept "->" inside an
// identifier), then resolved per-candidate at Eval time through the
// Indirection Resolver. Quoted string literals are left untouched.
// Compiled programs are cached by source text on first use.
type filterProgram struct {
	compiled *vm.Program
	paths    map[string][]intern.FieldType // placeholder -> field path
}

var pathPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[A-Za-z_][A-Za-z0-9_]*(?:->[A-Za-z_][A-Za-z0-9_]*)*`)

// filterKeywords are expr-lang/Go-like tokens that must not be
// rewritten even though they match pathPattern.
var filterKeywords = map[string]bool{
	"true": true, "false": true, "nil": true,
	"and": true, "or": true, "not": true, "in": true,
}

func (s *Store) compileFilter(src string) (*filterProgram, error) {
	if cached, ok := s.filterCache.Load(src); ok {
		return cached.(*filterProgram), nil
	}

	paths := make(map[string][]intern.FieldType)
	n := 0
	unknown := ""
	rewritten := pathPattern.ReplaceAllStringFunc(src, func(tok string) string {
		if filterKeywords[tok] || tok[0] == '"' || tok[0] == '\'' {
			return tok
		}
		// A bare identifier (no "->") is still a one-element field path.
		parts := strings.Split(tok, intern.IndirectionDelimiter)
		fieldPath := make([]intern.FieldType, 0, len(parts))
		for _, p := range parts {
			ft, ok := s.interner.GetFieldType(p)
			if !ok && unknown == "" {
				// Unknown field name: the whole filter is rejected
				// below rather than silently matching nothing.
				unknown = p
			}
			fieldPath = append(fieldPath, ft)
		}
		placeholder := fmt.Sprintf("__p%d", n)
		n++
		paths[placeholder] = fieldPath
		return placeholder
	})
	if unknown != "" {
		return nil, qerr.FilterUnsupportedErr("unknown field %q in filter", unknown)
	}

	compiled, err := expr.Compile(rewritten, expr.AsBool())
	if err != nil {
		return nil, qerr.FilterUnsupportedErr("%v", err)
	}

	prog := &filterProgram{compiled: compiled, paths: paths}
	s.filterCache.Store(src, prog)
	return prog, nil
}

// filterMatches evaluates the compiled filter against candidate, resolving
// each referenced field path through the Indirection Resolver.
// Resolution failures for a given path yield nil (not a hard error):
// the predicate simply sees an absent value for that reference,
// matching the spec's "apply conservatively" guidance.
func (s *Store) filterMatches(prog *filterProgram, candidate intern.EntityId) (bool, error) {
	env := make(map[string]any, len(prog.paths))
	for placeholder, path := range prog.paths {
		env[placeholder] = s.readForFilter(candidate, path)
	}
	out, err := expr.Run(prog.compiled, env)
	if err != nil {
		return false, qerr.FilterUnsupportedErr("%v", err)
	}
	b, ok := out.(bool)
	return ok && b, nil
}

func (s *Store) readForFilter(candidate intern.EntityId, path []intern.FieldType) any {
	e, f, err := s.resolveIndirection(candidate, path)
	if err != nil {
		return nil
	}
	ent, ok := s.entities[e]
	if !ok {
		return nil
	}
	cell, ok := ent.Cells[f]
	if !ok {
		return nil
	}
	return nativeValue(cell.Value)
}

func nativeValue(v schema.Value) any {
	switch v.Variant {
	case schema.VariantBlob:
		return v.Blob
	case schema.VariantBool:
		return v.Bool
	case schema.VariantChoice:
		return v.Choice
	case schema.VariantEntityList:
		out := make([]uint64, len(v.List))
		for i, id := range v.List {
			out[i] = uint64(id)
		}
		return out
	case schema.VariantEntityReference:
		if v.Ref == nil {
			return nil
		}
		return uint64(*v.Ref)
	case schema.VariantFloat:
		return v.Float
	case schema.VariantInt:
		return v.Int
	case schema.VariantString:
		return v.Str
	case schema.VariantTimestamp:
		return v.Timestamp
	default:
		return nil
	}
}
