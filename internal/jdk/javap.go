package jdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// FieldInfo is a field declared by a class.
type FieldInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Type       string   `json:"type" yaml:"type"`
	Visibility string   `json:"visibility" yaml:"visibility"`
	Modifiers  []string `json:"modifiers" yaml:"modifiers"`
	Descriptor string   `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

// MethodInfo is a method or constructor declared by a class.
type MethodInfo struct {
	Name        string   `json:"name" yaml:"name"`
	ReturnType  string   `json:"return_type,omitempty" yaml:"return_type,omitempty"`
	Visibility  string   `json:"visibility" yaml:"visibility"`
	Modifiers   []string `json:"modifiers" yaml:"modifiers"`
	Parameters  []string `json:"parameters" yaml:"parameters"`
	Throws      []string `json:"throws,omitempty" yaml:"throws,omitempty"`
	Constructor bool     `json:"constructor,omitempty" yaml:"constructor,omitempty"`
	Descriptor  string   `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

// ClassStructure is the record for get_class_structure.
type ClassStructure struct {
	core.Status
	ClassName    string       `json:"class_name" yaml:"class_name"`
	ClassKind    string       `json:"class_kind" yaml:"class_kind"`
	SourceFile   string       `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Modifiers    []string     `json:"modifiers" yaml:"modifiers"`
	Superclass   string       `json:"superclass,omitempty" yaml:"superclass,omitempty"`
	Interfaces   []string     `json:"interfaces" yaml:"interfaces"`
	Fields       []FieldInfo  `json:"fields" yaml:"fields"`
	Methods      []MethodInfo `json:"methods" yaml:"methods"`
	InnerClasses []string     `json:"inner_classes" yaml:"inner_classes"`
}

// RecordKind implements core.Record.
func (*ClassStructure) RecordKind() core.OutputKind { return core.KindClassStructure }

type javapParams struct {
	ClassName            string `mapstructure:"class_name" validate:"required,excludesall=0x20,startsnotwith=-"`
	Classpath            string `mapstructure:"classpath" validate:"omitempty,startsnotwith=-"`
	ShowDetail           bool   `mapstructure:"show_detail"`
	ShowFields           bool   `mapstructure:"show_fields"`
	ShowLineNumbers      bool   `mapstructure:"show_line_numbers"`
	ShowMethodSignatures bool   `mapstructure:"show_method_signatures"`
}

// ClassStructureCommand runs `javap [-cp cp] [-v] [-p] [-l] [-s] <class>`.
type ClassStructureCommand struct{ base }

// NewClassStructure creates the get_class_structure command.
func NewClassStructure() *ClassStructureCommand {
	return &ClassStructureCommand{base{
		name:        "get_class_structure",
		description: "Declared fields, methods and supertypes of a class (javap)",
		kind:        core.KindClassStructure,
		timeout:     30 * time.Second,
		ttl:         5 * time.Minute,
	}}
}

// Prepare implements Command.
func (c *ClassStructureCommand) Prepare(args Args) (*Invocation, error) {
	var p javapParams
	if err := decode(args, &p); err != nil {
		return nil, err
	}
	var argv []string
	if p.Classpath != "" {
		argv = append(argv, "-cp", p.Classpath)
	}
	if p.ShowDetail {
		argv = append(argv, "-v")
	}
	if p.ShowFields {
		argv = append(argv, "-p")
	}
	if p.ShowLineNumbers {
		argv = append(argv, "-l")
	}
	if p.ShowMethodSignatures {
		argv = append(argv, "-s")
	}
	argv = append(argv, p.ClassName)
	return c.invocation("javap", argv, p, func(res core.ExecutionResult) core.Record {
		return ParseClassStructure(res.Stdout)
	}), nil
}

var classKinds = map[string]bool{"class": true, "interface": true, "enum": true, "record": true, "@interface": true}

var memberModifiers = map[string]bool{
	"static": true, "final": true, "abstract": true, "synchronized": true, "native": true,
	"transient": true, "volatile": true, "strictfp": true, "default": true, "sealed": true,
	"non-sealed": true,
}

var visibilities = map[string]bool{"public": true, "protected": true, "private": true}

// ParseClassStructure parses javap output. The declaration line opens the
// class body; member lines are the `;`-terminated declarations directly
// inside it. Verbose (-v) output is tolerated: constant pool, code and
// attribute lines are ignored and InnerClasses entries are collected.
func ParseClassStructure(out string) core.Record {
	rec := &ClassStructure{
		Status:       core.OK(),
		Modifiers:    []string{},
		Interfaces:   []string{},
		Fields:       []FieldInfo{},
		Methods:      []MethodInfo{},
		InnerClasses: []string{},
	}

	declared := false
	inInner := false
	// lastMethod/lastField receive the `descriptor:` line printed by -s.
	lastMethod, lastField := -1, -1

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Compiled from ") {
			rec.SourceFile = strings.Trim(strings.TrimPrefix(line, "Compiled from "), `"`)
			continue
		}
		if !declared {
			if parseDeclaration(line, rec) {
				declared = true
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "InnerClasses:"):
			inInner = true
			continue
		case inInner:
			if name, ok := innerClassName(line); ok {
				rec.InnerClasses = append(rec.InnerClasses, name)
				continue
			}
			inInner = false
		}

		if strings.HasPrefix(line, "descriptor:") {
			desc := strings.TrimSpace(strings.TrimPrefix(line, "descriptor:"))
			if lastMethod >= 0 {
				rec.Methods[lastMethod].Descriptor = desc
			} else if lastField >= 0 {
				rec.Fields[lastField].Descriptor = desc
			}
			continue
		}
		if !isMemberLine(raw, line) {
			continue
		}
		decl := strings.TrimSuffix(line, ";")
		lastMethod, lastField = -1, -1
		if strings.Contains(decl, "(") {
			if m, ok := parseMethod(decl, rec.ClassName); ok {
				rec.Methods = append(rec.Methods, m)
				lastMethod = len(rec.Methods) - 1
			}
			continue
		}
		if f, ok := parseField(decl); ok {
			rec.Fields = append(rec.Fields, f)
			lastField = len(rec.Fields) - 1
		}
	}

	if !declared {
		return core.NewFailure(core.KindClassStructure, core.ErrParse(
			fmt.Sprintf("no class declaration found in %d bytes of javap output", len(out))))
	}
	return rec
}

func parseDeclaration(line string, rec *ClassStructure) bool {
	tokens := splitTopLevel(strings.TrimSpace(strings.TrimSuffix(line, "{")), ' ')
	kindAt := -1
	for i, tok := range tokens {
		if classKinds[tok] {
			kindAt = i
			break
		}
	}
	if kindAt < 0 || kindAt+1 >= len(tokens) {
		return false
	}
	for _, tok := range tokens[:kindAt] {
		if !visibilities[tok] && !memberModifiers[tok] {
			return false
		}
	}
	rec.Modifiers = append(rec.Modifiers, tokens[:kindAt]...)
	rec.ClassKind = strings.TrimPrefix(tokens[kindAt], "@")
	rec.ClassName = tokens[kindAt+1]

	var clause string
	var list []string
	flushClause := func() {
		types := splitTopLevel(strings.Join(list, " "), ',')
		switch {
		case clause == "extends" && rec.ClassKind != "interface":
			if len(types) > 0 {
				rec.Superclass = types[0]
			}
		case clause == "extends", clause == "implements":
			rec.Interfaces = append(rec.Interfaces, types...)
		}
		list = list[:0]
	}
	for _, tok := range tokens[kindAt+2:] {
		if tok == "extends" || tok == "implements" || tok == "permits" {
			flushClause()
			clause = tok
			continue
		}
		list = append(list, tok)
	}
	flushClause()
	return true
}

// isMemberLine reports whether line is a declaration directly in the class
// body. javap indents members by two spaces; verbose output nests deeper.
func isMemberLine(raw, line string) bool {
	if !strings.HasSuffix(line, ";") || strings.HasPrefix(line, "//") {
		return false
	}
	indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
	if indent > 2 {
		return false
	}
	// static initializer
	if strings.Contains(line, "{}") {
		return false
	}
	return !strings.HasPrefix(line, "#")
}

func parseMethod(decl, className string) (MethodInfo, bool) {
	open := strings.Index(decl, "(")
	closeAt := strings.LastIndex(decl, ")")
	if open < 0 || closeAt < open {
		return MethodInfo{}, false
	}
	head := splitTopLevel(decl[:open], ' ')
	if len(head) == 0 {
		return MethodInfo{}, false
	}
	m := MethodInfo{Visibility: "package", Modifiers: []string{}, Parameters: []string{}}
	var rest []string
	for _, tok := range head {
		switch {
		case visibilities[tok]:
			m.Visibility = tok
		case memberModifiers[tok]:
			m.Modifiers = append(m.Modifiers, tok)
		case strings.HasPrefix(tok, "<") && len(rest) == 0:
			// method type parameters
		default:
			rest = append(rest, tok)
		}
	}
	switch len(rest) {
	case 1:
		m.Name = rest[0]
		m.Constructor = true
	case 2:
		m.ReturnType, m.Name = rest[0], rest[1]
	default:
		return MethodInfo{}, false
	}
	plain, _, _ := strings.Cut(className, "<")
	if m.Constructor && m.Name != plain && !strings.HasSuffix(plain, "."+m.Name) {
		return MethodInfo{}, false
	}
	if params := strings.TrimSpace(decl[open+1 : closeAt]); params != "" {
		m.Parameters = splitTopLevel(params, ',')
	}
	if tail := strings.TrimSpace(decl[closeAt+1:]); strings.HasPrefix(tail, "throws ") {
		m.Throws = splitTopLevel(strings.TrimPrefix(tail, "throws "), ',')
	}
	return m, true
}

func parseField(decl string) (FieldInfo, bool) {
	if strings.ContainsAny(decl, "=:") {
		return FieldInfo{}, false
	}
	f := FieldInfo{Visibility: "package", Modifiers: []string{}}
	var rest []string
	for _, tok := range splitTopLevel(decl, ' ') {
		switch {
		case visibilities[tok]:
			f.Visibility = tok
		case memberModifiers[tok]:
			f.Modifiers = append(f.Modifiers, tok)
		default:
			rest = append(rest, tok)
		}
	}
	if len(rest) != 2 {
		return FieldInfo{}, false
	}
	f.Type, f.Name = rest[0], rest[1]
	return f, true
}

// innerClassName extracts the class from a verbose InnerClasses entry such
// as `public static #7= #6 of #2; // Entry=class java/util/Map$Entry of class java/util/Map`.
func innerClassName(line string) (string, bool) {
	_, comment, ok := strings.Cut(line, "//")
	if !ok {
		return "", false
	}
	_, typ, ok := strings.Cut(comment, "=class ")
	if !ok {
		return "", false
	}
	name := strings.Fields(typ)
	if len(name) == 0 {
		return "", false
	}
	return strings.ReplaceAll(name[0], "/", "."), true
}

// splitTopLevel splits s on sep outside of generic angle brackets and trims
// the parts, dropping empty ones.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case sep:
			if depth == 0 {
				if p := strings.TrimSpace(s[start:i]); p != "" {
					parts = append(parts, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}
