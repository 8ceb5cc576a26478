// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

// Parameter describes one named input or output slot of an algorithm entry.
// The IOType is shared by reference; several parameters of one entry (or of
// different entries) commonly point at the same cached IOType.
type Parameter struct {
	Name     string
	IOType   *IOType
	Desc     string
	Default  any
	Optional bool
}

// Property returns the flat record used in entry metadata.
func (p *Parameter) Property() map[string]any {
	return map[string]any{
		"name":     p.Name,
		"io":       p.IOType.ID,
		"desc":     p.Desc,
		"default":  p.Default,
		"optional": p.Optional,
	}
}

// builtin returns an unconditioned IOType whose id and name are the kind tag
// itself, for parameters declared without a registry.
func builtin(kind MetaKind) *IOType {
	return &IOType{Meta: kind, ID: kind.String(), Name: kind.String()}
}

// StringParam creates a string-kind parameter with a builtin IOType.
func StringParam(name, desc string, defaultValue any, optional bool) *Parameter {
	return &Parameter{Name: name, IOType: builtin(MetaString), Desc: desc, Default: defaultValue, Optional: optional}
}

// NumberParam creates a number-kind parameter with a builtin IOType.
func NumberParam(name, desc string, defaultValue any, optional bool) *Parameter {
	return &Parameter{Name: name, IOType: builtin(MetaNumber), Desc: desc, Default: defaultValue, Optional: optional}
}

// NumberArrayParam creates a numarray-kind parameter with a builtin IOType.
func NumberArrayParam(name, desc string, defaultValue any, optional bool) *Parameter {
	return &Parameter{Name: name, IOType: builtin(MetaNumberArray), Desc: desc, Default: defaultValue, Optional: optional}
}
