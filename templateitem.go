// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/value"

// TemplateValueFlag is a bitset on a TemplateValue.
type TemplateValueFlag uint32

// IsDefinition marks a TemplateValue in its "definition" state: not
// yet bound to a concrete substitution payload (§3 TemplateValue).
const IsDefinition TemplateValueFlag = 1 << 0

// TemplateItem describes one template-item descriptor: the declared
// input/output type pair and name of one substitution slot (§3
// TemplateItem).
type TemplateItem struct {
	InputType  uint8
	OutputType uint8
	ValueCount uint16
	ValueSize  uint16
	NameOffset uint32
	Name       string
}

// TemplateValue is the definition-form counterpart of a TemplateItem
// (§3 TemplateValue). Template.Render does not pass these to the BXML
// interpreter: substitutions are bound from the values given to Render.
type TemplateValue struct {
	Type        uint8
	NameOffset  uint32
	InitialSize uint16
	Flags       TemplateValueFlag
}

// CompatibleWith reports whether a substitution's runtime BXML type
// agrees with this item's declared InputType, per
// libfwevt_template_item.c's input/output data type pairing. Nothing
// in this module calls it: the BXML interpreter always uses the
// substitution's runtime type and never compares it with InputType.
func (ti *TemplateItem) CompatibleWith(runtime value.Type) bool {
	return ti.InputType == uint8(runtime.Base())
}
