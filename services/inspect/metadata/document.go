// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document Types
// =============================================================================

// Document is the serialized form of decoded metadata for one or more
// modules. YAML and JSON encodings are both accepted.
type Document struct {
	Modules []ModuleDoc `yaml:"modules" json:"modules" validate:"required,min=1,dive"`
}

// AssemblyDoc is an assembly identity.
type AssemblyDoc struct {
	Name           string `yaml:"name" json:"name" validate:"required"`
	Version        string `yaml:"version,omitempty" json:"version,omitempty"`
	Culture        string `yaml:"culture,omitempty" json:"culture,omitempty"`
	PublicKeyToken string `yaml:"publicKeyToken,omitempty" json:"publicKeyToken,omitempty"`
}

// ModuleDoc is one module.
type ModuleDoc struct {
	Name       string        `yaml:"name" json:"name" validate:"required"`
	Assembly   AssemblyDoc   `yaml:"assembly" json:"assembly" validate:"-"`
	References []AssemblyDoc `yaml:"references,omitempty" json:"references,omitempty" validate:"dive"`
	Types      []TypeDoc     `yaml:"types,omitempty" json:"types,omitempty" validate:"dive"`
}

// TypeDoc is one type definition; Nested holds its nested types.
type TypeDoc struct {
	Namespace  string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Name       string        `yaml:"name" json:"name" validate:"required"`
	Kind       string        `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=class interface struct enum"`
	Flags      []string      `yaml:"flags,omitempty" json:"flags,omitempty" validate:"dive,oneof=public abstract sealed"`
	Base       string        `yaml:"base,omitempty" json:"base,omitempty" validate:"omitempty,typesig"`
	Interfaces []string      `yaml:"interfaces,omitempty" json:"interfaces,omitempty" validate:"dive,typesig"`
	Fields     []FieldDoc    `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive"`
	Properties []PropertyDoc `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive"`
	Methods    []MethodDoc   `yaml:"methods,omitempty" json:"methods,omitempty" validate:"dive"`
	Nested     []TypeDoc     `yaml:"nested,omitempty" json:"nested,omitempty" validate:"dive"`
}

// FieldDoc is one field.
type FieldDoc struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Type   string `yaml:"type" json:"type" validate:"required,typesig"`
	Static bool   `yaml:"static,omitempty" json:"static,omitempty"`
	Public bool   `yaml:"public,omitempty" json:"public,omitempty"`
}

// PropertyDoc is one property.
type PropertyDoc struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Type   string `yaml:"type" json:"type" validate:"required,typesig"`
	Getter string `yaml:"getter,omitempty" json:"getter,omitempty"`
	Setter string `yaml:"setter,omitempty" json:"setter,omitempty"`
}

// MethodDoc is one method. A method has a body iff Body is present, even
// when empty.
type MethodDoc struct {
	Name          string           `yaml:"name" json:"name" validate:"required"`
	Flags         []string         `yaml:"flags,omitempty" json:"flags,omitempty" validate:"dive,oneof=public static virtual abstract final"`
	Returns       string           `yaml:"returns,omitempty" json:"returns,omitempty" validate:"omitempty,typesig"`
	Params        []ParamDoc       `yaml:"params,omitempty" json:"params,omitempty" validate:"dive"`
	GenericParams int              `yaml:"genericParams,omitempty" json:"genericParams,omitempty" validate:"gte=0"`
	Overrides     []MethodRefDoc   `yaml:"overrides,omitempty" json:"overrides,omitempty" validate:"dive"`
	Locals        []string         `yaml:"locals,omitempty" json:"locals,omitempty" validate:"dive,typesig"`
	Body          []InstructionDoc `yaml:"body,omitempty" json:"body,omitempty" validate:"omitempty,dive"`
}

// ParamDoc is one declared parameter (the receiver is implicit).
type ParamDoc struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Type string `yaml:"type" json:"type" validate:"required,typesig"`
}

// MethodRefDoc references a method.
type MethodRefDoc struct {
	Type        string   `yaml:"type" json:"type" validate:"required,typesig"`
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Returns     string   `yaml:"returns,omitempty" json:"returns,omitempty" validate:"omitempty,typesig"`
	Params      []string `yaml:"params,omitempty" json:"params,omitempty" validate:"dive,typesig"`
	GenericArgs []string `yaml:"genericArgs,omitempty" json:"genericArgs,omitempty" validate:"dive,typesig"`
}

// FieldRefDoc references a field.
type FieldRefDoc struct {
	Type      string `yaml:"type" json:"type" validate:"required,typesig"`
	Name      string `yaml:"name" json:"name" validate:"required"`
	FieldType string `yaml:"fieldType,omitempty" json:"fieldType,omitempty" validate:"omitempty,typesig"`
}

// InstructionDoc is one instruction. At most one operand field may be set.
// A missing Offset continues from the previous instruction's encoded size.
type InstructionDoc struct {
	Offset *uint32       `yaml:"offset,omitempty" json:"offset,omitempty"`
	Op     string        `yaml:"op" json:"op" validate:"required,opcode"`
	Method *MethodRefDoc `yaml:"method,omitempty" json:"method,omitempty"`
	Field  *FieldRefDoc  `yaml:"field,omitempty" json:"field,omitempty"`
	Type   string        `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,typesig"`
	String *string       `yaml:"string,omitempty" json:"string,omitempty"`
	Int    *int64        `yaml:"int,omitempty" json:"int,omitempty"`
	Target *uint32       `yaml:"target,omitempty" json:"target,omitempty"`
	Local  *int          `yaml:"local,omitempty" json:"local,omitempty"`
	Param  *int          `yaml:"param,omitempty" json:"param,omitempty"`
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// documentValidate is the validator for documents, with the custom
// "typesig" and "opcode" rules registered.
var documentValidate *validator.Validate

func init() {
	documentValidate = validator.New()
	_ = documentValidate.RegisterValidation("typesig", validateTypeSig)
	_ = documentValidate.RegisterValidation("opcode", validateOpCode)
}

func validateTypeSig(fl validator.FieldLevel) bool {
	_, err := ParseTypeSig(fl.Field().String())
	return err == nil
}

func validateOpCode(fl validator.FieldLevel) bool {
	_, ok := LookupOpCode(fl.Field().String())
	return ok
}

// Validate checks the document against its validation tags.
func (d *Document) Validate() error {
	if err := documentValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// =============================================================================
// Decoding
// =============================================================================

// DecodeDocument parses, validates and converts a YAML or JSON document.
//
// Description:
//
//	Decodes with gopkg.in/yaml.v3 (JSON is accepted as YAML), validates with
//	go-playground/validator, then builds linked-ready modules. Unknown keys
//	are rejected so typos in operand names surface as errors.
//
// Inputs:
//
//	data - The document bytes.
//	source - Name used in error messages (usually the file path).
//
// Outputs:
//
//	[]*Module - Modules in document order, not yet loaded into a workspace.
//	error - Wraps ErrInvalidDocument or ErrUnknownOpCode.
func DecodeDocument(data []byte, source string) ([]*Module, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, source, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	modules, err := doc.ToModules()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return modules, nil
}

// LoadDocumentFile reads and decodes the document at path.
func LoadDocumentFile(path string) ([]*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata document: %w", err)
	}
	return DecodeDocument(data, path)
}

// ToModules converts a validated document into modules.
func (d *Document) ToModules() ([]*Module, error) {
	modules := make([]*Module, 0, len(d.Modules))
	for i := range d.Modules {
		m, err := d.Modules[i].toModule()
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", d.Modules[i].Name, err)
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func (a AssemblyDoc) toAssembly() AssemblyName {
	return AssemblyName{Name: a.Name, Version: a.Version, Culture: a.Culture, PublicKeyToken: a.PublicKeyToken}
}

func (md *ModuleDoc) toModule() (*Module, error) {
	m := &Module{Name: md.Name, Assembly: md.Assembly.toAssembly()}
	if m.Assembly.Name == "" {
		m.Assembly.Name = md.Name
	}
	for _, ref := range md.References {
		m.References = append(m.References, ref.toAssembly())
	}
	for i := range md.Types {
		t, err := md.Types[i].toType("")
		if err != nil {
			return nil, err
		}
		m.Types = append(m.Types, t)
	}
	m.link()
	return m, nil
}

func (td *TypeDoc) toType(outer string) (*TypeDef, error) {
	t := &TypeDef{Namespace: td.Namespace, Name: td.Name}
	full := td.Name
	switch {
	case outer != "":
		full = outer + "/" + td.Name
	case td.Namespace != "":
		full = td.Namespace + "." + td.Name
	}

	switch td.Kind {
	case "interface":
		t.Attributes |= TypeInterface | TypeAbstract
	case "struct":
		t.Attributes |= TypeValueType | TypeSealed
	case "enum":
		t.Attributes |= TypeValueType | TypeEnum | TypeSealed
	}
	for _, flag := range td.Flags {
		switch flag {
		case "public":
			t.Attributes |= TypePublic
		case "abstract":
			t.Attributes |= TypeAbstract
		case "sealed":
			t.Attributes |= TypeSealed
		}
	}

	var err error
	if td.Base != "" {
		if t.BaseType, err = ParseTypeSig(td.Base); err != nil {
			return nil, fmt.Errorf("type %s base: %w", full, err)
		}
	}
	if t.Interfaces, err = parseSigs(td.Interfaces); err != nil {
		return nil, fmt.Errorf("type %s interfaces: %w", full, err)
	}

	for _, fd := range td.Fields {
		ft, err := ParseTypeSig(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s::%s: %w", full, fd.Name, err)
		}
		t.Fields = append(t.Fields, &FieldDef{Name: fd.Name, Type: ft, IsStatic: fd.Static, IsPublic: fd.Public})
	}
	for _, pd := range td.Properties {
		pt, err := ParseTypeSig(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("property %s::%s: %w", full, pd.Name, err)
		}
		t.Properties = append(t.Properties, &PropertyDef{Name: pd.Name, Type: pt, Getter: pd.Getter, Setter: pd.Setter})
	}
	for i := range td.Methods {
		m, err := td.Methods[i].toMethod(full)
		if err != nil {
			return nil, fmt.Errorf("method %s::%s: %w", full, td.Methods[i].Name, err)
		}
		t.Methods = append(t.Methods, m)
	}
	for i := range td.Nested {
		nested, err := td.Nested[i].toType(full)
		if err != nil {
			return nil, err
		}
		t.NestedTypes = append(t.NestedTypes, nested)
	}
	return t, nil
}

func (md *MethodDoc) toMethod(declaring string) (*MethodDef, error) {
	m := &MethodDef{Name: md.Name, GenericParams: md.GenericParams}
	for _, flag := range md.Flags {
		switch flag {
		case "public":
			m.Attributes |= MethodPublic
		case "static":
			m.Attributes |= MethodStatic
		case "virtual":
			m.Attributes |= MethodVirtual
		case "abstract":
			m.Attributes |= MethodAbstract | MethodVirtual
		case "final":
			m.Attributes |= MethodFinal
		}
	}

	ret := "void"
	if md.Returns != "" {
		ret = md.Returns
	}
	var err error
	if m.ReturnType, err = ParseTypeSig(ret); err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}

	if !m.IsStatic() {
		m.Params = append(m.Params, &Parameter{Name: "this", Type: Named(declaring), IsHiddenThis: true})
	}
	for i, pd := range md.Params {
		pt, err := ParseTypeSig(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		name := pd.Name
		if name == "" {
			name = fmt.Sprintf("A_%d", i)
		}
		m.Params = append(m.Params, &Parameter{Name: name, Type: pt})
	}

	for i := range md.Overrides {
		ref, err := md.Overrides[i].toRef()
		if err != nil {
			return nil, fmt.Errorf("override %d: %w", i, err)
		}
		m.Overrides = append(m.Overrides, ref)
	}

	if md.Body == nil {
		if len(md.Locals) > 0 {
			return nil, fmt.Errorf("%w: locals declared without a body", ErrInvalidDocument)
		}
		return m, nil
	}

	body := &Body{}
	if body.Locals, err = parseSigs(md.Locals); err != nil {
		return nil, fmt.Errorf("locals: %w", err)
	}
	var next uint32
	for i := range md.Body {
		ins, err := md.Body[i].toInstruction(next)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		body.Instructions = append(body.Instructions, ins)
		next = ins.Offset + uint32(ins.OpCode.Size)
	}
	m.Body = body
	return m, nil
}

func (rd *MethodRefDoc) toRef() (*MethodRef, error) {
	ref := &MethodRef{Name: rd.Name}
	var err error
	if ref.DeclaringType, err = ParseTypeSig(rd.Type); err != nil {
		return nil, err
	}
	ret := "void"
	if rd.Returns != "" {
		ret = rd.Returns
	}
	if ref.ReturnType, err = ParseTypeSig(ret); err != nil {
		return nil, err
	}
	if ref.Params, err = parseSigs(rd.Params); err != nil {
		return nil, err
	}
	if ref.GenericArgs, err = parseSigs(rd.GenericArgs); err != nil {
		return nil, err
	}
	return ref, nil
}

func (fd *FieldRefDoc) toRef() (*FieldRef, error) {
	ref := &FieldRef{Name: fd.Name}
	var err error
	if ref.DeclaringType, err = ParseTypeSig(fd.Type); err != nil {
		return nil, err
	}
	if fd.FieldType != "" {
		if ref.FieldType, err = ParseTypeSig(fd.FieldType); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

func (id *InstructionDoc) toInstruction(defaultOffset uint32) (*Instruction, error) {
	op, ok := LookupOpCode(id.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpCode, id.Op)
	}
	ins := &Instruction{Offset: defaultOffset, OpCode: op}
	if id.Offset != nil {
		ins.Offset = *id.Offset
	}

	set := 0
	if id.Method != nil {
		set++
		ref, err := id.Method.toRef()
		if err != nil {
			return nil, err
		}
		ins.Operand = MethodOperand(ref)
	}
	if id.Field != nil {
		set++
		ref, err := id.Field.toRef()
		if err != nil {
			return nil, err
		}
		ins.Operand = FieldOperand(ref)
	}
	if id.Type != "" {
		set++
		sig, err := ParseTypeSig(id.Type)
		if err != nil {
			return nil, err
		}
		ins.Operand = TypeOperand(sig)
	}
	if id.String != nil {
		set++
		ins.Operand = StringOperand(*id.String)
	}
	if id.Int != nil {
		set++
		ins.Operand = IntOperand(*id.Int)
	}
	if id.Target != nil {
		set++
		ins.Operand = BranchOperand(*id.Target)
	}
	if id.Local != nil {
		set++
		ins.Operand = LocalOperand(*id.Local)
	}
	if id.Param != nil {
		set++
		ins.Operand = ParamOperand(*id.Param)
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: %s has %d operands", ErrInvalidDocument, id.Op, set)
	}
	return ins, nil
}

func parseSigs(in []string) ([]*TypeSig, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]*TypeSig, 0, len(in))
	for _, s := range in {
		sig, err := ParseTypeSig(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// =============================================================================
// Encoding
// =============================================================================

// NewDocument converts modules back into a Document.
//
// Description:
//
//	The inverse of ToModules: signatures are rendered with TypeSig.String,
//	every instruction offset is written explicitly, and the hidden receiver
//	parameter is dropped (it is implied by the absence of "static").
func NewDocument(modules []*Module) *Document {
	doc := &Document{Modules: make([]ModuleDoc, 0, len(modules))}
	for _, m := range modules {
		md := ModuleDoc{Name: m.Name, Assembly: assemblyDoc(m.Assembly)}
		for _, ref := range m.References {
			md.References = append(md.References, assemblyDoc(ref))
		}
		for _, t := range m.Types {
			md.Types = append(md.Types, typeDoc(t))
		}
		doc.Modules = append(doc.Modules, md)
	}
	return doc
}

// EncodeYAML renders the document as YAML.
func (d *Document) EncodeYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding metadata document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding metadata document: %w", err)
	}
	return buf.Bytes(), nil
}

func assemblyDoc(a AssemblyName) AssemblyDoc {
	return AssemblyDoc{Name: a.Name, Version: a.Version, Culture: a.Culture, PublicKeyToken: a.PublicKeyToken}
}

func typeDoc(t *TypeDef) TypeDoc {
	td := TypeDoc{Namespace: t.Namespace, Name: t.Name}
	switch {
	case t.IsInterface():
		td.Kind = "interface"
	case t.Attributes&TypeEnum != 0:
		td.Kind = "enum"
	case t.IsValueType():
		td.Kind = "struct"
	}
	if t.Attributes&TypePublic != 0 {
		td.Flags = append(td.Flags, "public")
	}
	if t.Attributes&TypeAbstract != 0 && !t.IsInterface() {
		td.Flags = append(td.Flags, "abstract")
	}
	if t.Attributes&TypeSealed != 0 && !t.IsValueType() {
		td.Flags = append(td.Flags, "sealed")
	}
	if t.BaseType != nil {
		td.Base = t.BaseType.String()
	}
	td.Interfaces = renderSigs(t.Interfaces)
	for _, f := range t.Fields {
		td.Fields = append(td.Fields, FieldDoc{Name: f.Name, Type: f.Type.String(), Static: f.IsStatic, Public: f.IsPublic})
	}
	for _, p := range t.Properties {
		td.Properties = append(td.Properties, PropertyDoc{Name: p.Name, Type: p.Type.String(), Getter: p.Getter, Setter: p.Setter})
	}
	for _, m := range t.Methods {
		td.Methods = append(td.Methods, methodDoc(m))
	}
	for _, nested := range t.NestedTypes {
		td.Nested = append(td.Nested, typeDoc(nested))
	}
	return td
}

func methodDoc(m *MethodDef) MethodDoc {
	md := MethodDoc{Name: m.Name, Returns: sigOrVoid(m.ReturnType), GenericParams: m.GenericParams}
	flags := []struct {
		attr MethodAttributes
		name string
	}{
		{MethodPublic, "public"},
		{MethodStatic, "static"},
		{MethodVirtual, "virtual"},
		{MethodAbstract, "abstract"},
		{MethodFinal, "final"},
	}
	for _, f := range flags {
		if m.Attributes&f.attr != 0 {
			md.Flags = append(md.Flags, f.name)
		}
	}
	for _, p := range m.VisibleParams() {
		md.Params = append(md.Params, ParamDoc{Name: p.Name, Type: p.Type.String()})
	}
	for _, o := range m.Overrides {
		md.Overrides = append(md.Overrides, methodRefDoc(o))
	}
	if m.Body != nil {
		md.Locals = renderSigs(m.Body.Locals)
		md.Body = make([]InstructionDoc, 0, len(m.Body.Instructions))
		for _, ins := range m.Body.Instructions {
			md.Body = append(md.Body, instructionDoc(ins))
		}
	}
	return md
}

func methodRefDoc(r *MethodRef) MethodRefDoc {
	return MethodRefDoc{
		Type:        r.DeclaringType.String(),
		Name:        r.Name,
		Returns:     sigOrVoid(r.ReturnType),
		Params:      renderSigs(r.Params),
		GenericArgs: renderSigs(r.GenericArgs),
	}
}

func instructionDoc(ins *Instruction) InstructionDoc {
	offset := ins.Offset
	id := InstructionDoc{Offset: &offset, Op: ins.OpCode.Name}
	op := ins.Operand
	switch op.Kind {
	case OperandMethod:
		ref := methodRefDoc(op.Method)
		id.Method = &ref
	case OperandField:
		ref := FieldRefDoc{Type: op.Field.DeclaringType.String(), Name: op.Field.Name}
		if op.Field.FieldType != nil {
			ref.FieldType = op.Field.FieldType.String()
		}
		id.Field = &ref
	case OperandType:
		id.Type = op.Type.String()
	case OperandString:
		s := op.Str
		id.String = &s
	case OperandInteger:
		v := op.Int
		id.Int = &v
	case OperandBranchTarget:
		target := uint32(op.Int)
		id.Target = &target
	case OperandLocal:
		local := int(op.Int)
		id.Local = &local
	case OperandParameter:
		param := int(op.Int)
		id.Param = &param
	}
	return id
}

func renderSigs(sigs []*TypeSig) []string {
	if len(sigs) == 0 {
		return nil
	}
	out := make([]string, len(sigs))
	for i, sig := range sigs {
		out[i] = sig.String()
	}
	return out
}
