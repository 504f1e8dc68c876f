// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package syntax

// InterfaceDef is the parsed definition of a varlink interface.
//
// An InterfaceDef is immutable once returned by Parse: callers that need a
// mutated copy should build a new value rather than editing Members in place.
type InterfaceDef struct {
	// Name is the dotted, all-lowercase interface name, e.g. "org.example.ping".
	Name string

	// Source is the interface description exactly as it was parsed, byte for
	// byte. It is preserved for introspection (org.varlink.service.GetInterfaceDescription
	// returns it verbatim) and is never reconstructed from the parsed members.
	Source string

	// Members holds the interface's types, methods, and errors in declaration
	// order.
	Members []Member
}

// Method looks up a method member by name. The bool result reports whether
// the member exists and is a method.
func (intf *InterfaceDef) Method(name string) (MethodDef, bool) {
	for _, m := range intf.Members {
		if method, ok := m.(MethodDef); ok && method.Name == name {
			return method, true
		}
	}
	return MethodDef{}, false
}

// Resolve looks up a type alias or error member by name, returning the type
// expression it stands for. The bool result reports whether a member with
// that name exists.
func (intf *InterfaceDef) Resolve(name string) (Type, bool) {
	for _, m := range intf.Members {
		switch m := m.(type) {
		case AliasDef:
			if m.Name == name {
				return m.Type, true
			}
		case ErrorDef:
			if m.Name == name {
				return m.Type, true
			}
		}
	}
	return nil, false
}

// Member is a tagged union over the three kinds of top-level interface
// members: MethodDef, AliasDef, and ErrorDef.
type Member interface {
	isMember()
	memberName() string
}

// MethodDef is an RPC method: a name, a declared input struct, and a declared
// output struct.
type MethodDef struct {
	Name string

	In  StructType
	Out StructType

	// Signature is the textual method signature, from the opening "(" of the
	// input struct through the closing ")" of the output struct, preserved
	// for client documentation and introspection.
	Signature string
}

func (MethodDef) isMember()            {}
func (m MethodDef) memberName() string { return m.Name }

// AliasDef is a named type alias ("type Name <type>").
type AliasDef struct {
	Name string
	Type Type
}

func (AliasDef) isMember()            {}
func (a AliasDef) memberName() string { return a.Name }

// ErrorDef is a named error type ("error Name <type>"), typically a struct of
// error parameters.
type ErrorDef struct {
	Name string
	Type Type
}

func (ErrorDef) isMember()            {}
func (e ErrorDef) memberName() string { return e.Name }

// Type is a tagged union over the four kinds of type expression: Primitive,
// StructType, NamedType, and ArrayType.
type Type interface {
	isType()
}

// Primitive is one of the four builtin scalar types.
type Primitive string

const (
	PrimitiveBool   Primitive = "bool"
	PrimitiveInt    Primitive = "int"
	PrimitiveFloat  Primitive = "float"
	PrimitiveString Primitive = "string"
)

func (Primitive) isType() {}

// StructType is an ordered mapping from field name to type expression. An
// empty struct ("()") has a nil Fields slice.
type StructType struct {
	Fields []StructField
}

func (StructType) isType() {}

// Field looks up a struct field by name.
func (s StructType) Field(name string) (Type, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// StructField is one field of a StructType.
type StructField struct {
	Name string
	Type Type
}

// NamedType is a reference to another member (a TypeDef alias or an ErrorDef)
// of the enclosing interface, resolved lazily against that interface.
type NamedType struct {
	Name string
}

func (NamedType) isType() {}

// ArrayType is a type expression suffixed with "[]".
type ArrayType struct {
	Elem Type
}

func (ArrayType) isType() {}
