package wir

import (
	"fmt"
	"regexp"
)

// identifierPattern is the alphabet shared by program identifiers and
// location identifiers (spec.md §3, "Identifier").
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdentifier reports whether s is a non-empty string drawn from
// [A-Za-z0-9_]+.
func ValidIdentifier(s string) bool {
	return s != "" && identifierPattern.MatchString(s)
}

// Location identifies an administrative domain: a site with its own data,
// tasks, and policy checker. Location identifiers share the Identifier
// alphabet.
type Location string

// Valid reports whether l is a syntactically valid location identifier.
func (l Location) Valid() bool {
	return ValidIdentifier(string(l))
}

// DataKind enumerates the sum-type variants of DataType.
type DataKind int

const (
	KindBool DataKind = iota
	KindInt
	KindReal
	KindString
	KindData
	KindIntermediateResult
	KindArray
	KindClass
	KindVoid
	KindAny
)

func (k DataKind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindReal:
		return "Real"
	case KindString:
		return "String"
	case KindData:
		return "Data"
	case KindIntermediateResult:
		return "IntermediateResult"
	case KindArray:
		return "Array"
	case KindClass:
		return "Class"
	case KindVoid:
		return "Void"
	case KindAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// DataType is the sum type over Bool, Int, Real, String, Data,
// IntermediateResult, Array(T), Class(name), Void, Any (spec.md §3).
//
// Array and Class are the only variants carrying a payload (Elem and
// ClassName respectively); all other variants are identified by Kind alone.
// DataType is a value type and is safe to compare with ==, except for Array
// types, which must be compared with Equal (the Elem pointer differs across
// otherwise-identical array types built independently).
type DataType struct {
	Kind      DataKind
	Elem      *DataType // non-nil iff Kind == KindArray
	ClassName string    // non-empty iff Kind == KindClass
}

func Bool() DataType   { return DataType{Kind: KindBool} }
func Int() DataType    { return DataType{Kind: KindInt} }
func Real() DataType   { return DataType{Kind: KindReal} }
func Str() DataType    { return DataType{Kind: KindString} }
func Data() DataType   { return DataType{Kind: KindData} }
func IR() DataType     { return DataType{Kind: KindIntermediateResult} }
func Void() DataType   { return DataType{Kind: KindVoid} }
func AnyTy() DataType  { return DataType{Kind: KindAny} }
func Array(elem DataType) DataType {
	e := elem
	return DataType{Kind: KindArray, Elem: &e}
}
func Class(name string) DataType { return DataType{Kind: KindClass, ClassName: name} }

// Equal performs structural equality, recursing into Array element types.
func (t DataType) Equal(o DataType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(*o.Elem)
	case KindClass:
		return t.ClassName == o.ClassName
	default:
		return true
	}
}

// AssignableTo reports whether a value of type t can be used where a value
// of type target is expected, applying the two implicit coercions the type
// checker knows about: Int -> Real and T -> Any (spec.md §4.3).
func (t DataType) AssignableTo(target DataType) bool {
	if t.Equal(target) {
		return true
	}
	if target.Kind == KindAny {
		return true
	}
	if t.Kind == KindInt && target.Kind == KindReal {
		return true
	}
	if t.Kind == KindArray && target.Kind == KindArray {
		return t.Elem.AssignableTo(*target.Elem)
	}
	return false
}

func (t DataType) String() string {
	switch t.Kind {
	case KindArray:
		return fmt.Sprintf("Array(%s)", t.Elem.String())
	case KindClass:
		return fmt.Sprintf("Class(%s)", t.ClassName)
	default:
		return t.Kind.String()
	}
}

// Version is a semver triple. Latest is a sentinel value greater than every
// concrete version (spec.md §3, "Version").
type Version struct {
	Major, Minor, Patch int
	Latest              bool
}

// ParseVersion parses "major.minor.patch" or the literal "latest".
func ParseVersion(s string) (Version, error) {
	if s == "latest" {
		return Version{Latest: true}, nil
	}
	var v Version
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return Version{}, fmt.Errorf("wir: invalid version %q", s)
	}
	return v, nil
}

func (v Version) String() string {
	if v.Latest {
		return "latest"
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// o. Latest compares greater than every concrete version and equal to
// itself.
func (v Version) Compare(o Version) int {
	if v.Latest && o.Latest {
		return 0
	}
	if v.Latest {
		return 1
	}
	if o.Latest {
		return -1
	}
	for _, pair := range [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}
