package objtree

import (
	"fmt"
	"regexp"
	"strings"
)

// CoercedLiteral is a literal value that has been checked against its
// target property's declared type and is ready for Store<Type> bytecode
// emission.
type CoercedLiteral struct {
	Type PropertyType

	Bool    bool
	Int     int64
	UInt    uint64
	Real    float64
	Str     string // also used for color/date/time/datetime/point/etc. source text
	IsEnum  bool
	EnumVal int
}

var (
	colorHexRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	colorArgbRe = regexp.MustCompile(`^#[0-9a-fA-F]{8}$`)
	dateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe      = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	dateTimeRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?$`)
	namedColors = map[string]bool{
		"black": true, "white": true, "red": true, "green": true, "blue": true,
		"yellow": true, "cyan": true, "magenta": true, "gray": true, "grey": true,
		"transparent": true,
	}
)

// splitNumericList parses "a,b,c" or "a b c" forms used by
// point/size/rect/vectorND textual literals.
func splitNumericList(s string) ([]float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		var v float64
		if _, err := fmt.Sscanf(f, "%g", &v); err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// CoerceLiteral checks lit against target per spec.md §4.9's literal
// assignment table and returns the bytecode-ready coerced value, or an
// error describing the mismatch (surfaced as a compile-time "incompatible
// literal" CompileError by the caller).
func CoerceLiteral(lit Literal, target PropertyType, types TypeTable) (CoercedLiteral, error) {
	switch target {
	case TypeBool:
		if !lit.IsBool {
			return CoercedLiteral{}, fmt.Errorf("boolean expected")
		}
		return CoercedLiteral{Type: target, Bool: lit.Bool}, nil

	case TypeInt:
		if lit.QualifiedEnum != "" {
			if v, ok := types.ResolveEnum(lit.QualifiedEnum); ok {
				return CoercedLiteral{Type: target, IsEnum: true, EnumVal: v, Int: int64(v)}, nil
			}
			return CoercedLiteral{}, fmt.Errorf("unresolved qualified enum %q", lit.QualifiedEnum)
		}
		if !lit.IsNumber {
			return CoercedLiteral{}, fmt.Errorf("int expected")
		}
		i := int64(lit.Number)
		if float64(i) != lit.Number {
			return CoercedLiteral{}, fmt.Errorf("int expected, got non-integral number %v", lit.Number)
		}
		return CoercedLiteral{Type: target, Int: i}, nil

	case TypeUInt:
		if !lit.IsNumber {
			return CoercedLiteral{}, fmt.Errorf("unsigned int expected")
		}
		if lit.Number < 0 {
			return CoercedLiteral{}, fmt.Errorf("unsigned int expected, got negative number")
		}
		u := uint64(lit.Number)
		if float64(u) != lit.Number {
			return CoercedLiteral{}, fmt.Errorf("unsigned int expected, got non-integral number %v", lit.Number)
		}
		return CoercedLiteral{Type: target, UInt: u}, nil

	case TypeReal:
		if !lit.IsNumber {
			return CoercedLiteral{}, fmt.Errorf("number expected")
		}
		return CoercedLiteral{Type: target, Real: lit.Number}, nil

	case TypeEnum:
		if lit.QualifiedEnum == "" {
			return CoercedLiteral{}, fmt.Errorf("qualified enumeration name expected")
		}
		v, ok := types.ResolveEnum(lit.QualifiedEnum)
		if !ok {
			return CoercedLiteral{}, fmt.Errorf("unknown enumeration %q", lit.QualifiedEnum)
		}
		return CoercedLiteral{Type: target, IsEnum: true, EnumVal: v, Int: int64(v)}, nil

	case TypeString, TypeUrl, TypeByteArray, TypeStringList, TypeUrlList:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("string expected")
		}
		return CoercedLiteral{Type: target, Str: lit.String}, nil

	case TypeColor:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("color expected")
		}
		s := lit.String
		if colorHexRe.MatchString(s) || colorArgbRe.MatchString(s) || namedColors[strings.ToLower(s)] {
			return CoercedLiteral{Type: target, Str: s}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid color %q", s)

	case TypeDate:
		if !lit.IsString || !dateRe.MatchString(lit.String) {
			return CoercedLiteral{}, fmt.Errorf("date expected")
		}
		return CoercedLiteral{Type: target, Str: lit.String}, nil

	case TypeTime:
		if !lit.IsString || !timeRe.MatchString(lit.String) {
			return CoercedLiteral{}, fmt.Errorf("time expected")
		}
		return CoercedLiteral{Type: target, Str: lit.String}, nil

	case TypeDateTime:
		if !lit.IsString || !dateTimeRe.MatchString(lit.String) {
			return CoercedLiteral{}, fmt.Errorf("datetime expected")
		}
		return CoercedLiteral{Type: target, Str: lit.String}, nil

	case TypePoint, TypePointF:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("point expected")
		}
		if parts, ok := splitNumericList(lit.String); ok && len(parts) == 2 {
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid point %q", lit.String)

	case TypeSize, TypeSizeF:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("size expected")
		}
		if parts, ok := splitNumericList(lit.String); ok && len(parts) == 2 {
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid size %q", lit.String)

	case TypeRect, TypeRectF:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("rect expected")
		}
		if parts, ok := splitNumericList(lit.String); ok && len(parts) == 4 {
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid rect %q", lit.String)

	case TypeVector3D:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("3D vector expected")
		}
		if parts, ok := splitNumericList(lit.String); ok && len(parts) == 3 {
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid 3D vector %q", lit.String)

	case TypeVector4D:
		if !lit.IsString {
			return CoercedLiteral{}, fmt.Errorf("4D vector expected")
		}
		if parts, ok := splitNumericList(lit.String); ok && len(parts) == 4 {
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		}
		return CoercedLiteral{}, fmt.Errorf("invalid 4D vector %q", lit.String)

	case TypeVariant:
		switch {
		case lit.IsBool:
			return CoercedLiteral{Type: target, Bool: lit.Bool}, nil
		case lit.IsNumber:
			return CoercedLiteral{Type: target, Real: lit.Number}, nil
		case lit.IsString:
			return CoercedLiteral{Type: target, Str: lit.String}, nil
		default:
			return CoercedLiteral{}, fmt.Errorf("unsupported variant literal")
		}

	case TypeRegExp:
		return CoercedLiteral{}, fmt.Errorf("regular expression literals are not accepted; use a binding")

	default:
		return CoercedLiteral{}, fmt.Errorf("unsupported property type for literal assignment")
	}
}
