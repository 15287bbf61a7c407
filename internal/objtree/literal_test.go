package objtree

import "testing"

func TestCoerceLiteralBasicTypes(t *testing.T) {
	types := NewStaticTypeTable()
	types.Enums["Qt.Horizontal"] = 1

	cases := []struct {
		name    string
		lit     Literal
		target  PropertyType
		wantErr bool
	}{
		{"bool ok", Literal{IsBool: true, Bool: true}, TypeBool, false},
		{"bool from number rejected", Literal{IsNumber: true, Number: 1}, TypeBool, true},
		{"int from integral number", Literal{IsNumber: true, Number: 42}, TypeInt, false},
		{"int from fractional number rejected", Literal{IsNumber: true, Number: 4.5}, TypeInt, true},
		{"uint rejects negative", Literal{IsNumber: true, Number: -1}, TypeUInt, true},
		{"real accepts any number", Literal{IsNumber: true, Number: 4.5}, TypeReal, false},
		{"string ok", Literal{IsString: true, String: "hi"}, TypeString, false},
		{"string expected for url", Literal{IsNumber: true, Number: 1}, TypeUrl, true},
		{"color hex ok", Literal{IsString: true, String: "#336699"}, TypeColor, false},
		{"color named ok", Literal{IsString: true, String: "red"}, TypeColor, false},
		{"color invalid", Literal{IsString: true, String: "not-a-color"}, TypeColor, true},
		{"date ok", Literal{IsString: true, String: "2024-01-02"}, TypeDate, false},
		{"date invalid", Literal{IsString: true, String: "not-a-date"}, TypeDate, true},
		{"point ok", Literal{IsString: true, String: "1,2"}, TypePointF, false},
		{"point invalid arity", Literal{IsString: true, String: "1,2,3"}, TypePointF, true},
		{"rect ok", Literal{IsString: true, String: "0,0,10,10"}, TypeRect, false},
		{"regexp always rejected", Literal{IsString: true, String: "/x/"}, TypeRegExp, true},
		{"qualified enum on int", Literal{QualifiedEnum: "Qt.Horizontal"}, TypeInt, false},
		{"enum requires qualification", Literal{IsNumber: true, Number: 1}, TypeEnum, true},
		{"enum ok", Literal{QualifiedEnum: "Qt.Horizontal"}, TypeEnum, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CoerceLiteral(tc.lit, tc.target, types)
			if (err != nil) != tc.wantErr {
				t.Errorf("CoerceLiteral(%+v, %v) error = %v, wantErr %v", tc.lit, tc.target, err, tc.wantErr)
			}
		})
	}
}

// TestQualifiedEnumOnIntSkipsStringConversion covers seed scenario S6:
// `orientation: Qt.Horizontal` with Qt.Horizontal == 1 must resolve to
// the integer value directly via the qualified-enum path, not a
// runtime string-to-enum helper.
func TestQualifiedEnumOnIntSkipsStringConversion(t *testing.T) {
	types := NewStaticTypeTable()
	types.Enums["Qt.Horizontal"] = 1

	got, err := CoerceLiteral(Literal{QualifiedEnum: "Qt.Horizontal"}, TypeInt, types)
	if err != nil {
		t.Fatalf("CoerceLiteral: %v", err)
	}
	if !got.IsEnum || got.Int != 1 {
		t.Errorf("got %+v, want IsEnum=true Int=1", got)
	}
}

func TestCoerceLiteralStringListAcceptsSingleString(t *testing.T) {
	types := NewStaticTypeTable()
	got, err := CoerceLiteral(Literal{IsString: true, String: "a"}, TypeStringList, types)
	if err != nil {
		t.Fatalf("CoerceLiteral: %v", err)
	}
	if got.Str != "a" {
		t.Errorf("got %q, want \"a\"", got.Str)
	}
}
