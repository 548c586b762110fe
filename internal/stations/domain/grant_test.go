package stations

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeGrants_Shapes(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		quantity int
	}{
		{name: "empty", raw: "", quantity: 0},
		{name: "null", raw: "null", quantity: 0},
		{name: "empty array", raw: "[]", quantity: 0},
		{name: "array", raw: `[{"model_id":"m1","color_id":"c1","quantity":2},{"model_id":"m2","color_id":"c1","quantity":3}]`, quantity: 5},
		{name: "encoded string", raw: `"[{\"model_id\":\"m1\",\"color_id\":\"c1\",\"quantity\":4}]"`, quantity: 4},
		{name: "encoded empty string", raw: `""`, quantity: 0},
		{name: "padded", raw: "  \n[{\"model_id\":\"m1\",\"color_id\":\"c1\",\"quantity\":1}] ", quantity: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grants, err := DecodeGrants([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := TotalQuantity(grants); got != tc.quantity {
				t.Fatalf("expected quantity %d, got %d", tc.quantity, got)
			}
		})
	}
}

func TestDecodeGrants_Malformed(t *testing.T) {
	inputs := []string{
		`"not a list"`,
		`{"model_id":"m1"}`,
		`[{"quantity":"three"}]`,
		`"[{broken"`,
		`garbage`,
	}
	for _, raw := range inputs {
		_, err := DecodeGrants([]byte(raw))
		if !errors.Is(err, ErrMalformedAllocation) {
			t.Fatalf("expected ErrMalformedAllocation for %q, got %v", raw, err)
		}
	}
}

func TestEncodeGrants_RoundTripsThroughDecode(t *testing.T) {
	grants := []StationGrant{{ModelID: "m1", ModelName: "Tower", ColorID: "c1", ColorName: "Black", Quantity: 2, SerialNumbers: []string{"SN1", "SN2"}}}
	raw, err := EncodeGrants(grants)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeGrants(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].SerialNumbers) != 2 || decoded[0].ColorName != "Black" {
		t.Fatalf("unexpected decoded grants: %+v", decoded)
	}

	empty, err := EncodeGrants(nil)
	if err != nil {
		t.Fatalf("encode nil: %v", err)
	}
	if string(empty) != "[]" {
		t.Fatalf("expected [] for nil grants, got %s", empty)
	}
}

func TestSerialNumbers_FlattensAndDedupes(t *testing.T) {
	grants := []StationGrant{
		{Quantity: 2, SerialNumbers: []string{"S1", " S2 "}},
		{Quantity: 1},
		{Quantity: 2, SerialNumbers: []string{"S3", "S1", ""}},
	}
	serials := SerialNumbers(grants)
	expected := []string{"S1", "S2", "S3"}
	if len(serials) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, serials)
	}
	for i := range expected {
		if serials[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, serials)
		}
	}
}

func TestTotalQuantity_SaturatesInsteadOfWrapping(t *testing.T) {
	grants := []StationGrant{{Quantity: math.MaxInt}, {Quantity: math.MaxInt}, {Quantity: 3}}
	if got := TotalQuantity(grants); got != math.MaxInt {
		t.Fatalf("expected saturated total, got %d", got)
	}
}
