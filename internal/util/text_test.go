package util

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int64
		ok    bool
	}{
		{name: "thousands dot", input: "19.000", want: 19000, ok: true},
		{name: "millions", input: "1.250.000", want: 1250000, ok: true},
		{name: "decimal comma truncated", input: "1.234,56", want: 1234, ok: true},
		{name: "plain", input: "850", want: 850, ok: true},
		{name: "plain with decimals", input: "850,90", want: 850, ok: true},
		{name: "currency sign", input: "$ 12.500", want: 12500, ok: true},
		{name: "broken group", input: "12.50", ok: false},
		{name: "letters", input: "12a", ok: false},
		{name: "empty", input: "", ok: false},
		{name: "largest int64", input: "9.223.372.036.854.775.807", want: 9223372036854775807, ok: true},
		{name: "beyond int64", input: "99999999999999999999999", ok: false},
		{name: "beyond int64 grouped", input: "9.223.372.036.854.775.808,5", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseAmount(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 7, 999, 1000, 19000, 150000, 1234567} {
		s := FormatAmount(n)
		got, ok := ParseAmount(s)
		if !ok || got != n {
			t.Fatalf("round trip %d -> %q -> %d (ok=%v)", n, s, got, ok)
		}
	}
	if got := FormatAmount(19000); got != "19.000" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Código  ÑANDÚ ":      "codigo nandu",
		"Coca-Cola 1,5L":        "coca cola 1 5l",
		"ARROZ   grado-1 (5kg)": "arroz grado 1 5kg",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSignificantWords(t *testing.T) {
	got := SignificantWords("coca cola de 500ml lata")
	want := []string{"coca", "cola", "500ml", "lata"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("words mismatch (-want +got):\n%s", diff)
	}
}

func TestAlnumRatio(t *testing.T) {
	if r := AlnumRatio("COCA COLA 1500"); r != 1 {
		t.Fatalf("clean ratio=%v", r)
	}
	if r := AlnumRatio("~|_;: .,a"); r >= 0.3 {
		t.Fatalf("garbage ratio=%v", r)
	}
	if r := AlnumRatio("   "); r != 0 {
		t.Fatalf("blank ratio=%v", r)
	}
}
