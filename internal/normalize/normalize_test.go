package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func TestNormalizeTenantShapesAgree(t *testing.T) {
	asString := decode(t, `{
		"contract_type": "Huurovereenkomst",
		"partijen": {"verhuurder": "Jan Peeters", "huurder": "Marie Dupont"},
		"financieel": {"huurprijs": "€ 950,00"}
	}`)
	asList := decode(t, `{
		"contract_type": "huurovereenkomst",
		"partijen": {"verhuurder": {"naam": "Jan Peeters"}, "huurder": [{"naam": "Marie Dupont"}]},
		"financieel": {"huurprijs": 950}
	}`)

	n := NewNormalizer(nil)
	a, err := n.Normalize(asString)
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Normalize(asList)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("normalized records differ:\n%+v\n%+v", a, b)
	}
	if a.Partijen.Huurder.Naam != "Marie Dupont" || *a.Financieel.Huurprijs != 950 {
		t.Errorf("unexpected record %+v", a)
	}
}

func TestNormalizeMultipleTenants(t *testing.T) {
	raw := decode(t, `{"partijen": {"huurders": [
		{"naam": "Marie Dupont", "adres": "Veldstraat 1, Gent", "gsm": "0470 12 34 56"},
		"Peter Vermeulen",
		{"naam": "ONTBREKEND"}
	]}}`)
	c, err := NewNormalizer(nil).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := Partij{Naam: "Marie Dupont & Peter Vermeulen", Adres: "Veldstraat 1, Gent", Telefoon: "0470 12 34 56"}
	if c.Partijen.Huurder != want {
		t.Errorf("huurder = %+v, want %+v", c.Partijen.Huurder, want)
	}
}

func TestNormalizeFixedShape(t *testing.T) {
	n := NewNormalizer(nil)
	empty, err := n.Normalize(map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	full, err := n.Normalize(decode(t, fullFixture))
	if err != nil {
		t.Fatal(err)
	}

	var keys func(prefix string, m map[string]any) []string
	keys = func(prefix string, m map[string]any) []string {
		var out []string
		for k, v := range m {
			out = append(out, prefix+k)
			if sub, ok := v.(map[string]any); ok {
				out = append(out, keys(prefix+k+".", sub)...)
			}
		}
		return out
	}
	set := func(ks []string) map[string]bool {
		s := map[string]bool{}
		for _, k := range ks {
			s[k] = true
		}
		return s
	}
	ek, fk := set(keys("", empty.Tree())), set(keys("", full.Tree()))
	if !reflect.DeepEqual(ek, fk) {
		t.Errorf("shape differs between empty and full input:\n%v\n%v", ek, fk)
	}
	if len(ek) != 46 {
		t.Errorf("canonical record has %d keys, want 46", len(ek))
	}

	if empty.ContractType != "huurovereenkomst" || empty.Pand.Type != "appartement" {
		t.Errorf("defaults = %q %q", empty.ContractType, empty.Pand.Type)
	}
	if empty.Financieel.Huurprijs != nil || empty.Voorwaarden.Huisdieren != nil || empty.Periodes.Ingangsdatum != nil {
		t.Error("absent values must be null")
	}
}

const fullFixture = `{
	"contract_data": {
		"document_type": "Huurovereenkomst",
		"datum": "15/01/2024",
		"partijen": {
			"verhuurder": {"naam": "Vastgoed NV", "zetel": "Industrielaan 5, 9000 Gent", "telefoon": "+32 9 123 45 67", "e-mail": "info@vastgoed.be"},
			"huurder": {"naam": "Marie Dupont", "woonplaats": "Gent", "telefoon": "ONTBREKEND", "email": "marie@example.be"}
		},
		"onderwerp": {
			"adres": {"straat": "Kerkstraat", "nummer": "10", "postcode": "9000", "stad": "Gent"},
			"type_woning": "Studio",
			"totale_bewoonbare_oppervlakte": "45 m²",
			"kamers": 1,
			"verdieping": "2",
			"epc": "B",
			"kadaster": {"afdeling": "Gent 1", "sectie": "A", "perceelnummer": "123B", "ki": "€ 1.250"}
		},
		"financieel": {
			"maandelijkse_huurprijs": {"bedrag": "€ 1.250,50"},
			"huurwaarborg": {"bedrag": 2501, "bank": "KBC", "iban": "BE12 3456 7890 1234"},
			"gemeenschappelijke_kosten": {"inbegrepen": [{"post": "water"}, {"post": "lift"}]},
			"indexering": "ja"
		},
		"periodes": {"aanvang": "1-2-2024", "einde": "2033/01/31", "looptijd": "9 jaar", "opzegtermijn_huurder": "3 maanden", "opzegtermijn_verhuurder": "6 maanden"},
		"voorwaarden": {"huisdieren": {"toegestaan": "nee"}, "onderverhuur": "verboden", "werken": "mits akkoord"},
		"juridisch": {"toepasselijk_recht": "Vlaams Woninghuurdecreet", "bevoegde_rechtbank": "Vrederechter Gent"}
	}
}`

func TestNormalizeSynonymsAndCoercion(t *testing.T) {
	c, err := NewNormalizer(nil).Normalize(decode(t, fullFixture))
	if err != nil {
		t.Fatal(err)
	}
	f, b, s := func(v float64) *float64 { return &v }, func(v bool) *bool { return &v }, func(v string) *string { return &v }
	want := &Contract{
		ContractType:  "huurovereenkomst",
		DatumContract: s("2024-01-15"),
		Partijen: Partijen{
			Verhuurder: Partij{Naam: "Vastgoed NV", Adres: "Industrielaan 5, 9000 Gent", Telefoon: "+32 9 123 45 67", Email: "info@vastgoed.be"},
			Huurder:    Partij{Naam: "Marie Dupont", Adres: "Gent", Email: "marie@example.be"},
		},
		Pand: Pand{
			Adres:        "Kerkstraat 10, 9000 Gent",
			Type:         "Studio",
			Oppervlakte:  f(45),
			AantalKamers: f(1),
			Verdieping:   f(2),
			EPC:          EPC{Energielabel: "B"},
			Kadaster:     Kadaster{Afdeling: "Gent 1", Sectie: "A", Nummer: "123B", KadastraalInkomen: f(1250)},
		},
		Financieel: Financieel{
			Huurprijs: f(1250.5),
			Waarborg:  Waarborg{Bedrag: f(2501), WaarGedeponeerd: "KBC (rekening BE12 3456 7890 1234)"},
			Kosten:    "Gemeenschappelijke kosten (water, lift) zijn inbegrepen in de huurprijs.",
			Indexatie: b(true),
		},
		Periodes: Periodes{
			Ingangsdatum: s("2024-02-01"),
			Einddatum:    s("2033-01-31"),
			Duur:         "9 jaar",
			Opzegtermijn: "3 maanden (huurder); 6 maanden (verhuurder)",
		},
		Voorwaarden: Voorwaarden{Huisdieren: b(false), Onderverhuur: b(false), Werken: "mits akkoord"},
		Juridisch:   Juridisch{ToepasselijkRecht: "Vlaams Woninghuurdecreet", BevoegdeRechtbank: "Vrederechter Gent"},
	}
	if !reflect.DeepEqual(c, want) {
		got, _ := json.MarshalIndent(c, "", "  ")
		exp, _ := json.MarshalIndent(want, "", "  ")
		t.Errorf("Normalize =\n%s\nwant\n%s", got, exp)
	}
}

func TestNormalizeFalseIsNotMissing(t *testing.T) {
	c, err := NewNormalizer(nil).Normalize(decode(t, `{"financieel": {"indexatie": false, "indexering": true}}`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Financieel.Indexatie == nil || *c.Financieel.Indexatie {
		t.Errorf("indexatie = %v, want false", c.Financieel.Indexatie)
	}
}

func TestNormalizeErrors(t *testing.T) {
	n := NewNormalizer(nil)
	if _, err := n.Normalize(map[string]any{"error": "QUOTA_EXCEEDED"}); !errors.Is(err, ErrNormalization) {
		t.Errorf("upstream error: %v", err)
	}
	c, err := n.Normalize(nil)
	if err != nil || c.ContractType != "huurovereenkomst" {
		t.Errorf("nil input = (%+v, %v)", c, err)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{950.0, 950.0},
		{"950", 950.0},
		{"€ 950,50", 950.5},
		{"€ 1.250,50", 1250.5},
		{"1,250.50 USD", 1250.5},
		{"1.250", 1250.0},
		{"12.50", 12.5},
		{"0.250", 0.25},
		{"850 EUR per maand", 850.0},
		{"ONTBREKEND", nil},
		{"geen", nil},
		{"", nil},
		{true, nil},
	}
	for _, tt := range tests {
		got := number(tt.in)
		if tt.want == nil {
			if got != nil {
				t.Errorf("number(%v) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want.(float64) {
			t.Errorf("number(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"2024-01-15", "2024-01-15"},
		{"15-01-2024", "2024-01-15"},
		{"15/1/2024", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{" 1-2-2024 ", "2024-02-01"},
		{"1 februari 2024", "1 februari 2024"},
		{"N/A", ""},
		{nil, ""},
	}
	for _, tt := range tests {
		got := date(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("date(%v) = %q, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("date(%v) = %v, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBoolean(t *testing.T) {
	tests := []struct {
		in   any
		want *bool
	}{
		{true, ptr(true)},
		{"Ja", ptr(true)},
		{"toegestaan", ptr(true)},
		{"NEE", ptr(false)},
		{"verboden", ptr(false)},
		{0.0, ptr(false)},
		{1.0, ptr(true)},
		{"misschien", nil},
		{2.0, nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got := boolean(tt.in)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("boolean(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func ptr(b bool) *bool { return &b }
