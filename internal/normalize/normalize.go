package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/projectvak/contract-pipeline/constants"
)

// ErrNormalization is returned for any record that could not be normalized.
var ErrNormalization = errors.New("normalization failed")

// Normalizer reshapes raw extraction output into a Contract. It probes a
// prioritized list of synonym keys per field and coerces values to one
// type each. It does no I/O.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize is all-or-nothing: any failure returns a nil Contract and an
// error wrapping ErrNormalization.
func (n *Normalizer) Normalize(raw map[string]any) (c *Contract, err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("normalize.panic", "panic", r)
			c, err = nil, fmt.Errorf("%w: %v", ErrNormalization, r)
		}
	}()

	data := unwrap(raw)
	if e, ok := data["error"]; ok {
		return nil, fmt.Errorf("%w: upstream error: %s", ErrNormalization, text(e))
	}

	c = &Contract{
		ContractType:  contractType(data),
		DatumContract: date(first(data, "datum_contract", "datum", "contract_datum")),
		Partijen:      partijen(data),
		Pand:          pand(data),
		Financieel:    financieel(data),
		Periodes:      periodes(data),
		Voorwaarden:   voorwaarden(data),
		Juridisch:     juridisch(data),
	}
	return c, nil
}

// unwrap strips the envelopes some answers arrive in.
func unwrap(raw map[string]any) map[string]any {
	for _, k := range []string{"contract_data", "data", "extracted_data"} {
		if m, ok := raw[k].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	if raw == nil {
		return map[string]any{}
	}
	return raw
}

func contractType(data map[string]any) string {
	ct := firstText(data, "contract_type", "document_type", "type")
	if ct == "" {
		return constants.DocumentType
	}
	return strings.ToLower(ct)
}

func partijen(data map[string]any) Partijen {
	p := asMap(get(data, "partijen"))

	landlords := parties(get(p, "verhuurder"))
	if len(landlords) == 0 {
		landlords = parties(get(p, "verhuurders"))
	}
	tenants := parties(get(p, "huurders"))
	if len(tenants) == 0 {
		tenants = parties(get(p, "huurder"))
	}

	lead := func(list []map[string]any) map[string]any {
		if len(list) == 0 {
			return map[string]any{}
		}
		return list[0]
	}
	v, h := lead(landlords), lead(tenants)
	return Partijen{
		Verhuurder: Partij{
			Naam:     joinNames(landlords),
			Adres:    firstText(v, "adres", "zetel"),
			Telefoon: firstText(v, "telefoon", "gsm"),
			Email:    firstText(v, "email", "e-mail"),
		},
		Huurder: Partij{
			Naam:     joinNames(tenants),
			Adres:    firstText(h, "adres", "woonplaats"),
			Telefoon: firstText(h, "telefoon", "gsm"),
			Email:    firstText(h, "email", "e-mail"),
		},
	}
}

// parties accepts a name, a party object or a list of either.
func parties(v any) []map[string]any {
	switch t := v.(type) {
	case string:
		if isMissing(t) {
			return nil
		}
		return []map[string]any{{"naam": t}}
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, parties(item)...)
		}
		return out
	}
	return nil
}

func joinNames(list []map[string]any) string {
	var names []string
	for _, p := range list {
		if n := firstText(p, "naam", "name"); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, " & ")
}

func pand(data map[string]any) Pand {
	p := asMap(first(data, "pand", "onderwerp"))

	var adres string
	switch a := get(p, "adres").(type) {
	case map[string]any:
		adres = firstText(a, "volledig_adres", "volledig")
		if adres == "" {
			var parts []string
			if s := strings.TrimSpace(text(get(a, "straat")) + " " + text(get(a, "nummer"))); s != "" {
				parts = append(parts, s)
			}
			if s := strings.TrimSpace(text(get(a, "postcode")) + " " + text(get(a, "stad"))); s != "" {
				parts = append(parts, s)
			}
			adres = strings.Join(parts, ", ")
		}
	default:
		adres = text(a)
	}

	epc := get(p, "epc")
	if s, ok := epc.(string); ok {
		epc = map[string]any{"label": s}
	}
	kadaster := get(p, "kadaster")

	typ := firstText(p, "type", "type_woning")
	if typ == "" {
		typ = "appartement"
	}
	return Pand{
		Adres:        adres,
		Type:         typ,
		Oppervlakte:  number(first(p, "oppervlakte", "totale_bewoonbare_oppervlakte")),
		AantalKamers: number(first(p, "aantal_kamers", "kamers")),
		Verdieping:   number(get(p, "verdieping")),
		EPC: EPC{
			Energielabel:      firstText(epc, "energielabel", "label"),
			Certificaatnummer: firstText(epc, "certificaatnummer", "nummer"),
		},
		Kadaster: Kadaster{
			Afdeling:          firstText(kadaster, "afdeling"),
			Sectie:            firstText(kadaster, "sectie"),
			Nummer:            firstText(kadaster, "nummer", "perceelnummer"),
			KadastraalInkomen: number(first(kadaster, "kadastraal_inkomen", "ki")),
		},
	}
}

func financieel(data map[string]any) Financieel {
	f := asMap(get(data, "financieel"))

	rent := first(f, "huurprijs", "maandelijkse_huurprijs")
	if m, ok := rent.(map[string]any); ok {
		rent = get(m, "bedrag")
	}

	deposit := first(f, "waarborg", "huurwaarborg")
	switch d := deposit.(type) {
	case float64, string:
		deposit = map[string]any{"bedrag": d}
	}

	where := firstText(deposit, "waar_gedeponeerd")
	if where == "" {
		var parts []string
		if bank := firstText(deposit, "bank_naam", "bank"); bank != "" {
			parts = append(parts, bank)
		}
		if iban := firstText(deposit, "iban"); iban != "" {
			parts = append(parts, "(rekening "+iban+")")
		}
		where = strings.Join(parts, " ")
	}

	return Financieel{
		Huurprijs: number(rent),
		Waarborg: Waarborg{
			Bedrag:          number(get(deposit, "bedrag")),
			WaarGedeponeerd: where,
		},
		Kosten:    kosten(f),
		Indexatie: boolean(first(f, "indexatie", "indexering")),
	}
}

func kosten(f map[string]any) string {
	if k := firstText(f, "kosten"); k != "" {
		return k
	}
	shared, ok := get(f, "gemeenschappelijke_kosten").(map[string]any)
	if !ok {
		return ""
	}
	items, _ := get(shared, "inbegrepen").([]any)
	if len(items) == 0 {
		return ""
	}
	var posts []string
	for _, item := range items {
		switch it := item.(type) {
		case map[string]any:
			if post := firstText(it, "post"); post != "" {
				posts = append(posts, post)
			}
		case string:
			if !isMissing(it) {
				posts = append(posts, strings.TrimSpace(it))
			}
		}
	}
	if len(posts) == 0 {
		return "Gemeenschappelijke kosten inbegrepen."
	}
	return fmt.Sprintf("Gemeenschappelijke kosten (%s) zijn inbegrepen in de huurprijs.", strings.Join(posts, ", "))
}

func periodes(data map[string]any) Periodes {
	p := asMap(get(data, "periodes"))

	notice := firstText(p, "opzegtermijn")
	if notice == "" {
		var parts []string
		if t := firstText(p, "opzegtermijn_huurder"); t != "" {
			parts = append(parts, t+" (huurder)")
		}
		if t := firstText(p, "opzegtermijn_verhuurder"); t != "" {
			parts = append(parts, t+" (verhuurder)")
		}
		notice = strings.Join(parts, "; ")
	}

	return Periodes{
		Ingangsdatum: date(first(p, "ingangsdatum", "aanvang", "start")),
		Einddatum:    date(first(p, "einddatum", "einde")),
		Duur:         firstText(p, "duur", "contract_type_duur", "looptijd"),
		Opzegtermijn: notice,
	}
}

func voorwaarden(data map[string]any) Voorwaarden {
	v := asMap(get(data, "voorwaarden"))
	return Voorwaarden{
		Huisdieren:   boolean(get(v, "huisdieren")),
		Onderverhuur: boolean(get(v, "onderverhuur")),
		Werken:       firstText(v, "werken"),
	}
}

func juridisch(data map[string]any) Juridisch {
	j := asMap(get(data, "juridisch"))
	return Juridisch{
		ToepasselijkRecht: firstText(j, "toepasselijk_recht"),
		BevoegdeRechtbank: firstText(j, "bevoegde_rechtbank"),
	}
}
