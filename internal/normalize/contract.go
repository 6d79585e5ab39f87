package normalize

import "encoding/json"

// Contract is the canonical record of one rental contract. Every document
// produces exactly this shape: absent strings are "", absent numbers,
// dates and booleans are null.
type Contract struct {
	ContractType  string      `json:"contract_type"`
	DatumContract *string     `json:"datum_contract"`
	Partijen      Partijen    `json:"partijen"`
	Pand          Pand        `json:"pand"`
	Financieel    Financieel  `json:"financieel"`
	Periodes      Periodes    `json:"periodes"`
	Voorwaarden   Voorwaarden `json:"voorwaarden"`
	Juridisch     Juridisch   `json:"juridisch"`
}

type Partijen struct {
	Verhuurder Partij `json:"verhuurder"`
	Huurder    Partij `json:"huurder"`
}

// Partij is a landlord or tenant. Several tenants share one Partij whose
// name joins theirs with " & ".
type Partij struct {
	Naam     string `json:"naam"`
	Adres    string `json:"adres"`
	Telefoon string `json:"telefoon"`
	Email    string `json:"email"`
}

type Pand struct {
	Adres        string   `json:"adres"`
	Type         string   `json:"type"`
	Oppervlakte  *float64 `json:"oppervlakte"`
	AantalKamers *float64 `json:"aantal_kamers"`
	Verdieping   *float64 `json:"verdieping"`
	EPC          EPC      `json:"epc"`
	Kadaster     Kadaster `json:"kadaster"`
}

type EPC struct {
	Energielabel      string `json:"energielabel"`
	Certificaatnummer string `json:"certificaatnummer"`
}

type Kadaster struct {
	Afdeling          string   `json:"afdeling"`
	Sectie            string   `json:"sectie"`
	Nummer            string   `json:"nummer"`
	KadastraalInkomen *float64 `json:"kadastraal_inkomen"`
}

type Financieel struct {
	Huurprijs *float64 `json:"huurprijs"`
	Waarborg  Waarborg `json:"waarborg"`
	Kosten    string   `json:"kosten"`
	Indexatie *bool    `json:"indexatie"`
}

type Waarborg struct {
	Bedrag          *float64 `json:"bedrag"`
	WaarGedeponeerd string   `json:"waar_gedeponeerd"`
}

type Periodes struct {
	Ingangsdatum *string `json:"ingangsdatum"`
	Einddatum    *string `json:"einddatum"`
	Duur         string  `json:"duur"`
	Opzegtermijn string  `json:"opzegtermijn"`
}

type Voorwaarden struct {
	Huisdieren   *bool  `json:"huisdieren"`
	Onderverhuur *bool  `json:"onderverhuur"`
	Werken       string `json:"werken"`
}

type Juridisch struct {
	ToepasselijkRecht string `json:"toepasselijk_recht"`
	BevoegdeRechtbank string `json:"bevoegde_rechtbank"`
}

// Tree returns the record as a generic JSON tree.
func (c *Contract) Tree() map[string]any {
	b, err := json.Marshal(c)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}
