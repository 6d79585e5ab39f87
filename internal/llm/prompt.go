package llm

import (
	"fmt"
	"strings"

	"github.com/projectvak/contract-pipeline/internal/common"
)

// VisionOCRPrompt asks a vision model for a verbatim transcription.
const VisionOCRPrompt = "Extract ALL text from these images. Include handwritten text if present. Return ONLY the extracted text, no explanations."

// ClassifyInput is everything the classification prompt embeds.
type ClassifyInput struct {
	TextSample      string
	Filename        string
	Location        string
	ExistingFolders string
	PagesScanned    int
	TotalPages      int
	Method          string
}

// BuildClassifyPrompt renders the folder routing prompt. Level one of the
// organized tree is one folder per property address.
func BuildClassifyPrompt(in ClassifyInput) string {
	methodNote := ""
	if in.Method == "ocr" {
		methodNote = " (OCR used)"
	}
	folders := strings.TrimSpace(in.ExistingFolders)
	if folders == "" {
		folders = "Geen mappen nog - eerste document."
	}

	var b strings.Builder
	b.WriteString("SYSTEM: Je bent een EXPERT documentclassificeerder. NIVEAU 1 = één map per ADRES. ")
	b.WriteString("Alle documenten voor hetzelfde adres gaan in dezelfde map.\n\n")
	b.WriteString("CRITICAL: folder_path is ALTIJD /Adres (bv. /Kerkstraat_10, /Eikelstraat_22). Geen submappen op type. ")
	b.WriteString("Als het adres uit het document al als map bestaat in EXISTING FOLDERS → action \"existing\" en die folder_path. ")
	b.WriteString("Anders → action \"new\" en folder_path = /Adres (nieuwe map aanmaken).\n\n")
	fmt.Fprintf(&b, "FILENAME: %s\n", in.Filename)
	fmt.Fprintf(&b, "LOCATION: %s\n", in.Location)
	fmt.Fprintf(&b, "EXTRACTION: %d/%d pages%s\n\n", in.PagesScanned, in.TotalPages, methodNote)
	b.WriteString("EXISTING FOLDERS (niveau 1 = adres-mappen; nieuwe doc voor zelfde adres → zelfde map):\n")
	b.WriteString(folders)
	b.WriteString("\n\nDOCUMENT TEXT:\n")
	b.WriteString(in.TextSample)
	b.WriteString(`

REGELS - NIVEAU 1 = ADRES

1. ADRES BEPALEN:
   - Haal straat + nummer uit de tekst (bv. Kerkstraat 10 → folder_path /Kerkstraat_10). Spaties/tekens → underscore in mapnaam.
   - Als geen adres of onzeker → folder_path /Onbekend_adres.

2. ZELFDE ADRES = ZELFDE MAP:
   - Bestaat er in EXISTING FOLDERS al een map voor dat adres → action "existing" met die folder_path.
   - Heeft dat adres nog geen map → action "new" en folder_path /Straat_Nummer (map wordt aangemaakt).
   - Huurcontract en EPC voor hetzelfde adres → BEIDE in dezelfde map, met verschillende bestandsnamen.

3. DOCUMENTTYPE (alleen voor suggested_filename):
   - Bepaal type: huurcontract, EPC, eigendomstitel, factuur, enz. Kleine letters in de bestandsnaam.
   - suggested_filename = Adres_Type.pdf (bv. Kerkstraat_10_huurcontract.pdf, Kerkstraat_10_EPC.pdf).
   - Adres onbekend → Onbekend_adres; type onduidelijk → document.
   - Alleen letters, cijfers, underscores; eindig op .pdf.

ANTWOORD FORMAT (ALLEEN JSON, geen tekst ervoor/erna):
{
  "action": "existing",
  "folder_path": "/Kerkstraat_10",
  "confidence": 98,
  "reasoning": "Document over Kerkstraat 10; map /Kerkstraat_10 bestaat al, dus hierin plaatsen",
  "description": "Kerkstraat 10",
  "suggested_filename": "Kerkstraat_10_huurcontract.pdf"
}

Nieuwe adres-map:
{
  "action": "new",
  "folder_path": "/Eikelstraat_22",
  "confidence": 100,
  "reasoning": "Document over Eikelstraat 22; map bestaat nog niet, aanmaken",
  "description": "Eikelstraat 22",
  "suggested_filename": "Eikelstraat_22_EPC.pdf"
}

JSON:`)
	return b.String()
}

// Extraction stages in execution order.
const (
	StageMetadata    = "metadata"
	StagePartijen    = "partijen"
	StagePand        = "pand"
	StageFinancieel  = "financieel"
	StagePeriodes    = "periodes"
	StageVoorwaarden = "voorwaarden"
	StageJuridisch   = "juridisch"
)

// Stages lists every extraction stage in the order they run.
var Stages = []string{
	StageMetadata, StagePartijen, StagePand, StageFinancieel,
	StagePeriodes, StageVoorwaarden, StageJuridisch,
}

type stagePrompt struct {
	task         string
	lookFor      []string
	rules        []string
	example      string
	extraContext bool
	shortText    bool // only the first window of the main chunk
}

var stagePrompts = map[string]stagePrompt{
	StageMetadata: {
		task:      "Extraheer algemene contract informatie.",
		lookFor:   []string{"Type contract (huurovereenkomst/huurcontract)", "Datum van ondertekening contract"},
		shortText: true,
		example: `{
  "contract_type": "huurovereenkomst",
  "datum_contract": "2025-03-18"
}`,
	},
	StagePartijen: {
		task: "Extraheer ALLE informatie over verhuurder(s) en huurder(s).",
		lookFor: []string{
			"Volledige namen (voor + achternaam, of bedrijfsnaam)",
			"Adressen (straat + nummer + bus + postcode + stad)",
			"Telefoonnummers (vast + GSM)",
			"Email adressen",
			"BTW nummers (voor bedrijven)",
			"Rijksregisternummers",
		},
		rules: []string{
			`Als er MEERDERE huurders zijn → combineer namen met " & "`,
			`Als adres NIET vermeld → gebruik "ONTBREKEND"`,
			`Als telefoon NIET vermeld → gebruik "ONTBREKEND"`,
			"Kopieer exacte spelling uit contract",
		},
		example: `{
  "verhuurder": {
    "naam": "Vastgoed Beheer NV",
    "adres": "Industrielaan 5, 9000 Gent",
    "telefoon": "+32 9 123 45 67",
    "email": "info@vastgoedbeheer.be"
  },
  "huurder": {
    "naam": "Marie Dupont & Peter Vermeulen",
    "adres": "Voorlopig adres: Kerkstraat 5, 1000 Brussel",
    "telefoon": "+32 2 987 65 43",
    "email": "marie.dupont@email.be"
  }
}`,
	},
	StagePand: {
		task: "Extraheer ALLE informatie over het gehuurde pand.",
		lookFor: []string{
			"Volledig adres (straat + nummer + bus + postcode + stad)",
			"Type woning (appartement/huis/studio/etc)",
			"Oppervlakte in m² (bewoonbare oppervlakte)",
			"Aantal kamers / slaapkamers",
			"Verdieping",
			"EPC energielabel (A+, A, B, C, D, E, F)",
			"EPC certificaatnummer (lang nummer zoals 20231205-0001234-00000001)",
			"Kadastrale gegevens (afdeling, sectie, nummer, kadastraal inkomen)",
		},
		rules: []string{
			`Oppervlakte = alleen het getal (geen "m²")`,
			"Kadastraal inkomen = bedrag in euro (getal)",
			`Als NIET vermeld → gebruik "ONTBREKEND"`,
			"Kopieer exacte adressen zoals in contract",
		},
		example: `{
  "adres": "Kerkstraat 10 bus 3, 1000 Brussel",
  "type": "appartement",
  "oppervlakte": 85.5,
  "aantal_kamers": 3,
  "verdieping": 2,
  "epc": {
    "energielabel": "B",
    "certificaatnummer": "20231205-0001234-00000001"
  },
  "kadaster": {
    "afdeling": "Brussel 1e afdeling",
    "sectie": "A",
    "nummer": "123/4B",
    "kadastraal_inkomen": 1234.56
  }
}`,
	},
	StageFinancieel: {
		task: "Extraheer ALLE financiële informatie.",
		lookFor: []string{
			"Maandelijkse huurprijs (bedrag in euro)",
			"Waarborg/huurwaarborg bedrag",
			"Bank waar waarborg gedeponeerd is (naam + IBAN rekening)",
			"Gemeenschappelijke kosten (wat is inbegrepen)",
			"Privélasten (energie, water, gas, internet)",
			"Indexatie (ja/nee)",
		},
		rules: []string{
			"Huurprijs = alleen het getal (geen € teken)",
			"Waarborg bedrag = alleen het getal",
			`waar_gedeponeerd = "Banknaam (rekening BE12 3456 7890 1234)"`,
			"kosten = beschrijving in tekst (wat inbegrepen, wat apart)",
			"indexatie = true/false",
		},
		extraContext: true,
		example: `{
  "huurprijs": 1150.0,
  "waarborg": {
    "bedrag": 3450.0,
    "waar_gedeponeerd": "Belfius Bank (rekening BE71 0961 2345 6769)"
  },
  "kosten": "Gemeenschappelijke kosten (verwarming, water, lift) zijn inbegrepen in de huurprijs. Privélasten (elektriciteit, gas, internet) zijn voor rekening van huurder.",
  "indexatie": true,
  "gemeenschappelijke_kosten": {
    "inbegrepen": [
      {"post": "Verwarming"},
      {"post": "Water"},
      {"post": "Lift"}
    ]
  }
}`,
	},
	StagePeriodes: {
		task: "Extraheer ALLE informatie over periodes en termijnen.",
		lookFor: []string{
			"Ingangsdatum / aanvangsdatum (datum wanneer huur start)",
			"Einddatum (als contract bepaalde duur heeft)",
			`Duur van het contract (bijv. "9 jaar", "3 jaar", "onbepaalde duur")`,
			"Opzegtermijn voor huurder (hoeveel maanden)",
			"Opzegtermijn voor verhuurder (hoeveel maanden)",
			"Eventuele verlengingsvoorwaarden",
		},
		rules: []string{
			`Datums in formaat YYYY-MM-DD (bijv. "2025-05-01")`,
			`Als geen einddatum → "ONTBREKEND"`,
			"Opzegtermijnen apart voor huurder en verhuurder",
			"Duur = letterlijk zoals in contract staat",
		},
		extraContext: true,
		example: `{
  "ingangsdatum": "2025-05-01",
  "einddatum": "ONTBREKEND",
  "duur": "9 jaar",
  "opzegtermijn_huurder": "3 maanden",
  "opzegtermijn_verhuurder": "6 maanden"
}`,
	},
	StageVoorwaarden: {
		task: "Extraheer ALLE bijzondere voorwaarden en bepalingen.",
		lookFor: []string{
			"Huisdieren toegestaan? (ja/nee/met toestemming)",
			"Onderverhuur toegestaan? (ja/nee)",
			"Werken/verbouwingen (wat mag/niet mag)",
			"Andere bijzondere bepalingen",
		},
		rules: []string{
			`huisdieren = true/false/"ONTBREKEND"`,
			"onderverhuur = true/false",
			"werken = beschrijving in tekst",
		},
		extraContext: true,
		example: `{
  "huisdieren": true,
  "onderverhuur": false,
  "werken": "Kleine herstellingswerken toegestaan. Grotere verbouwingen enkel met schriftelijke toestemming van verhuurder."
}`,
	},
	StageJuridisch: {
		task: "Extraheer juridische bepalingen.",
		lookFor: []string{
			`Toepasselijk recht (bijv. "Vlaams Woninghuurdecreet")`,
			`Bevoegde rechtbank / vrederechter (bijv. "Vrederechter van het kanton Gent")`,
		},
		extraContext: true,
		example: `{
  "toepasselijk_recht": "Vlaams Woninghuurdecreet van 9 november 2018",
  "bevoegde_rechtbank": "Vrederechter van het kanton Brussel"
}`,
	},
}

// StageTextLimit is how much of the main chunk the metadata stage sees.
const StageTextLimit = 5000

// BuildStagePrompt renders the prompt for one extraction stage. extra is the
// secondary text window; stages that do not use it ignore it.
func BuildStagePrompt(stage, text, extra string) (string, error) {
	sp, ok := stagePrompts[stage]
	if !ok {
		return "", fmt.Errorf("unknown extraction stage %q", stage)
	}
	if sp.shortText {
		text = common.Truncate(text, StageTextLimit)
	}

	var b strings.Builder
	b.WriteString("Je bent een expert in Belgische huurcontracten.\n\n")
	b.WriteString("TAAK: ")
	b.WriteString(sp.task)
	b.WriteString("\n\nZOEK SPECIFIEK NAAR:\n")
	for _, l := range sp.lookFor {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(sp.rules) > 0 {
		b.WriteString("\nBELANGRIJK:\n")
		for _, r := range sp.rules {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nCONTRACT TEKST:\n")
	b.WriteString(text)
	b.WriteString("\n")
	if sp.extraContext {
		b.WriteString("\nExtra context:\n")
		b.WriteString(common.Truncate(extra, StageTextLimit))
		b.WriteString("\n")
	}
	b.WriteString("\nVOORBEELD OUTPUT (volg deze structuur EXACT):\n")
	b.WriteString(sp.example)
	b.WriteString("\n\nALLEEN JSON (geen tekst ervoor/erna):")
	return b.String(), nil
}

// BuildSummaryPrompt asks for a short Dutch summary of a contract.
func BuildSummaryPrompt(docType, sample string) string {
	return fmt.Sprintf(`Maak een bondige samenvatting van dit %s in maximaal 3 korte alinea's.

Focus op:
- Partijen (verhuurder en huurder)
- Pand (adres en kenmerken)
- Financiële voorwaarden (huur, waarborg)
- Belangrijkste termijnen en voorwaarden

CONTRACT TEKST:
%s

Geef ALLEEN de samenvatting (geen introductie):`, docType, sample)
}
