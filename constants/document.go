package constants

// DocumentType is the only document type the analyze phase verifies.
const (
	DocumentType  = "huurovereenkomst"
	DocumentTitle = "Huurovereenkomst"
)

// Default folder layout.
const (
	OrganizedPrefix  = "/Georganiseerd"
	UnknownAddress   = "Onbekend_adres"
	FallbackFolder   = "Overig"
	RentalFolderPath = "/Contracten/Huurcontracten"
	ProcessingLog    = "/verwerking_log.csv"
)

// RentalKeywords mark organized folders that hold rental contracts.
var RentalKeywords = []string{"huur", "verhuur", "rental", "lease", "huurcontract", "huurovereenkomst"}

// ExcludeFolders are never scanned by the organize phase (the organized prefix is added at runtime).
var ExcludeFolders = []string{"/Camera Uploads", "/.dropbox", "/Apps"}

// PreferredModels is the model preference order used when listing is available.
var PreferredModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
}

// DefaultModel is used when model listing fails.
const DefaultModel = "gemini-2.5-flash"

// MissingSentinel is what extraction prompts ask the model to write for absent data.
const MissingSentinel = "ONTBREKEND"
