// Package entities holds the data types exchanged by the analyzer's
// pipeline stages and returned by its HTTP API.
package entities

// UnknownMedication is the brand name given to records that carried none
const UnknownMedication = "Unknown Medication"

// Medicine is one medication read off a prescription. Optional fields are
// nil when the source said nothing about them and marshal as null.
type Medicine struct {
	BrandName string  `json:"brand_name"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	Duration  *string `json:"duration"`
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GenericAlternative is one generic equivalent of a brand-name medicine
type GenericAlternative struct {
	GenericName      string  `json:"generic_name"`
	EquivalentDosage *string `json:"equivalent_dosage"`
	PriceComparison  *string `json:"price_comparison"`
	Differences      *string `json:"differences"`
}

// Source tags the resolution path that produced a set of alternatives
type Source string

const (
	SourceCache  Source = "cache"
	SourceRxNorm Source = "rxnorm"
	SourceLLM    Source = "llm"
)

// MedicineWithAlternatives is the resolver's answer for one medicine
type MedicineWithAlternatives struct {
	BrandName           string               `json:"brand_name"`
	BrandDetails        Medicine             `json:"brand_details"`
	GenericAlternatives []GenericAlternative `json:"generic_alternatives"`
	Source              Source               `json:"source"`
}

// PrescriptionResponse is returned for an uploaded prescription image
type PrescriptionResponse struct {
	OriginalText string     `json:"original_text"`
	Medicines    []Medicine `json:"medicines"`
}

// DrugDetails are the properties of one terminology concept
type DrugDetails struct {
	Dosage          *string `json:"dosage"`
	Form            *string `json:"form"`
	PriceComparison string  `json:"price_comparison,omitempty"`
}

// DrugConcept is a generic drug concept found in a terminology source
type DrugConcept struct {
	GenericName string      `json:"generic_name"`
	RxCUI       string      `json:"rxcui"`
	Details     DrugDetails `json:"details"`
}
