package entities

import "encoding/json"

// FAQ is one question/answer pair scraped from a medicine page
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// MedicineInfo is the structured content of a pharmacy generics page
type MedicineInfo struct {
	MedicineName      string            `json:"medicine_name"`
	Uses              []string          `json:"uses"`
	HowItWorks        string            `json:"how_it_works"`
	CommonSideEffects []string          `json:"common_side_effects"`
	ContentDetails    map[string]string `json:"content_details"`
	ExpertAdvice      []string          `json:"expert_advice"`
	FAQs              []FAQ             `json:"faqs"`
}

// PharmacyListing is one product found on a pharmacy search page
type PharmacyListing struct {
	MedicineName string `json:"medicine_name"`
	Price        string `json:"price"`
	Dosage       string `json:"dosage"`
	Quantity     string `json:"quantity"`
}

// PharmacyResult is either the listings of one pharmacy or the reason
// they could not be produced.
type PharmacyResult struct {
	Medicines   []PharmacyListing `json:"medicines"`
	SourceURL   string            `json:"source_url"`
	RawResponse string            `json:"raw_response,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// MarshalJSON writes failed results as a bare {"error": ...} object
func (r PharmacyResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	type plain PharmacyResult
	if r.Medicines == nil {
		r.Medicines = []PharmacyListing{}
	}
	return json.Marshal(plain(r))
}

// PriceComparison maps a pharmacy name to its result
type PriceComparison map[string]PharmacyResult
