package entity

// ExtractedFields holds the four validated W-2 values in normalized form.
type ExtractedFields struct {
	EmployerIDNumber   string `json:"employerIdNumber"`   // DD-DDDDDDD
	TaxpayerIDNumber   string `json:"taxpayerIdNumber"`   // DDD-DD-DDDD
	Wages              string `json:"wages"`              // decimal, two fraction digits
	FederalTaxWithheld string `json:"federalTaxWithheld"` // decimal, two fraction digits
}
