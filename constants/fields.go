package constants

// FieldName identifies one of the four extracted W-2 fields.
type FieldName string

const (
	FieldEmployerID   FieldName = "employerIdNumber"
	FieldTaxpayerID   FieldName = "taxpayerIdNumber"
	FieldWages        FieldName = "wages"
	FieldFederalTaxWH FieldName = "federalTaxWithheld"
)

// Fields lists every field in validation order.
var Fields = []FieldName{
	FieldEmployerID,
	FieldTaxpayerID,
	FieldWages,
	FieldFederalTaxWH,
}

// IsMoney reports whether the field holds a money amount.
func (f FieldName) IsMoney() bool {
	return f == FieldWages || f == FieldFederalTaxWH
}
