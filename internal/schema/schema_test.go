package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRequest(t *testing.T) {
	v, err := Compile("report_request", ReportRequest())
	require.NoError(t, err)

	assert.NoError(t, v.ValidateJSON([]byte(`{"ein":"12-3456789","ssn":"123-45-6789","wages":"75000.00","federal_tax_withheld":"12500.00"}`)))

	tests := map[string]string{
		"missing wages": `{"ein":"12-3456789","ssn":"123-45-6789","federal_tax_withheld":"1.00"}`,
		"bad ein":       `{"ein":"123456789","ssn":"123-45-6789","wages":"1.00","federal_tax_withheld":"1.00"}`,
		"numeric wages": `{"ein":"12-3456789","ssn":"123-45-6789","wages":1,"federal_tax_withheld":"1.00"}`,
		"not json":      `{`,
		"not object":    `[]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, v.ValidateJSON([]byte(body)))
		})
	}
}

func TestIDResponses(t *testing.T) {
	report := MustCompile("report_response", ReportResponse())
	file := MustCompile("file_response", FileResponse())

	assert.NoError(t, report.ValidateJSON([]byte(`{"report_id":"r-1","extra":true}`)))
	assert.Error(t, report.ValidateJSON([]byte(`{"report_id":""}`)))
	assert.Error(t, report.ValidateJSON([]byte(`{"id":"r-1"}`)))
	assert.Error(t, report.ValidateJSON([]byte(`{"report_id":42}`)))

	assert.NoError(t, file.ValidateJSON([]byte(`{"file_id":"f-1"}`)))
	assert.Error(t, file.ValidateJSON([]byte(`{"report_id":"r-1"}`)))
}
