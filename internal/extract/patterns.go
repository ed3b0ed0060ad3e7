package extract

import "regexp"

// Shapes used inside a label window. Hyphens are optional there; the label
// already anchors the value.
var (
	reEINLoose = regexp.MustCompile(`\b(\d{2}-?\d{7})\b`)
	reSSNLoose = regexp.MustCompile(`\b(\d{3}-?\d{2}-?\d{4})\b`)
)

// Standalone shapes for the pattern fallback require the canonical hyphens so
// bare digit runs (control numbers, zip codes) are not picked up.
var (
	reEINStrict = regexp.MustCompile(`\b(\d{2}-\d{7})\b`)
	reSSNStrict = regexp.MustCompile(`\b(\d{3}-\d{2}-\d{4})\b`)
)

// reMoney matches an amount with a thousands separator or a decimal part,
// or any digit run directly after a dollar sign. Bare integers are skipped
// because box numbers ("1", "2", "12a") sit next to the values on the form.
var reMoney = regexp.MustCompile(`\$?\s*\b(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+\.\d{1,2})\b|\$\s*(\d+)\b`)

// Label synonyms per field, tried in order.
var (
	employerIDLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)employer[^\n]{0,40}identification[^\n]{0,20}number`),
		regexp.MustCompile(`(?i)employer'?s?\s+EIN\b`),
		regexp.MustCompile(`\bEIN\b`),
		regexp.MustCompile(`(?i)\bbox\s*b\b`),
	}
	taxpayerIDLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)employee'?s?\s+social\s+security\s+(?:number|no\.?)?`),
		regexp.MustCompile(`(?i)social\s+security\s+number`),
		regexp.MustCompile(`\bSSN\b`),
		regexp.MustCompile(`(?i)\bbox\s*a\b`),
	}
	wagesLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)wages[,\s]+tips[,\s]+(?:and\s+)?other\s+comp(?:ensation)?`),
		regexp.MustCompile(`(?i)\bbox\s*1\b`),
		regexp.MustCompile(`(?i)\b1\s+wages\b`),
	}
	federalTaxLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)federal\s+income\s+tax\s+withheld`),
		regexp.MustCompile(`(?i)\bbox\s*2\b`),
		regexp.MustCompile(`(?i)\b2\s+federal\b`),
	}
)

// Window sizes in bytes after a label.
const (
	identifierWindow = 200
	moneyWindow      = 100
	// columnLines is how many following lines are searched below a label
	// in column layouts produced by pdftotext -layout.
	columnLines = 3
)
