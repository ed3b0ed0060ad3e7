// Package extract pulls W-2 field candidates out of page text.
//
// Every field has an ordered list of strategies. The label-proximity strategy
// looks for a known label and reads the value right after it; the pattern
// fallback matches the field's shape anywhere in the text. The first strategy
// that yields a value wins. Fields are independent of each other.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/w2-reporter/constants"
)

// Strategy tags where a candidate came from. Lower values rank higher.
type Strategy int

const (
	StrategyLabel Strategy = iota
	StrategyPattern
)

func (s Strategy) String() string {
	switch s {
	case StrategyLabel:
		return "label"
	case StrategyPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Candidate is a normalized value found for a field.
type Candidate struct {
	Field    constants.FieldName
	Value    string
	Strategy Strategy
}

// Candidates maps each found field to its candidate. Missing keys mean the
// field was not found.
type Candidates map[constants.FieldName]Candidate

// Finder is one extraction strategy for one field.
type Finder struct {
	Strategy Strategy
	Find     func(text string) (string, bool)
}

type Option func(*Extractor)

// WithReservedEINPrefixes sets the prefixes the EIN pattern fallback skips.
func WithReservedEINPrefixes(prefixes []string) Option {
	return func(e *Extractor) {
		if len(prefixes) > 0 {
			e.reservedEIN = prefixes
		}
	}
}

// WithFinders replaces the strategy list of a field.
func WithFinders(field constants.FieldName, finders ...Finder) Option {
	return func(e *Extractor) {
		e.custom[field] = finders
	}
}

type Extractor struct {
	finders     map[constants.FieldName][]Finder
	custom      map[constants.FieldName][]Finder
	reservedEIN []string
	logger      *slog.Logger
}

func NewExtractor(logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		custom:      map[constants.FieldName][]Finder{},
		reservedEIN: []string{"9"},
		logger:      logger,
	}
	for _, o := range opts {
		o(e)
	}
	e.finders = e.defaultFinders()
	for f, fs := range e.custom {
		e.finders[f] = fs
	}
	return e
}

func (e *Extractor) defaultFinders() map[constants.FieldName][]Finder {
	einLabel := shapeMatcher(reEINLoose, NormalizeEIN, nil)
	ssnLabel := shapeMatcher(reSSNLoose, NormalizeSSN, nil)
	money := shapeMatcher(reMoney, NormalizeMoney, nil)

	return map[constants.FieldName][]Finder{
		constants.FieldEmployerID: {
			labelFinder(employerIDLabels, identifierWindow, einLabel),
			patternFinder(shapeMatcher(reEINStrict, NormalizeEIN, e.plausibleEIN)),
		},
		constants.FieldTaxpayerID: {
			labelFinder(taxpayerIDLabels, identifierWindow, ssnLabel),
			patternFinder(shapeMatcher(reSSNStrict, NormalizeSSN, plausibleSSN)),
		},
		constants.FieldWages: {
			labelFinder(wagesLabels, moneyWindow, money),
			patternFinder(nthMoney(0)),
		},
		constants.FieldFederalTaxWH: {
			labelFinder(federalTaxLabels, moneyWindow, money),
			patternFinder(nthMoney(1)),
		},
	}
}

// Extract returns the candidates found in the concatenated page text. It
// never fails; absent fields are simply missing from the result.
func (e *Extractor) Extract(pages []string) Candidates {
	text := strings.Join(pages, "\n")
	out := make(Candidates, len(constants.Fields))

	for _, field := range constants.Fields {
		for _, f := range e.finders[field] {
			v, ok := f.Find(text)
			if !ok {
				continue
			}
			out[field] = Candidate{Field: field, Value: v, Strategy: f.Strategy}
			e.logger.Debug("extract.field.found", "field", field, "strategy", f.Strategy.String())
			break
		}
		if _, ok := out[field]; !ok {
			e.logger.Debug("extract.field.not_found", "field", field)
		}
	}
	return out
}

type valueMatcher func(s string) (string, bool)

// shapeMatcher returns the first normalized, plausible match of re in s.
func shapeMatcher(re *regexp.Regexp, normalize func(string) (string, bool), plausible func(string) bool) valueMatcher {
	return func(s string) (string, bool) {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			v, ok := normalize(firstGroup(m))
			if !ok {
				continue
			}
			if plausible != nil && !plausible(v) {
				continue
			}
			return v, true
		}
		return "", false
	}
}

func labelFinder(labels []*regexp.Regexp, window int, match valueMatcher) Finder {
	return Finder{
		Strategy: StrategyLabel,
		Find: func(text string) (string, bool) {
			for _, label := range labels {
				for _, loc := range label.FindAllStringIndex(text, -1) {
					if v, ok := searchNearLabel(text, loc, window, match); ok {
						return v, true
					}
				}
			}
			return "", false
		},
	}
}

func patternFinder(match valueMatcher) Finder {
	return Finder{Strategy: StrategyPattern, Find: func(text string) (string, bool) { return match(text) }}
}

// nthMoney picks the n-th money amount in the text (zero based). Box 1 comes
// before box 2 on the form.
func nthMoney(n int) valueMatcher {
	return func(text string) (string, bool) {
		i := 0
		for _, m := range reMoney.FindAllStringSubmatch(text, -1) {
			v, ok := NormalizeMoney(firstGroup(m))
			if !ok {
				continue
			}
			if i == n {
				return v, true
			}
			i++
		}
		return "", false
	}
}

// searchNearLabel looks for a value after the label at loc: first on the rest
// of the label's line, then in the same column on the next few lines (as laid
// out by pdftotext -layout), then anywhere in the window.
func searchNearLabel(text string, loc []int, window int, match valueMatcher) (string, bool) {
	end := loc[1]
	limit := min(len(text), end+window)
	area := text[end:limit]

	lineEnd := strings.IndexByte(area, '\n')
	if lineEnd < 0 {
		return match(area)
	}
	if v, ok := match(area[:lineEnd]); ok {
		return v, true
	}

	lineStart := strings.LastIndexByte(text[:loc[0]], '\n') + 1
	col := max(0, loc[0]-lineStart-2)
	next := end + lineEnd + 1
	for i := 0; i < columnLines && next < len(text); i++ {
		line := text[next:]
		nl := strings.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		if col < len(line) {
			if v, ok := match(line[col:]); ok {
				return v, true
			}
		}
		if nl < 0 {
			break
		}
		next += nl + 1
	}

	return match(area)
}

func (e *Extractor) plausibleEIN(v string) bool {
	d := digitsOnly(v)
	for _, p := range e.reservedEIN {
		if strings.HasPrefix(d, p) {
			return false
		}
	}
	return true
}

func plausibleSSN(v string) bool {
	area, group, serial := v[0:3], v[4:6], v[7:11]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return m[0]
}
