package ena

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxChromosomes bounds the number of chromosome accessions in a report.
const MaxChromosomes = 1000

// Accessions is the parsed "acc" field of an assembly process report.
type Accessions struct {
	Genome      string
	Chromosomes []string
}

// Complete reports that both of genome and chromosome accessions are assigned.
func (a Accessions) Complete() bool {
	return a.Genome != "" && len(a.Chromosomes) != 0
}

// ParseAccessions parses a composite accession like
// "genome:GCA_000001.1,chromosomes:OZ000001,OZ000002".
//
// Chromosomes can be a range, "OZ189935-OZ189937". Ranges are expanded.
//
// Missing parts are left empty. They are "not yet assigned".
// More than MaxChromosomes chromosomes are ErrMalformed.
func ParseAccessions(acc string) (Accessions, error) {
	result := Accessions{}
	key := ""
	for _, tok := range strings.Split(acc, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if k, v, ok := strings.Cut(tok, ":"); ok {
			key, tok = strings.TrimSpace(k), strings.TrimSpace(v)
		}
		switch key {
		case "genome":
			result.Genome = tok
		case "chromosomes":
			accs, err := expandRange(tok)
			if err != nil {
				return Accessions{}, err
			}
			result.Chromosomes = append(result.Chromosomes, accs...)
			if MaxChromosomes < len(result.Chromosomes) {
				return Accessions{}, fmt.Errorf("%w: more than %d chromosomes", ErrMalformed, MaxChromosomes)
			}
		case "":
			return Accessions{}, fmt.Errorf("%w: unlabeled accession %q", ErrMalformed, tok)
		}
	}
	return result, nil
}

func splitAccession(acc string) (string, string) {
	i := strings.IndexFunc(acc, unicode.IsDigit)
	if i < 0 {
		return acc, ""
	}
	return acc[:i], acc[i:]
}

func expandRange(tok string) ([]string, error) {
	from, to, ok := strings.Cut(tok, "-")
	if !ok {
		return []string{tok}, nil
	}
	fp, fn := splitAccession(from)
	tp, tn := splitAccession(to)
	if fp != tp || fn == "" || len(fn) != len(tn) {
		return nil, fmt.Errorf("%w: bad accession range %q", ErrMalformed, tok)
	}
	start, err := strconv.ParseInt(fn, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad accession range %q: %w", ErrMalformed, tok, err)
	}
	end, err := strconv.ParseInt(tn, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad accession range %q: %w", ErrMalformed, tok, err)
	}
	if end < start {
		return nil, fmt.Errorf("%w: reversed accession range %q", ErrMalformed, tok)
	}
	// both are non-negative, so end-start does not overflow.
	if MaxChromosomes <= end-start {
		return nil, fmt.Errorf("%w: accession range %q is too long", ErrMalformed, tok)
	}

	accs := make([]string, 0, end-start+1)
	for n := start; n <= end; n++ {
		accs = append(accs, fmt.Sprintf("%s%0*d", fp, len(fn), n))
	}
	return accs, nil
}
