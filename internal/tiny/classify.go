package tiny

import "regexp"

// Classification is the closed set of outcomes the sync engine distinguishes
// when the API reports an error. Everything the orchestrator does with a
// provider failure hangs off this enum, so the message heuristics stay here.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassTransient
	ClassNotFound
	ClassEndOfPages
	ClassFatalCredential
)

func (c Classification) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	case ClassEndOfPages:
		return "end_of_pages"
	case ClassFatalCredential:
		return "fatal_credential"
	default:
		return "unknown"
	}
}

// Error codes the Tiny v2 API returns inside the retorno envelope.
const (
	codeTokenMissing = 2
	codeTokenInvalid = 3
	codeNoRecords    = 20
	codeNotLocated   = 22
)

// The API also reports conditions only in free text, with inconsistent
// accents, so the fallback regexes accept both spellings.
var (
	reCredential = regexp.MustCompile(`(?i)token\s+(inv[aá]lido|expirado|n[aã]o\s+informado)|api\s+bloqueada`)
	reNoRecords  = regexp.MustCompile(`(?i)n[aã]o\s+retornou\s+registros|nenhum\s+registro`)
	reNotFound   = regexp.MustCompile(`(?i)n[aã]o\s+localizado|n[aã]o\s+encontrad[oa]`)
	reTransient  = regexp.MustCompile(`(?i)tente\s+novamente|temporariamente\s+indispon[ií]vel|muitas\s+requisi[cç][oõ]es`)
)

// Classify maps a provider error code plus its free-text message onto the
// closed enum. Numeric codes win over text matches.
func Classify(code int, message string) Classification {
	switch code {
	case codeTokenMissing, codeTokenInvalid:
		return ClassFatalCredential
	case codeNoRecords:
		return ClassEndOfPages
	case codeNotLocated:
		return ClassNotFound
	}
	switch {
	case reCredential.MatchString(message):
		return ClassFatalCredential
	case reNoRecords.MatchString(message):
		return ClassEndOfPages
	case reNotFound.MatchString(message):
		return ClassNotFound
	case reTransient.MatchString(message):
		return ClassTransient
	}
	return ClassUnknown
}
