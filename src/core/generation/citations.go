package generation

import (
	"regexp"
	"strings"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

var (
	citationPattern = regexp.MustCompile(`\[Record ID:\s*([^\]\s]+)\]`)
	doubledSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// ValidateCitations removes every citation marker that names a record outside
// the retrieved set and returns the cleaned text together with the surviving
// record ids in order of first appearance.
func ValidateCitations(text string, rs rag.ResultSet) (string, []string) {
	var sources []string
	seen := make(map[string]bool)

	cleaned := citationPattern.ReplaceAllStringFunc(text, func(marker string) string {
		recordID := citationPattern.FindStringSubmatch(marker)[1]
		if !rs.Contains(recordID) {
			log.Info("dropping citation of unretrieved record", "recordId", recordID)
			return ""
		}
		if !seen[recordID] {
			seen[recordID] = true
			sources = append(sources, recordID)
		}
		return marker
	})

	// Stripping markers can leave doubled spaces behind.
	cleaned = strings.TrimSpace(doubledSpaces.ReplaceAllString(cleaned, " "))
	return cleaned, sources
}
