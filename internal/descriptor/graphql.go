package descriptor

import (
	"regexp"
	"strings"
)

// operationRe matches the first top-level operation keyword and an optional
// operation name. This is a pragmatic lexer, not a GraphQL parser: it is
// knowingly lossy for documents containing multiple operations, where only
// the first keyword wins.
var operationRe = regexp.MustCompile(`(?s)^\s*(query|mutation|subscription)\b[ \t]*([A-Za-z_][A-Za-z0-9_]*)?`)

// ParseOperation extracts the operation type and name from a textual GraphQL
// operation body. A document whose first non-whitespace token is "{" is an
// anonymous query; a body with no recognizable operation defaults to query.
func ParseOperation(body string) (OperationType, string) {
	trimmed := strings.TrimSpace(stripComments(body))
	if trimmed == "" || strings.HasPrefix(trimmed, "{") {
		return OperationQuery, ""
	}
	m := operationRe.FindStringSubmatch(trimmed)
	if m == nil {
		return OperationQuery, ""
	}
	return OperationType(m[1]), m[2]
}

// stripComments removes GraphQL line comments so a leading comment cannot
// shadow the operation keyword.
func stripComments(body string) string {
	if !strings.Contains(body, "#") {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "#"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}
