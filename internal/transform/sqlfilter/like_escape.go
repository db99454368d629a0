package sqlfilter

import "strings"

const likeEscapeClause = `ESCAPE '\'`

var likeEscaper = strings.NewReplacer(
	`\`, `\\`,
	"%", `\%`,
	"_", `\_`,
)

// escapeLikePattern escapes LIKE wildcards so the value matches literally.
func escapeLikePattern(value string) string {
	return likeEscaper.Replace(value)
}
