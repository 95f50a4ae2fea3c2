package retrieval

import (
	"strings"
)

const (
	// NoContextMessage is returned instead of an empty context.
	NoContextMessage = "There is no available context for this query."

	// NoMatchMessage is handed to the agent when retrieval finds nothing.
	NoMatchMessage = "Couldn’t retrieve any matching content for that question."

	Separator          = "\n\n---\n\n"
	DefaultMaxChunks   = 6
	DefaultMaxContext  = 6000
	errorMessagePrefix = "RAG error: "
)

// BuildContext joins the first result group into a bounded context string
// using the default limits.
func BuildContext(docs [][]string) string {
	return BuildContextWithLimits(docs, DefaultMaxChunks, DefaultMaxContext)
}

// BuildContextWithLimits keeps up to maxChunks non-empty trimmed fragments of
// the first group, joins them with Separator and cuts the result to maxChars
// characters. It never returns an empty string.
func BuildContextWithLimits(docs [][]string, maxChunks, maxChars int) string {
	if len(docs) == 0 {
		return NoContextMessage
	}

	fragments := make([]string, 0, maxChunks)
	for _, d := range docs[0] {
		if len(fragments) == maxChunks {
			break
		}
		if d = strings.TrimSpace(d); d != "" {
			fragments = append(fragments, d)
		}
	}
	if len(fragments) == 0 {
		return NoContextMessage
	}

	out := strings.Join(fragments, Separator)
	if r := []rune(out); maxChars > 0 && len(r) > maxChars {
		out = string(r[:maxChars])
	}
	return out
}

// ErrorMessage renders a retrieval failure as text the agent can speak from.
func ErrorMessage(err error) string {
	return errorMessagePrefix + err.Error()
}
