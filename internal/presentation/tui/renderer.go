package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/capture/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// SummaryMarkdown formats the end-of-run status as a markdown table.
func SummaryMarkdown(st domain.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", st.RunID)
	if st.Complete {
		b.WriteString("All sessions completed.\n\n")
	} else {
		fmt.Fprintf(&b, "Run stopped with %d active session(s).\n\n", len(st.Active))
	}

	ids := make([]string, 0, len(st.Sessions))
	for id := range st.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("| Session | State | Stored | Duplicates | Failures |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	var stored int
	for _, id := range ids {
		s := st.Sessions[id]
		stored += s.Stored
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d |\n", id, s.State, s.Stored, s.Duplicates, s.Failures)
	}
	fmt.Fprintf(&b, "\n%d screenshot(s) written to `%s`.\n", stored, st.OutputRoot)
	return b.String()
}
