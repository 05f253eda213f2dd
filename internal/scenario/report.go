package scenario

import (
	"fmt"
	"sort"
	"strings"

	"time-ledger/internal/fixedpoint"
)

// RenderMarkdown renders a run as a markdown section: actors, the step log
// and the final variables.
func RenderMarkdown(res *Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Scenario: %s\n\n", res.Script))

	sb.WriteString("### Actors\n\n")
	sb.WriteString("| Name | Address |\n")
	sb.WriteString("|------|---------|\n")
	names := make([]string, 0, len(res.Actors))
	for name := range res.Actors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("| %s | `%s` |\n", name, res.Actors[name]))
	}
	sb.WriteString("\n")

	sb.WriteString("### Steps\n\n")
	sb.WriteString("| # | Height | Op | Actor | Amount | Outcome |\n")
	sb.WriteString("|---|--------|----|-------|--------|---------|\n")
	for _, st := range res.Steps {
		amount := "-"
		if st.Amount != nil {
			amount = fixedpoint.Format(st.Amount)
		}
		outcome := "ok"
		if st.Err != nil {
			outcome = "rejected: " + st.Err.Error()
		}
		actor := st.Actor
		if actor == "" {
			actor = "-"
		}
		sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s | %s | %s |\n",
			st.Index, st.Height, st.Op, actor, amount, escapePipes(outcome)))
	}
	sb.WriteString("\n")

	if len(res.Vars) > 0 {
		sb.WriteString("### Variables\n\n")
		sb.WriteString("| Name | Value |\n")
		sb.WriteString("|------|-------|\n")
		vars := make([]string, 0, len(res.Vars))
		for name := range res.Vars {
			vars = append(vars, name)
		}
		sort.Strings(vars)
		for _, name := range vars {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", name, fixedpoint.Format(res.Vars[name])))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
