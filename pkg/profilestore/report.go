package profilestore

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes a human-readable table of every stored profile to w,
// sorted by process name.
func (s *Store) RenderTable(w io.Writer) {
	profiles := s.Profiles()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Process", "Optimal Freq (MHz)", "Comfort Score", "Samples"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	for _, name := range names {
		p := profiles[name]
		table.Append([]string{
			p.Name,
			fmt.Sprintf("%d", p.OptimalFreqMHz),
			fmt.Sprintf("%.1f", p.ComfortScore),
			fmt.Sprintf("%d", p.SamplesCount),
		})
	}
	table.Render()
}
