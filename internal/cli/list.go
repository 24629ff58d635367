package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// listPayload — JSON-форма вывода команды list.
type listPayload struct {
	Items       []listItem       `json:"items"`
	Connections []listConnection `json:"connections"`
	Jumps       []listJump       `json:"jumps"`
}

type listItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Rank int    `json:"rank"`
}

type listConnection struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Filtered    bool   `json:"filtered"`
}

type listJump struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Condition   string `json:"condition"`
}

func newListCmd(load loadFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project items, connections and jumps",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			p, err := load()
			if err != nil {
				return err
			}

			var payload listPayload
			for _, name := range p.ItemNames() {
				item, _ := p.Item(name)
				rank, _ := p.Rank(name)
				payload.Items = append(payload.Items, listItem{
					Name: name,
					Type: item.Type(),
					Rank: rank,
				})
			}
			for _, c := range p.Connections() {
				payload.Connections = append(payload.Connections, listConnection{
					Source:      c.Source,
					Destination: c.Destination,
					Filtered:    c.FilterSettings.HasFilters(),
				})
			}
			for _, j := range p.Jumps() {
				payload.Jumps = append(payload.Jumps, listJump{
					Source:      j.Source,
					Destination: j.Destination,
					Condition:   string(j.Condition.Type),
				})
			}

			headers := []string{"NAME", "TYPE", "RANK"}
			rows := make([][]string, len(payload.Items))
			for i, it := range payload.Items {
				rows[i] = []string{it.Name, it.Type, strconv.Itoa(it.Rank)}
			}
			out.Print(headers, rows, payload)

			if !out.JSONMode() && len(payload.Connections) > 0 {
				out.Line("")
				connRows := make([][]string, len(payload.Connections))
				for i, c := range payload.Connections {
					filtered := ""
					if c.Filtered {
						filtered = "yes"
					}
					connRows[i] = []string{c.Source, c.Destination, filtered}
				}
				out.Table([]string{"FROM", "TO", "FILTERED"}, connRows)
			}
			if !out.JSONMode() && len(payload.Jumps) > 0 {
				out.Line("")
				jumpRows := make([][]string, len(payload.Jumps))
				for i, j := range payload.Jumps {
					jumpRows[i] = []string{j.Source, j.Destination, j.Condition}
				}
				out.Table([]string{"JUMP FROM", "JUMP TO", "CONDITION"}, jumpRows)
			}
			return nil
		},
	}
}
