package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/engine"
)

// validateResult — результат проверки одного подграфа.
type validateResult struct {
	Nodes  []string `json:"nodes"`
	Valid  bool     `json:"valid"`
	Cyclic []string `json:"cyclic,omitempty"`
}

func newValidateCmd(load loadFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every project DAG is acyclic",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			p, err := load()
			if err != nil {
				return err
			}

			var results []validateResult
			invalid := 0
			for _, d := range p.DAGs() {
				res := validateResult{Nodes: d.Nodes(), Valid: true}
				if _, err := d.Ranks(); err != nil {
					res.Valid = false
					var cycleErr *engine.CycleError
					if errors.As(err, &cycleErr) {
						res.Cyclic = cycleErr.Nodes
					}
					invalid++
				}
				results = append(results, res)
			}

			headers := []string{"DAG", "ITEMS", "VALID", "CYCLIC ITEMS"}
			rows := make([][]string, len(results))
			for i, r := range results {
				valid := "yes"
				if !r.Valid {
					valid = "no"
				}
				rows[i] = []string{
					strconv.Itoa(i + 1),
					strings.Join(r.Nodes, ", "),
					valid,
					strings.Join(r.Cyclic, ", "),
				}
			}
			out.Print(headers, rows, results)

			if invalid > 0 {
				return fmt.Errorf("%d of %d DAGs contain a cycle", invalid, len(results))
			}
			out.Success(fmt.Sprintf("All %d DAGs are valid", len(results)))
			return nil
		},
	}
}
