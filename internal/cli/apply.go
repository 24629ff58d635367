package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/project"
)

// Команды скрипта правок. Набор закрытый: скрипт не исполняет
// произвольный код, только перечисленные структурные операции.
//
//	add-item NAME TYPE
//	remove-item NAME
//	rename-item OLD NEW
//	connect SRC DST
//	disconnect SRC DST
//	add-jump SRC DST [once | iterations N]
//	remove-jump SRC DST
//	enable-filter SRC DST LABEL VALUE
//	disable-filter SRC DST LABEL VALUE
//
// Имена с пробелами заключаются в двойные кавычки. Строки, начинающиеся
// с "#", и пустые строки пропускаются.
func newApplyCmd(load loadFunc, outputFn func() *Output) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply SCRIPT",
		Short: "Apply a script of structural edits to the project",
		Args:  wrapArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			p, err := load()
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			applied := 0
			scanner := bufio.NewScanner(file)
			lineNo := 0
			for scanner.Scan() {
				lineNo++
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				if err := applyLine(p, line); err != nil {
					return fmt.Errorf("%s:%d: %w", args[0], lineNo, err)
				}
				applied++
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			if dryRun {
				out.Success(fmt.Sprintf("Dry run: %d edits valid", applied))
				return nil
			}
			if err := p.Save(); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Applied %d edits", applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the script without saving")
	return cmd
}

// applyLine разбирает и применяет одну команду скрипта.
func applyLine(p *project.Project, line string) error {
	tokens, err := splitScriptLine(line)
	if err != nil {
		return &ArgumentError{Err: err}
	}
	if len(tokens) == 0 {
		return nil
	}

	cmd, args := tokens[0], tokens[1:]
	switch cmd {
	case "add-item":
		if len(args) != 2 {
			return argumentErrorf("add-item expects NAME TYPE")
		}
		return p.AddItem(domain.NewGenericItem(args[0], args[1], nil))

	case "remove-item":
		if len(args) != 1 {
			return argumentErrorf("remove-item expects NAME")
		}
		return p.RemoveItemByName(args[0])

	case "rename-item":
		if len(args) != 2 {
			return argumentErrorf("rename-item expects OLD NEW")
		}
		return p.RenameItem(args[0], args[1])

	case "connect":
		if len(args) != 2 {
			return argumentErrorf("connect expects SRC DST")
		}
		c := domain.NewConnection(args[0], domain.PositionRight, args[1], domain.PositionLeft)
		return p.AddConnection(c)

	case "disconnect":
		if len(args) != 2 {
			return argumentErrorf("disconnect expects SRC DST")
		}
		return p.RemoveConnection(args[0], args[1])

	case "add-jump":
		if len(args) < 2 {
			return argumentErrorf("add-jump expects SRC DST [once | iterations N]")
		}
		j := domain.NewJump(args[0], domain.PositionBottom, args[1], domain.PositionBottom)
		if len(args) > 2 {
			cond, err := parseJumpCondition(args[2:])
			if err != nil {
				return err
			}
			j.Condition = cond
		}
		return p.AddJump(j)

	case "remove-jump":
		if len(args) != 2 {
			return argumentErrorf("remove-jump expects SRC DST")
		}
		return p.RemoveJump(args[0], args[1])

	case "enable-filter", "disable-filter":
		if len(args) != 4 {
			return argumentErrorf("%s expects SRC DST LABEL VALUE", cmd)
		}
		c, ok := p.Connection(args[0], args[1])
		if !ok {
			return fmt.Errorf("%w: from %s to %s", project.ErrUnknownConnection, args[0], args[1])
		}
		c.FilterSettings.SetFilterEnabled(args[2], domain.FilterTypeScenario, args[3], cmd == "enable-filter")
		return p.UpdateConnection(c)

	default:
		return argumentErrorf("unknown script command %q", cmd)
	}
}

// parseJumpCondition разбирает условие перехода из токенов скрипта.
func parseJumpCondition(args []string) (domain.JumpCondition, error) {
	switch args[0] {
	case "once":
		return domain.JumpCondition{Type: domain.ConditionTypeOnce}, nil
	case "iterations":
		if len(args) != 2 {
			return domain.JumpCondition{}, argumentErrorf("iterations expects a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return domain.JumpCondition{}, argumentErrorf("invalid iteration count %q", args[1])
		}
		return domain.JumpCondition{Type: domain.ConditionTypeIterations, MaxIterations: n}, nil
	default:
		return domain.JumpCondition{}, argumentErrorf("unknown jump condition %q", args[0])
	}
}

// splitScriptLine разбивает строку на токены; двойные кавычки
// объединяют токен с пробелами.
func splitScriptLine(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	hasToken := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasToken = true
		case r == ' ' || r == '\t':
			if inQuotes {
				cur.WriteRune(r)
				continue
			}
			if hasToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasToken = false
			}
		default:
			cur.WriteRune(r)
			hasToken = true
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if hasToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
