package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
	"github.com/simlin-project/simlin/internal/sim"
)

// the repl appends a throwaway auxiliary holding the typed expression and
// reads its value at the initial time
const replVar = "repl_scratch_value"

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <project file>",
		Short: "interactively evaluate equations against a project's initial state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runREPL(args[0]))
		},
	}
}

func runREPL(path string) int {
	p, err := loadProject(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return exitCompileErr
	}
	if _, errs := sim.Compile(p); errs.HasErrors() {
		reportList(errs)
		return exitCompileErr
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("%s %s — type an equation, or :quit\n", cyan("simlin"), p.Name)
	for {
		input, err := line.Prompt("» ")
		if err != nil {
			fmt.Println()
			return exitOK
		}
		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case ":quit", ":q", "exit":
			return exitOK
		}
		line.AppendHistory(input)
		evalLine(p, input)
	}
}

// evalLine evaluates one expression by compiling a copy of the project
// with the expression attached as an auxiliary and running it to the
// first saved step.
func evalLine(p *project.Project, input string) {
	probe := p.Clone()
	probe.SimSpecs.Stop = probe.SimSpecs.Start
	for _, m := range probe.Models {
		if m.Name != project.MainModel {
			continue
		}
		m.Variables = append(m.Variables, &project.Aux{
			Common:   project.Common{Ident: ident.Ident(replVar)},
			Equation: project.Scalar{Equation: input},
		})
	}

	cp, errs := sim.Compile(probe)
	if errs.HasErrors() {
		reportList(errs)
		return
	}
	res, serr := sim.Simulate(cp, sim.Options{})
	if serr != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", red("error"), cyan(serr.Code), serr.Message)
		return
	}
	v, err := res.Final(replVar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return
	}
	fmt.Printf("%g\n", v)
}
