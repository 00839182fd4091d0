// Command simlin compiles and runs system dynamics models.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ltm"
	"github.com/simlin-project/simlin/internal/project"
	"github.com/simlin-project/simlin/internal/sim"
	"github.com/simlin-project/simlin/internal/units"
)

// Exit codes: 0 success, 1 parse/type error, 2 simulation error, 3 unit
// inconsistency.
const (
	exitOK         = 0
	exitCompileErr = 1
	exitSimErr     = 2
	exitUnitsErr   = 3
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

var (
	flagVerbose bool
	flagFormat  string
	flagEngine  string
	flagSeed    uint64
	flagLTM     bool
	flagJSON    bool
)

func main() {
	root := &cobra.Command{
		Use:           "simlin",
		Short:         "simlin compiles and simulates system dynamics models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetLevel(logrus.WarnLevel)
			if flagVerbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run <project file>",
		Short: "simulate a project and print its time series",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runProject(args[0]))
		},
	}
	runCmd.Flags().StringVar(&flagFormat, "format", "tsv", "output format: tsv or csv")
	runCmd.Flags().StringVar(&flagEngine, "engine", "vm", "evaluator: vm or interp")
	runCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "seed for the rand() builtin")
	runCmd.Flags().BoolVar(&flagLTM, "ltm", false, "augment with Loops-That-Matter scores before running")
	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check <project file>",
		Short: "compile a project and report diagnostics without simulating",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(checkProject(args[0]))
		},
	}
	checkCmd.Flags().BoolVar(&flagJSON, "json", false, "dump diagnostics as JSON")
	root.AddCommand(checkCmd)

	ltmCmd := &cobra.Command{
		Use:   "ltm <project file>",
		Short: "write the Loops-That-Matter augmented project as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(ltmProject(args[0]))
		},
	}
	root.AddCommand(ltmCmd)

	root.AddCommand(replCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		os.Exit(exitCompileErr)
	}
}

// loadProject reads the binary interchange form, or the JSON mirror for
// .json files.
func loadProject(path string) (*project.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".json" {
		return project.FromJSON(data)
	}
	return project.Unmarshal(data)
}

func reportList(errs errors.List) {
	for _, d := range errs {
		label := red("error")
		if d.Warning {
			label = yellow("warning")
		}
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", label, cyan(d.Code), d.Message)
	}
}

func reportVarErrors(ve errors.VarErrors) {
	for name, l := range ve {
		for _, d := range l {
			label := red("error")
			if d.Warning {
				label = yellow("warning")
			}
			fmt.Fprintf(os.Stderr, "%s %s %s: %s\n", label, cyan(d.Code), name, d.Message)
		}
	}
}

func runProject(path string) int {
	p, err := loadProject(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return exitCompileErr
	}
	if flagLTM {
		augmented, errs := ltm.WithLTM(p)
		if errs.HasErrors() {
			reportList(errs)
			return exitCompileErr
		}
		p = augmented
	}

	cp, errs := sim.Compile(p)
	if errs.HasErrors() {
		reportList(errs)
		return exitCompileErr
	}

	opts := sim.Options{Seed: flagSeed}
	if flagEngine == "interp" {
		opts.Engine = sim.EngineInterp
	}
	res, serr := sim.Simulate(cp, opts)
	if serr != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", red("error"), cyan(serr.Code), serr.Message)
		return exitSimErr
	}

	sep := "\t"
	if flagFormat == "csv" {
		sep = ","
	}
	writeResults(os.Stdout, res, sep)
	return exitOK
}

func writeResults(w *os.File, res *sim.Results, sep string) {
	var header []string
	for _, name := range res.Names() {
		size := res.Sizes[name]
		if size == 1 {
			header = append(header, name)
			continue
		}
		for el := 0; el < size; el++ {
			header = append(header, fmt.Sprintf("%s[%d]", name, el+1))
		}
	}
	fmt.Fprintln(w, strings.Join(header, sep))

	row := make([]string, res.StepSize)
	for step := 0; step < res.StepCount; step++ {
		base := step * res.StepSize
		col := 0
		for _, name := range res.Names() {
			off := res.Offsets[name]
			for el := 0; el < res.Sizes[name]; el++ {
				row[col] = fmt.Sprintf("%g", res.Data[base+off+el])
				col++
			}
		}
		fmt.Fprintln(w, strings.Join(row, sep))
	}
}

func checkProject(path string) int {
	p, err := loadProject(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return exitCompileErr
	}

	unitErrs := units.CheckProject(p)
	_, errs := sim.Compile(p)

	if flagJSON {
		dumpDiagnosticsJSON(errs, unitErrs)
	} else {
		reportList(errs)
		reportVarErrors(unitErrs)
	}

	switch {
	case errs.HasErrors():
		return exitCompileErr
	case unitErrs.HasErrors():
		return exitUnitsErr
	}
	fmt.Println("ok")
	return exitOK
}

func ltmProject(path string) int {
	p, err := loadProject(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return exitCompileErr
	}
	augmented, errs := ltm.WithLTM(p)
	if errs.HasErrors() {
		reportList(errs)
		return exitCompileErr
	}
	data, err := project.ToJSON(augmented)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("error"), err)
		return exitCompileErr
	}
	os.Stdout.Write(data)
	fmt.Println()
	return exitOK
}
