// Command sbcrun loads, verifies, and executes SBC bytecode modules.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sbclang/sbcvm"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/sblog"
)

func main() {
	var (
		modPath     = flag.String("module", "", "Path to .sbc module file")
		envVars     = flag.String("env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
		cliArgs     = flag.String("argv", "", "Program arguments (comma-separated)")
		skipVerify  = flag.Bool("skip-verify", false, "Skip the static verifier (only for known-bad fixtures)")
		gcThreshold = flag.Int("gc-threshold", 0, "Initial GC live-object threshold (0 uses the engine default)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		debug       = flag.Bool("debug", false, "Enable development logging")
		interactive = flag.Bool("i", false, "Interactive mode with a step debugger TUI")
	)
	flag.Parse()

	if *modPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: sbcrun -module <file.sbc> [-argv a,b,c] [-env K=V,...]")
		fmt.Fprintln(os.Stderr, "       sbcrun -module <file.sbc> -list")
		fmt.Fprintln(os.Stderr, "       sbcrun -module <file.sbc> -i  (interactive mode)")
		os.Exit(1)
	}

	sblog.Development(*debug)

	if *interactive {
		if err := runInteractive(*modPath, *skipVerify, *gcThreshold); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	exitCode, err := run(*modPath, *envVars, *cliArgs, *skipVerify, *gcThreshold, *list)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(exitCode))
}

func run(modPath, envStr, argvStr string, skipVerify bool, gcThreshold int, listOnly bool) (int32, error) {
	ctx := context.Background()

	data, err := os.ReadFile(modPath)
	if err != nil {
		return 1, fmt.Errorf("read file: %w", err)
	}

	m, err := sbcvm.LoadBytes(data)
	if err != nil {
		return 1, fmt.Errorf("load: %w", err)
	}

	fmt.Printf("Module: %s\n", modPath)
	fmt.Printf("Types: %d  Functions: %d  Globals: %d\n", len(m.Types), len(m.Functions), len(m.Globals))
	fmt.Printf("Imports: %d  Exports: %d\n", len(m.Imports), len(m.Exports))

	fmt.Printf("\nExported functions:\n")
	for _, exp := range m.Exports {
		fmt.Printf("  %s\n", formatExport(m, exp))
	}

	if listOnly {
		return 0, nil
	}

	cfg := sbcvm.Config{
		SkipVerify:  skipVerify,
		GCThreshold: gcThreshold,
	}

	if envStr != "" {
		env := make(map[string]string)
		for _, kv := range strings.Split(envStr, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				env[parts[0]] = parts[1]
			}
		}
		cfg.Envp = env
	}

	if argvStr != "" {
		cfg.Argv = strings.Split(argvStr, ",")
	}

	v, err := sbcvm.New(m, cfg)
	if err != nil {
		return 1, fmt.Errorf("verify: %w", err)
	}

	fmt.Printf("\nRunning entry method %d...\n", m.Header.EntryMethodID)
	result := v.Run(ctx)

	fmt.Printf("Status: %s\n", result.Status)
	if result.Err != nil {
		return 1, result.Err
	}
	fmt.Printf("Exit code: %d\n", result.ExitCode)

	stats := v.Heap().Stats()
	fmt.Printf("Heap: live=%d capacity=%d free=%d gcs=%d\n", stats.Live, stats.Capacity, stats.FreeSlots, stats.NumGCs)

	return result.ExitCode, nil
}

// formatExport renders one export row as "name(arg0: kind, ...) -> kind".
func formatExport(m *module.Module, exp module.ImportExport) string {
	name, _ := m.String(exp.SymbolStr)
	fn := m.Functions[exp.Target]
	meth := m.Methods[fn.MethodID]
	sig := m.Sigs[meth.SigID]

	params := make([]string, len(sig.ParamTypes))
	for i, typeID := range sig.ParamTypes {
		params[i] = fmt.Sprintf("arg%d: %s", i, m.Types[typeID].Kind)
	}
	ret := ""
	if sig.HasReturn() {
		ret = " -> " + m.Types[sig.RetTypeID].Kind.String()
	}
	return fmt.Sprintf("%s(%s)%s", name, strings.Join(params, ", "), ret)
}
