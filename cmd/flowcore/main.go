// =============================================================================
// FlowCore 命令行入口
// =============================================================================
// 使用方法:
//
//	flowcore validate --defs flows.yaml
//	flowcore run --defs flows.yaml --workflow triage --input '{"text":"hi"}'
//	flowcore run --config flowcore.yaml --defs flows.yaml --workflow triage --metrics
//	flowcore version
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/config"
	"github.com/BaSui01/flowcore/internal/telemetry"
	"github.com/BaSui01/flowcore/orchestrator"
	"github.com/BaSui01/flowcore/workflow"
	"github.com/BaSui01/flowcore/workflow/dsl"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "validate":
		err = runValidate(args[1:], stdout)
	case "run":
		err = runWorkflow(args[1:], stdout)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// varsFlag 收集重复的 --var name=value
type varsFlag map[string]string

func (v varsFlag) String() string { return fmt.Sprint(map[string]string(v)) }

func (v varsFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[name] = value
	return nil
}

func parseDefinitions(path string, vars varsFlag) (*dsl.Definitions, error) {
	if path == "" {
		return nil, errors.New("--defs is required")
	}
	p := dsl.NewParser()
	for k, v := range vars {
		p.WithVariable(k, v)
	}
	return p.ParseFile(path)
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	defsPath := fs.String("defs", "", "Path to the definitions file (YAML)")
	vars := varsFlag{}
	fs.Var(vars, "var", "Definition variable name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defs, err := parseDefinitions(*defsPath, vars)
	if err != nil {
		return err
	}

	// 注册到一个不调用模型的 Orchestrator，以执行跨定义的引用检查
	orc, err := orchestrator.New(newEchoInvoker(nil), orchestrator.WithConfig(quietConfig()),
		orchestrator.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	defer orc.Shutdown(context.Background())

	if err := defs.Register(orc); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "OK: %d agents, %d workflows\n", len(defs.Agents), len(defs.Workflows))
	for _, wf := range defs.Workflows {
		fmt.Fprintf(stdout, "  %s: %d steps, %d leaf steps\n", wf.ID, len(wf.Steps), wf.LeafCount())
	}
	return nil
}

func quietConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false
	return cfg
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runWorkflow(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	defsPath := fs.String("defs", "", "Path to the definitions file (YAML)")
	workflowID := fs.String("workflow", "", "Workflow ID to execute")
	input := fs.String("input", "", "Workflow input; parsed as JSON when valid")
	failModels := fs.String("fail", "", "Comma-separated models the echo invoker fails")
	showMetrics := fs.Bool("metrics", false, "Print Prometheus metrics after the run")
	vars := varsFlag{}
	fs.Var(vars, "var", "Definition variable name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workflowID == "" {
		return errors.New("--workflow is required")
	}

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = nil
	}

	reg := prometheus.NewRegistry()
	orc, err := orchestrator.New(
		newEchoInvoker(splitList(*failModels)),
		orchestrator.WithConfig(cfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithRegisterer(reg),
		orchestrator.WithTelemetry(providers),
	)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orc.Shutdown(ctx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	defs, err := parseDefinitions(*defsPath, vars)
	if err != nil {
		return err
	}
	if err := defs.Register(orc); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, execErr := orc.Execute(ctx, *workflowID, parseInput(*input))
	if res != nil {
		if err := printResult(stdout, res); err != nil {
			return err
		}
	}
	if *showMetrics {
		if err := writeMetrics(stdout, reg); err != nil {
			return err
		}
	}
	if execErr != nil {
		return execErr
	}
	if !res.Success {
		return fmt.Errorf("workflow failed: %s", res.Error)
	}
	return nil
}

func parseInput(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printResult(w io.Writer, res *workflow.ExecutionResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "FlowCore %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `FlowCore - multi-agent workflow orchestration

Usage:
  flowcore <command> [options]

Commands:
  validate  Parse and check a definitions file
  run       Execute a workflow with the built-in echo invoker
  version   Show version information
  help      Show this help message

Options for 'validate':
  --defs <path>        Definitions file (YAML)
  --var name=value     Definition variable (repeatable)

Options for 'run':
  --config <path>      Configuration file (YAML)
  --defs <path>        Definitions file (YAML)
  --workflow <id>      Workflow to execute
  --input <value>      Input, parsed as JSON when valid
  --fail <models>      Comma-separated models the echo invoker fails
  --metrics            Print Prometheus metrics after the run
  --var name=value     Definition variable (repeatable)

Examples:
  flowcore validate --defs flows.yaml
  flowcore run --defs flows.yaml --workflow triage --input '"long"'
  flowcore run --defs flows.yaml --workflow triage --fail small --metrics`)
}
