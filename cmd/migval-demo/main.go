// Package main implements the migval-demo CLI: it loads a batch of
// records from a YAML fixture, registers a small set of illustrative
// validators against a manager.Manager, runs the batch, and prints a
// summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/internal/logx"
	"github.com/Hochfrequenz/bo4e-migration-framework/internal/metrics"
	"github.com/Hochfrequenz/bo4e-migration-framework/manager"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

const (
	progVersion = "0.1.0"
	usage       = `migval-demo - validation engine demo runner

Usage:
  migval-demo [options] <fixture.yaml>
  migval-demo [options] -           (read fixture from stdin)

Examples:
  migval-demo testdata/batch.yaml
  migval-demo -verbose testdata/batch.yaml
  cat batch.yaml | migval-demo -

Options:
`
)

// Config holds CLI configuration.
type Config struct {
	Verbose     bool
	ShowVersion bool
	Help        bool
	Fixture     string
}

// fixture is the YAML shape a batch file decodes into: a list of loosely
// typed records, each a flat map of attribute name to value. Records that
// omit "id" are assigned one with uuid.NewString, so fixtures authored by
// hand never need to invent identifiers themselves.
type fixture struct {
	Records []map[string]any `yaml:"records"`
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("migval-demo v%s\n", progVersion)
		os.Exit(0)
	}

	if config.Help || config.Fixture == "" {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(config))
}

func parseFlags() *Config {
	config := &Config{}

	flag.BoolVar(&config.Verbose, "verbose", false, "Log a per-record error-count summary")
	flag.BoolVar(&config.ShowVersion, "v", false, "Show version")
	flag.BoolVar(&config.Help, "help", false, "Show help")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()
	if flag.NArg() > 0 {
		config.Fixture = flag.Arg(0)
	}
	return config
}

func run(config *Config) int {
	records, err := loadFixture(config.Fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migval-demo: %v\n", err)
		return 1
	}

	level := logx.LevelWarn
	if config.Verbose {
		level = logx.LevelInfo
	}
	logger := logx.New(os.Stderr, level)
	m := metrics.New()

	result, err := validateDemoBatchWith(records, logger, m, config.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migval-demo: %v\n", err)
		return 1
	}

	printSummary(result, m)
	if result.NumFails() > 0 {
		return 1
	}
	return 0
}

// validateDemoBatch runs records through the demo validator DAG with
// default logging and metrics, discarding both. It exists so tests can
// exercise the same registration/validation path main uses without
// wiring a logger or metrics sink of their own.
func validateDemoBatch(records []record.Record) *manager.Result {
	result, err := validateDemoBatchWith(records, logx.New(io.Discard, logx.LevelNone), metrics.New(), false)
	if err != nil {
		panic(err)
	}
	return result
}

// validateDemoBatchWith registers the demo validator DAG against a fresh
// manager.Manager configured with logger and m, then validates records.
func validateDemoBatchWith(records []record.Record, logger *logx.Logger, m *metrics.Metrics, logSummary bool) (*manager.Result, error) {
	mgr := manager.New(
		manager.WithLogger(logger),
		manager.WithLogSummary(logSummary),
		manager.WithMetrics(m),
		manager.WithDefaultTimeout(2*time.Second),
	)

	if err := registerDemoValidators(mgr); err != nil {
		return nil, err
	}

	return mgr.Validate(context.Background(), records...), nil
}

// loadFixture decodes a batch-of-records YAML document from path, or from
// stdin when path is "-".
func loadFixture(path string) ([]record.Record, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening fixture: %w", err)
		}
		defer f.Close()
		r = f
	}
	return loadFixtureFromReader(r)
}

// loadFixtureFromReader decodes a batch-of-records YAML document. Records
// missing an "id" field are stamped with a fresh uuid so every record has
// the stable identity manager.Result keys its per-record maps on.
func loadFixtureFromReader(r io.Reader) ([]record.Record, error) {
	var fx fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}

	records := make([]record.Record, 0, len(fx.Records))
	for _, data := range fx.Records {
		id, _ := data["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		records = append(records, record.NewMapRecord(id, data))
	}
	return records, nil
}

// registerDemoValidators wires a small illustrative DAG: a synchronous
// presence check, an asynchronous range check, and a dependent cross-field
// check that only runs once both of its dependencies have finished.
func registerDemoValidators(mgr *manager.Manager) error {
	hasName, err := validator.New("has_name", func(name string) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("name must not be blank")
		}
		return nil
	}, validator.Param{Name: "name", Type: reflect.TypeOf(""), Required: true})
	if err != nil {
		return err
	}
	hasNameProvider, err := bind.NewPathMapped(hasName, map[string]string{"name": "name"})
	if err != nil {
		return err
	}

	ageInRange, err := validator.New("age_in_range", func(ctx context.Context, age int) error {
		if age < 0 || age > 150 {
			return fmt.Errorf("age %d out of plausible range", age)
		}
		return nil
	}, validator.Param{Name: "age", Type: reflect.TypeOf(0), Required: true})
	if err != nil {
		return err
	}
	ageInRangeProvider, err := bind.NewPathMapped(ageInRange, map[string]string{"age": "age"})
	if err != nil {
		return err
	}

	consistent, err := validator.New("name_and_age_consistent", func(name string, age int) error {
		if age == 0 && strings.TrimSpace(name) != "" {
			return fmt.Errorf("record has a name but age is zero")
		}
		return nil
	},
		validator.Param{Name: "name", Type: reflect.TypeOf(""), Required: true},
		validator.Param{Name: "age", Type: reflect.TypeOf(0), Required: true},
	)
	if err != nil {
		return err
	}
	consistentProvider, err := bind.NewPathMapped(consistent, map[string]string{"name": "name", "age": "age"})
	if err != nil {
		return err
	}

	if err := mgr.Register(hasNameProvider); err != nil {
		return err
	}
	if err := mgr.Register(ageInRangeProvider); err != nil {
		return err
	}
	return mgr.Register(consistentProvider, manager.WithDependsOn(hasNameProvider, ageInRangeProvider))
}

func printSummary(result *manager.Result, m *metrics.Metrics) {
	fmt.Printf("records: %d total, %d succeeded, %d failed\n", result.Total(), result.NumSucceeds(), result.NumFails())
	fmt.Printf("errors: %d total\n", result.NumErrorsTotal())

	for _, e := range result.AllErrors() {
		fmt.Printf("  [%d] %s\n", e.ErrorID, e.Error())
	}

	fmt.Printf("clean rate: %.1f%%\n", m.CleanRate()*100)
	for _, ns := range m.AllNodeStats() {
		fmt.Printf("  node %-28s invocations=%d avg=%s errors=%d\n", ns.Name, ns.Invocations, ns.AvgTime, ns.ErrorsFound)
	}
}
