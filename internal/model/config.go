package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version"` // fixed 0 for now
	Ketchup string  `json:"ketchup"` // binary name or path
	Timeout string  `json:"timeout"` // per-invocation timeout
	Retries int     `json:"retries"` // adapter retry budget
	Monitor Monitor `json:"monitor"`
}

// Monitor configures the capacity watcher.
type Monitor struct {
	Source    string    `json:"source"` // snapshot file name in the workdir
	Poll      string    `json:"poll"`   // cron expression
	Strict    bool      `json:"strict"` // malformed records abort monitoring
	Criterion Criterion `json:"criterion"`
}

// Criterion is the serialized form of a StoppingCriterion.
type Criterion struct {
	Threshold   float64 `json:"threshold"`
	Relation    string  `json:"relation"`  // "below" | "above"
	Reference   string  `json:"reference"` // "first-cycle" | "fixed"
	Check       string  `json:"check"`     // "discharge" | "charge"
	Consecutive int     `json:"consecutive"`
}

// StoppingCriterion converts the config block into the domain value.
func (c Criterion) StoppingCriterion() StoppingCriterion {
	return StoppingCriterion{
		Threshold:   c.Threshold,
		Relation:    Relation(c.Relation),
		Reference:   Reference(c.Reference),
		CheckType:   CheckType(c.Check),
		Consecutive: c.Consecutive,
	}
}

// LoadConfig validates YAML from r against the CUE schema and decodes it.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CueErrDetails expands a CUE validation error into its individual
// messages, one per offending field.
func CueErrDetails(err error) []string {
	errs := cueerrors.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// DefaultConfig mirrors the schema defaults plus the lab's customary
// capacity criterion. Used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Ketchup: "ketchup",
		Timeout: "30s",
		Retries: 5,
		Monitor: Monitor{
			Source: "snapshot.dat",
			Poll:   "@every 2m",
			Criterion: Criterion{
				Threshold:   0.8,
				Relation:    string(RelationBelow),
				Reference:   string(ReferenceFirstCycle),
				Check:       string(CheckDischarge),
				Consecutive: 1,
			},
		},
	}
}
