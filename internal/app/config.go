package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	GridPath string // .hcl file or directory searched recursively

	// Cap bounds how many sub-units per node are built each run; negative
	// means unbounded.
	Cap int
	// Show lists node or node[index] addresses whose results are printed
	// after the run.
	Show []string
	// MissingMembers selects the aggregation policy for failed upstream
	// members: "fail" or "skip".
	MissingMembers string

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}
	if cfg.MissingMembers != "" && cfg.MissingMembers != "fail" && cfg.MissingMembers != "skip" {
		return nil, errors.New("MissingMembers must be 'fail' or 'skip'")
	}
	return &cfg, nil
}
