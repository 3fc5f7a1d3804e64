package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/optplay/internal/errors"
	"github.com/copyleftdev/optplay/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization Optimization
}

// Optimization holds run defaults and limits.
type Optimization struct {
	// WorkerCount bounds the number of runs executing at once.
	WorkerCount          int           `env:"OPT_WORKER_COUNT" envDefault:"10"`
	DefaultTolerance     float64       `env:"OPT_DEFAULT_TOLERANCE" envDefault:"1e-6"`
	DefaultMaxIterations int           `env:"OPT_DEFAULT_MAX_ITERATIONS" envDefault:"100"`
	MaxIterationsLimit   int           `env:"OPT_MAX_ITERATIONS_LIMIT" envDefault:"100000"`
	MaxDimension         int           `env:"OPT_MAX_DIMENSION" envDefault:"64"`
	DefaultLearningRate  float64       `env:"OPT_DEFAULT_LEARNING_RATE" envDefault:"0.01"`
	DefaultNoiseScale    float64       `env:"OPT_DEFAULT_NOISE_SCALE" envDefault:"0.001"`
	RunTimeout           time.Duration `env:"OPT_RUN_TIMEOUT" envDefault:"60s"`
	SurfaceResolution    int           `env:"OPT_SURFACE_RESOLUTION" envDefault:"100"`
	// ResultTTL is how long the server keeps a finished run; zero keeps it
	// until MaxRetainedRuns pushes it out.
	ResultTTL            time.Duration `env:"OPT_RESULT_TTL" envDefault:"1h"`
	MaxRetainedRuns      int           `env:"OPT_MAX_RETAINED_RUNS" envDefault:"1000"`
}

// DefaultOptimization returns the defaults Load applies when no variables
// are set.
func DefaultOptimization() Optimization {
	return Optimization{
		WorkerCount:          10,
		DefaultTolerance:     optimization.DefaultTolerance,
		DefaultMaxIterations: optimization.DefaultMaxIterations,
		MaxIterationsLimit:   100000,
		MaxDimension:         64,
		DefaultLearningRate:  0.01,
		DefaultNoiseScale:    0.001,
		RunTimeout:           time.Minute,
		SurfaceResolution:    100,
		ResultTTL:            time.Hour,
		MaxRetainedRuns:      1000,
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from vars instead of the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parse environment").WithComponent("config")
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	o := c.Optimization
	if err := optimization.CheckTolerance(o.DefaultTolerance); err != nil {
		return errors.Wrap(err, "OPT_DEFAULT_TOLERANCE").WithComponent("config")
	}
	switch {
	case c.HTTP.Port < 0 || c.HTTP.Port > 65535:
		return errors.Errorf("HTTP_PORT %d out of range", c.HTTP.Port).WithComponent("config")
	case o.WorkerCount < 1:
		return errors.Errorf("OPT_WORKER_COUNT must be at least 1, got %d", o.WorkerCount).WithComponent("config")
	case o.DefaultMaxIterations < 0:
		return errors.Errorf("OPT_DEFAULT_MAX_ITERATIONS must be non-negative, got %d", o.DefaultMaxIterations).WithComponent("config")
	case o.MaxIterationsLimit < o.DefaultMaxIterations:
		return errors.Errorf("OPT_MAX_ITERATIONS_LIMIT %d is below the default %d",
			o.MaxIterationsLimit, o.DefaultMaxIterations).WithComponent("config")
	case o.MaxDimension < 1:
		return errors.Errorf("OPT_MAX_DIMENSION must be at least 1, got %d", o.MaxDimension).WithComponent("config")
	case o.DefaultLearningRate <= 0:
		return errors.Errorf("OPT_DEFAULT_LEARNING_RATE must be positive, got %g", o.DefaultLearningRate).WithComponent("config")
	case o.DefaultNoiseScale <= 0:
		return errors.Errorf("OPT_DEFAULT_NOISE_SCALE must be positive, got %g", o.DefaultNoiseScale).WithComponent("config")
	case o.RunTimeout < 0:
		return errors.Errorf("OPT_RUN_TIMEOUT must be non-negative, got %s", o.RunTimeout).WithComponent("config")
	case o.SurfaceResolution < 2:
		return errors.Errorf("OPT_SURFACE_RESOLUTION must be at least 2, got %d", o.SurfaceResolution).WithComponent("config")
	case o.ResultTTL < 0:
		return errors.Errorf("OPT_RESULT_TTL must be non-negative, got %s", o.ResultTTL).WithComponent("config")
	case o.MaxRetainedRuns < 1:
		return errors.Errorf("OPT_MAX_RETAINED_RUNS must be at least 1, got %d", o.MaxRetainedRuns).WithComponent("config")
	}
	return nil
}
