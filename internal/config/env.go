package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	joberrors "jobentry/internal/errors"
	"jobentry/pkg/job"
)

// Environment variables the backend sets on the job container.
const (
	EnvScriptURI          = "AMZN_BRAKET_SCRIPT_S3_URI"
	EnvEntryPoint         = "AMZN_BRAKET_SCRIPT_ENTRY_POINT"
	EnvCompressionType    = "AMZN_BRAKET_SCRIPT_COMPRESSION_TYPE"
	EnvHyperparameters    = "SM_HPS"
	EnvHyperparameterFile = "AMZN_BRAKET_HP_FILE"
	EnvSetupScript        = "AMZN_BRAKET_IMAGE_SETUP_SCRIPT"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Resolver builds the ExecutionConfig from the environment. The direct
// variables win; SM_HPS only fills what is still missing, which lets local
// mode pass everything as hyperparameters.
type Resolver struct {
	lookup LookupFunc
	logger *slog.Logger
}

func NewResolver(lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Resolver{lookup: lookup, logger: slog.Default()}
}

func (r *Resolver) get(key string) string {
	value, _ := r.lookup(key)
	return value
}

// Resolve returns the code setup or a configuration error naming the first
// missing field.
func (r *Resolver) Resolve() (job.ExecutionConfig, error) {
	cfg := job.ExecutionConfig{
		RemoteURI:       r.get(EnvScriptURI),
		EntryPoint:      r.get(EnvEntryPoint),
		CompressionType: r.get(EnvCompressionType),
	}

	if cfg.RemoteURI == "" || cfg.EntryPoint == "" {
		r.fillFromHyperparameters(&cfg)
	}

	if err := validate.Struct(&cfg); err != nil {
		return job.ExecutionConfig{}, missingFieldError(err)
	}

	return cfg, nil
}

func (r *Resolver) fillFromHyperparameters(cfg *job.ExecutionConfig) {
	blob := r.get(EnvHyperparameters)
	if strings.TrimSpace(blob) == "" {
		return
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(strings.NewReader(blob)); err != nil {
		r.logger.Warn("Ignoring malformed hyperparameters", "variable", EnvHyperparameters, "error", err)
		return
	}

	if cfg.RemoteURI == "" {
		cfg.RemoteURI = v.GetString(EnvScriptURI)
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = v.GetString(EnvEntryPoint)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = v.GetString(EnvCompressionType)
	}
}

func missingFieldError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
		switch validationErrors[0].Field() {
		case "RemoteURI":
			return joberrors.NewConfigError("No customer script specified", nil)
		case "EntryPoint":
			return joberrors.NewConfigError("No customer entry point specified", nil)
		}
	}
	return joberrors.NewConfigError("Invalid code setup parameters", err)
}
