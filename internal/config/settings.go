package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the orchestrator's own settings in the environment.
const EnvPrefix = "JOBENTRY"

const (
	RuntimeProcess = "process"
	RuntimeDocker  = "docker"

	FetchSkipExisting = "skip-existing"
	FetchAlways       = "always"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Settings holds how the orchestrator itself behaves. The customer job's code
// setup lives in ExecutionConfig and is resolved separately.
type Settings struct {
	MLRoot      string `mapstructure:"ml_root" validate:"required"`
	BraketRoot  string `mapstructure:"braket_root" validate:"required"`
	Interpreter string `mapstructure:"interpreter" validate:"required"`
	Runtime     string `mapstructure:"runtime" validate:"oneof=process docker"`
	DockerImage string `mapstructure:"docker_image" validate:"required_if=Runtime docker"`
	ExitPolicy  string `mapstructure:"exit_policy" validate:"oneof=zero propagate"`
	FetchPolicy string `mapstructure:"fetch_policy" validate:"oneof=skip-existing always"`
	S3Endpoint  string `mapstructure:"s3_endpoint" validate:"required"`
	S3Region    string `mapstructure:"s3_region"`
	S3Insecure  bool   `mapstructure:"s3_insecure"`
	SkipSymlink bool   `mapstructure:"skip_symlink"`
	MetricsFile string `mapstructure:"metrics_file"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=text json"`
}

// SetDefaults registers every setting with its default so that environment
// overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ml_root", "/opt/ml")
	v.SetDefault("braket_root", "/opt/braket")
	v.SetDefault("interpreter", "python")
	v.SetDefault("runtime", RuntimeProcess)
	v.SetDefault("docker_image", "")
	v.SetDefault("exit_policy", "zero")
	v.SetDefault("fetch_policy", FetchSkipExisting)
	v.SetDefault("s3_endpoint", "s3.amazonaws.com")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_insecure", false)
	v.SetDefault("skip_symlink", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// NewViper returns a viper instance wired to the JOBENTRY_* environment.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The region usually comes from the standard AWS variables.
	_ = v.BindEnv("s3_region", EnvPrefix+"_S3_REGION", "AWS_REGION", "AWS_DEFAULT_REGION")
	return v
}

// FlagKey maps a command line flag name to its settings key.
func FlagKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// LoadSettings reads an optional config file, then unmarshals and validates.
func LoadSettings(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				return nil, fmt.Errorf("config file not found: %s", configFile)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	settings.Runtime = strings.ToLower(strings.TrimSpace(settings.Runtime))
	settings.ExitPolicy = strings.ToLower(strings.TrimSpace(settings.ExitPolicy))
	settings.FetchPolicy = strings.ToLower(strings.TrimSpace(settings.FetchPolicy))

	if err := validate.Struct(&settings); err != nil {
		return nil, formatValidationError(err)
	}

	return &settings, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("setting '%s' is required but missing", field)
	case "required_if":
		return fmt.Sprintf("setting '%s' is required when %s", field, strings.Replace(e.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("setting '%s' must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("setting '%s' failed validation (%s)", field, tag)
	}
}
