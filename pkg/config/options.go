package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EnvContainer overrides the configured container name when set. The
// add-on supervisor exports it so the same options file works across
// ESPHome add-on reinstalls.
const EnvContainer = "ESPHOME_CONTAINER"

// Options is the full run configuration. It maps one-to-one onto the
// add-on options JSON document; zero values are replaced by Defaults
// before the document is applied, so absent keys keep their defaults.
type Options struct {
	// Device selection. Patterns are case-insensitive globs with
	// substring semantics; empty patterns are ignored.
	DeviceInclude []string `json:"device_include"`
	DeviceExclude []string `json:"device_exclude"`
	ConfigInclude []string `json:"config_include"`
	ConfigExclude []string `json:"config_exclude"`

	// Version gating.
	UpdateWhenNoDeployedVersion bool `json:"update_when_no_deployed_version"`
	UpdateWhenVersionMatches    bool `json:"update_when_version_matches"`

	// Run behavior.
	DryRun              bool   `json:"dry_run"`
	SkipOffline         bool   `json:"skip_offline"`
	DelayBetweenUpdates int    `json:"delay_between_updates" validate:"min=0,max=3600"`
	MaxDevicesPerRun    int    `json:"max_devices_per_run" validate:"min=0"`
	StartFromDevice     string `json:"start_from_device"`
	StopOnCompileError  bool   `json:"stop_on_compile_error"`
	StopOnUploadError   bool   `json:"stop_on_upload_error"`

	// External tooling.
	Container      string `json:"esphome_container" validate:"required"`
	CompileTimeout int    `json:"compile_timeout" validate:"min=30,max=7200"`
	UploadTimeout  int    `json:"upload_timeout" validate:"min=30,max=3600"`

	// Housekeeping. The *_now keys are one-shot triggers consumed via
	// the persistent state store.
	ClearLogNow                   bool `json:"clear_log_now"`
	ClearProgressNow              bool `json:"clear_progress_now"`
	ClearLogOnStart               bool `json:"clear_log_on_start"`
	ClearProgressOnStart          bool `json:"clear_progress_on_start"`
	AlwaysClearLogOnVersionChange bool `json:"always_clear_log_on_version_change"`

	// Logging and metrics.
	Verbosity            string `json:"verbosity" validate:"oneof=quiet normal verbose debug"`
	MetricsEnabled       bool   `json:"metrics_enabled"`
	MetricsListenAddress string `json:"metrics_listen_address"`

	// Paths. Defaults match the add-on container layout.
	ConfigDir    string `json:"config_dir" validate:"required"`
	BuildsDir    string `json:"builds_dir" validate:"required"`
	LogFile      string `json:"log_file" validate:"required"`
	ProgressFile string `json:"progress_file" validate:"required"`
	StateFile    string `json:"state_file" validate:"required"`
	HistoryDB    string `json:"history_db"`
}

// Defaults returns the documented default configuration.
func Defaults() Options {
	return Options{
		UpdateWhenNoDeployedVersion: true,
		UpdateWhenVersionMatches:    false,

		DryRun:              false,
		SkipOffline:         true,
		DelayBetweenUpdates: 3,
		MaxDevicesPerRun:    0,
		StopOnCompileError:  true,
		StopOnUploadError:   true,

		Container:      "addon_15ef4d2f_esphome",
		CompileTimeout: 1800,
		UploadTimeout:  600,

		AlwaysClearLogOnVersionChange: true,

		Verbosity:            "normal",
		MetricsListenAddress: ":9302",

		ConfigDir:    "/config/esphome",
		BuildsDir:    "/config/esphome/builds",
		LogFile:      "/config/esphome_smart_update.log",
		ProgressFile: "/config/esphome_update_progress.json",
		StateFile:    "/data/state.json",
		HistoryDB:    "/data/history.db",
	}
}

// Load reads the options document at path, applies it over Defaults,
// applies environment overrides, and validates the result. A missing
// file is not an error: the defaults are returned. A malformed file is
// an error, since silently ignoring a user's options is worse than
// refusing to run.
func Load(path string) (Options, error) {
	opts := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through with defaults
	case err != nil:
		return opts, fmt.Errorf("failed to read options file %s: %w", path, err)
	default:
		// json.Unmarshal leaves absent keys untouched and ignores
		// unknown keys, which is exactly the contract.
		if err := json.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("failed to parse options file %s: %w", path, err)
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvContainer)); env != "" {
		opts.Container = env
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks the options against their struct tags.
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid option %s: failed %s constraint", jsonName(f.StructField()), f.Tag())
		}
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// DelayIsZero reports whether the inter-device delay is disabled.
func (o Options) DelayIsZero() bool {
	return o.DelayBetweenUpdates <= 0
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// jsonName maps a struct field name to its options-file key so error
// messages speak the user's language.
func jsonName(field string) string {
	t, ok := optionsJSONNames[field]
	if !ok {
		return field
	}
	return t
}

var optionsJSONNames = map[string]string{
	"DeviceInclude":                 "device_include",
	"DeviceExclude":                 "device_exclude",
	"ConfigInclude":                 "config_include",
	"ConfigExclude":                 "config_exclude",
	"UpdateWhenNoDeployedVersion":   "update_when_no_deployed_version",
	"UpdateWhenVersionMatches":      "update_when_version_matches",
	"DryRun":                        "dry_run",
	"SkipOffline":                   "skip_offline",
	"DelayBetweenUpdates":           "delay_between_updates",
	"MaxDevicesPerRun":              "max_devices_per_run",
	"StartFromDevice":               "start_from_device",
	"StopOnCompileError":            "stop_on_compile_error",
	"StopOnUploadError":             "stop_on_upload_error",
	"Container":                     "esphome_container",
	"CompileTimeout":                "compile_timeout",
	"UploadTimeout":                 "upload_timeout",
	"ClearLogNow":                   "clear_log_now",
	"ClearProgressNow":              "clear_progress_now",
	"ClearLogOnStart":               "clear_log_on_start",
	"ClearProgressOnStart":          "clear_progress_on_start",
	"AlwaysClearLogOnVersionChange": "always_clear_log_on_version_change",
	"Verbosity":                     "verbosity",
	"MetricsEnabled":                "metrics_enabled",
	"MetricsListenAddress":          "metrics_listen_address",
	"ConfigDir":                     "config_dir",
	"BuildsDir":                     "builds_dir",
	"LogFile":                       "log_file",
	"ProgressFile":                  "progress_file",
	"StateFile":                     "state_file",
	"HistoryDB":                     "history_db",
}
