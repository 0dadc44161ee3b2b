package application

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	zlog "github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	zviper "github.com/lk2023060901/danmu-chatroom-go/pkg/util/viper"
)

// DefaultEnvPrefix is the prefix of every environment override, e.g. CHAT_SERVER_ADDR.
const DefaultEnvPrefix = "CHAT"

// defaultConfigPath is loaded when present and no explicit path is given.
const defaultConfigPath = "./config.yaml"

// Application is the runtime container shared by the chat binaries.
// It owns command-line flags, configuration and named loggers.
type Application struct {
	name      string
	version   semver.Version
	envPrefix string
	defaults  []func(*zviper.Config)
	output    io.Writer

	flags       *pflag.FlagSet
	configPath  string
	showVersion bool

	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger
}

// Option configures an Application.
type Option func(*Application)

// WithVersion overrides the version reported by --version.
func WithVersion(v semver.Version) Option {
	return func(a *Application) {
		a.version = v
	}
}

// WithEnvPrefix overrides DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(a *Application) {
		a.envPrefix = prefix
	}
}

// WithDefaults registers configuration defaults. Only keys with a default
// (or present in the file) can be overridden from the environment.
func WithDefaults(fn func(*zviper.Config)) Option {
	return func(a *Application) {
		a.defaults = append(a.defaults, fn)
	}
}

// WithOutput redirects usage and version output, os.Stderr by default.
func WithOutput(w io.Writer) Option {
	return func(a *Application) {
		a.output = w
	}
}

// New creates a new Application instance.
func New(name string, opts ...Option) *Application {
	a := &Application{
		name:      name,
		version:   Version(),
		envPrefix: DefaultEnvPrefix,
		output:    os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.flags = pflag.NewFlagSet(name, pflag.ContinueOnError)
	a.flags.SetOutput(a.output)
	a.flags.StringVar(&a.configPath, "config", "", "path of the YAML/JSON config file")
	a.flags.BoolVar(&a.showVersion, "version", false, "print the version and exit")
	return a
}

// Flags returns the flag set, so that binaries can add their own flags before Run.
func (a *Application) Flags() *pflag.FlagSet {
	return a.flags
}

// Run parses command-line arguments and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml, skipped when absent
//  2. Env: <PREFIX>_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// An explicitly named file must exist. Logging is initialized from the
// "log" section once the configuration is loaded.
func (a *Application) Run(args []string) error {
	if err := a.flags.Parse(args); err != nil {
		return err
	}
	if a.showVersion {
		fmt.Fprintf(a.output, "%s %s\n", a.name, a.version)
		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging()
}

// VersionRequested reports whether --version was given.
func (a *Application) VersionRequested() bool {
	return a.showVersion
}

// Version returns the version of the binary.
func (a *Application) Version() semver.Version {
	return a.version
}

// Args returns the positional arguments left after flag parsing.
func (a *Application) Args() []string {
	return a.flags.Args()
}

// Usage prints the usage line followed by the flag defaults.
func (a *Application) Usage(positional string) {
	fmt.Fprintf(a.output, "Usage: %s [flags] %s\n", a.name, positional)
	a.flags.PrintDefaults()
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger tagged with the name.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldComponent(name))
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	cfg := zviper.New(a.envPrefix)
	cfg.SetDefault("log.level", "info")
	cfg.SetDefault("log.format", zlog.FormatConsole)
	cfg.SetDefault("log.stdout", true)
	for _, fn := range a.defaults {
		fn(cfg)
	}

	configPath, explicit := defaultConfigPath, false
	if envPath := os.Getenv(a.envPrefix + "_CONFIG_FILE_PATH"); envPath != "" {
		configPath, explicit = envPath, true
	}
	if a.configPath != "" {
		configPath, explicit = a.configPath, true
	}

	if !explicit {
		if _, err := os.Stat(configPath); err != nil {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLogger(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLogger configures the process-wide logger from the "log" section.
//
// Every key is overridable through <PREFIX>_LOG_*, e.g. CHAT_LOG_LEVEL,
// CHAT_LOG_FORMAT and CHAT_LOG_STDOUT. The file target also honours the
// shorter <PREFIX>_LOG_FILE_DIR and <PREFIX>_LOG_FILE.
func (a *Application) initGlobalLogger() error {
	var lc zlog.Config
	if err := a.cfg.UnmarshalKey("log", &lc); err != nil {
		return errors.Wrap(err, "decode log config")
	}
	lc.Level = a.cfg.GetString("log.level")
	lc.Format = a.cfg.GetString("log.format")
	lc.Stdout = a.cfg.GetBool("log.stdout")
	lc.File.RootPath = getenvDefault(a.envPrefix+"_LOG_FILE_DIR", lc.File.RootPath)
	lc.File.Filename = getenvDefault(a.envPrefix+"_LOG_FILE", lc.File.Filename)

	logger, props, err := zlog.InitLogger(&lc)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  reactor:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: reactor.log
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldComponent(name))}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}
