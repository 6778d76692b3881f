// Package environment implements the remote extensions environment channel:
// a snapshot of the agent's paths and process, the merged extension list and
// the telemetry opt-out.
package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
	"github.com/GriffinCanCode/AgentOS/agent/internal/extensions"
	"github.com/GriffinCanCode/AgentOS/agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/GriffinCanCode/AgentOS/agent/internal/telemetry"
	"go.uber.org/zap"
)

// ChannelName is the name clients address this channel by
const ChannelName = "remoteextensionsenvironment"

// OperatingSystem identifies the host platform to clients
type OperatingSystem int

const (
	OSWindows   OperatingSystem = 1
	OSMacintosh OperatingSystem = 2
	OSLinux     OperatingSystem = 3
)

// Paths are the server locations reported to clients
type Paths struct {
	AppRoot               string
	UserDataPath          string
	ExtensionsPath        string
	BuiltinExtensionsPath string
	LogsPath              string
	UserHome              string

	// Extra roots scanned in addition to the builtin and installed ones
	ExtraBuiltinExtensionsPaths []string
	ExtraExtensionsPaths        []string
}

// AppSettingsHome is where user settings live
func (p Paths) AppSettingsHome() string {
	return filepath.Join(p.UserDataPath, "User")
}

// Options configures a Channel
type Options struct {
	Paths           Paths
	ConnectionToken string
	Pipeline        *extensions.Pipeline
	Translations    extensions.TranslationLoader
	Telemetry       *telemetry.Flag
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

// Channel serves environment snapshots
type Channel struct {
	paths        Paths
	token        string
	pipeline     *extensions.Pipeline
	translations extensions.TranslationLoader
	telemetry    *telemetry.Flag
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	pid          int
	os           OperatingSystem
}

// New creates an environment channel
func New(opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	flag := opts.Telemetry
	if flag == nil {
		flag = telemetry.Global
	}
	translations := opts.Translations
	if translations == nil {
		translations = extensions.FileTranslationLoader{}
	}
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = extensions.NewPipeline(extensions.NewManifestScanner(logger), logger, opts.Metrics, 0)
	}

	return &Channel{
		paths:        opts.Paths,
		token:        opts.ConnectionToken,
		pipeline:     pipeline,
		translations: translations,
		telemetry:    flag,
		logger:       logger.Named("environment"),
		metrics:      opts.Metrics,
		pid:          os.Getpid(),
		os:           hostOS(),
	}
}

// EnvironmentData is the snapshot returned by getEnvironmentData
type EnvironmentData struct {
	PID                   int                    `json:"pid"`
	ConnectionToken       string                 `json:"connectionToken"`
	AppRoot               uri.URI                `json:"appRoot"`
	AppSettingsHome       uri.URI                `json:"appSettingsHome"`
	SettingsPath          uri.URI                `json:"settingsPath"`
	LogsPath              uri.URI                `json:"logsPath"`
	ExtensionsPath        uri.URI                `json:"extensionsPath"`
	ExtensionHostLogsPath uri.URI                `json:"extensionHostLogsPath"`
	GlobalStorageHome     uri.URI                `json:"globalStorageHome"`
	WorkspaceStorageHome  uri.URI                `json:"workspaceStorageHome"`
	UserHome              uri.URI                `json:"userHome"`
	OS                    OperatingSystem        `json:"os"`
	Extensions            []extensions.Extension `json:"extensions"`
}

// Call executes an environment command
func (c *Channel) Call(ctx context.Context, caller channel.Caller, command string, args channel.Args) (interface{}, error) {
	timer := monitoring.NewTimer(c.metrics, ChannelName, command)
	result, err := c.call(ctx, caller, command, args)
	code := ""
	if err != nil {
		code = channel.Code(err)
	}
	timer.Stop(code)
	return result, err
}

func (c *Channel) call(ctx context.Context, caller channel.Caller, command string, args channel.Args) (interface{}, error) {
	switch command {
	case "getEnvironmentData":
		locale := extensions.DefaultLocale
		if err := args.DecodeOptional(0, &locale); err != nil {
			return nil, err
		}
		return c.environmentData(ctx, caller, locale)

	case "disableTelemetry":
		c.telemetry.Disable()
		c.logger.Info("telemetry disabled", zap.String("connection", caller.ConnectionID))
		return nil, nil

	case "getDiagnosticInfo":
		return nil, fmt.Errorf("%w: %s", channel.ErrUnimplemented, command)
	}
	return nil, fmt.Errorf("%w: %s", channel.ErrInvalidCommand, command)
}

// Listen fails: this channel has no events
func (c *Channel) Listen(ctx context.Context, caller channel.Caller, event string, args channel.Args) (<-chan interface{}, error) {
	return nil, fmt.Errorf("%w: %s", channel.ErrInvalidCommand, event)
}

func (c *Channel) environmentData(ctx context.Context, caller channel.Caller, locale string) (*EnvironmentData, error) {
	exts, err := c.scanExtensions(ctx, locale)
	if err != nil {
		return nil, err
	}

	t := caller.Transformer()
	remote := func(path string) uri.URI {
		return t.ToRemote(uri.File(path))
	}
	for i := range exts {
		exts[i].Location = t.ToRemote(exts[i].Location)
	}

	settingsHome := c.paths.AppSettingsHome()
	return &EnvironmentData{
		PID:                   c.pid,
		ConnectionToken:       c.token,
		AppRoot:               remote(c.paths.AppRoot),
		AppSettingsHome:       remote(settingsHome),
		SettingsPath:          remote(filepath.Join(settingsHome, "settings.json")),
		LogsPath:              remote(c.paths.LogsPath),
		ExtensionsPath:        remote(c.paths.ExtensionsPath),
		ExtensionHostLogsPath: remote(filepath.Join(c.paths.LogsPath, "exthost")),
		GlobalStorageHome:     remote(filepath.Join(settingsHome, "globalStorage")),
		WorkspaceStorageHome:  remote(filepath.Join(settingsHome, "workspaceStorage")),
		UserHome:              remote(c.paths.UserHome),
		OS:                    c.os,
		Extensions:            exts,
	}, nil
}

// scanExtensions merges builtin roots first and installed roots second.
// Missing translations only cost localization, so a load failure is logged.
func (c *Channel) scanExtensions(ctx context.Context, locale string) ([]extensions.Extension, error) {
	translations, err := c.translations.Load(ctx, locale, c.paths.UserDataPath)
	if err != nil {
		c.logger.Warn("failed to load translations", zap.String("locale", locale), zap.Error(err))
		translations = extensions.Translations{}
	}

	builtin := append([]string{c.paths.BuiltinExtensionsPath}, c.paths.ExtraBuiltinExtensionsPaths...)
	installed := append([]string{c.paths.ExtensionsPath}, c.paths.ExtraExtensionsPaths...)
	return c.pipeline.Scan(ctx, builtin, installed, locale, translations)
}

func hostOS() OperatingSystem {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacintosh
	}
	return OSLinux
}

// TelemetryEnabled reports the state of the channel's telemetry switch
func (c *Channel) TelemetryEnabled() bool {
	return c.telemetry.Enabled()
}
