package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/desertthunder/seedmix/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	endpoints  services.Endpoints
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Endpoints  *services.Endpoints
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.HTTP.Timeout.Duration}
	}
	endpoints := services.DefaultEndpoints()
	if opts.Endpoints != nil {
		endpoints = *opts.Endpoints
	}

	return &Runner{
		config:     opts.Config,
		endpoints:  endpoints,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by commands started after the call.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, tuiCommand, setupCommand, authCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// authenticator validates the configuration and builds the token manager.
func (r *Runner) authenticator() (*services.Authenticator, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	return services.NewAuthenticator(r.config.Credentials.Spotify, r.endpoints, r.httpClient)
}

// mixer builds the mix flow around auth.
func (r *Runner) mixer(auth services.TokenManager) *tasks.Mixer {
	return tasks.NewMixer(auth, tasks.NewClientFactory(r.endpoints.APIBaseURL, r.httpClient), r.logger)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
