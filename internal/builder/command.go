package builder

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
	"git.home.luguber.info/inful/mdkit/internal/registry"
)

const outputTailLimit = 2048

// CommandExecutor runs the configured build command through the shell with
// the package directory as working directory. Packages may override the
// command individually in the registry.
type CommandExecutor struct {
	defaultCommand string
	logger         *slog.Logger
}

func NewCommandExecutor(defaultCommand string, logger *slog.Logger) *CommandExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandExecutor{
		defaultCommand: defaultCommand,
		logger:         logger.With("component", "builder"),
	}
}

func (e *CommandExecutor) Build(ctx context.Context, pkg registry.Package) error {
	command := pkg.Command
	if command == "" {
		command = e.defaultCommand
	}

	e.logger.Debug("Running build command", logfields.Package(pkg.Name), slog.String("command", command))

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = pkg.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "build command failed").
			WithContext("package", pkg.Name).
			WithContext("command", command).
			WithContext("output", tail(out)).
			Build()
	}
	return nil
}

// tail keeps the end of the command output; the interesting part of a
// failed build log is almost always at the bottom.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= outputTailLimit {
		return s
	}
	return "..." + s[len(s)-outputTailLimit:]
}
