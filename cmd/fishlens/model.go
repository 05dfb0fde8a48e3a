package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fishlens/fishlens/pkg/config"
	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

var errNoModel = errors.New("no model configured: pass --raw or set model.command")

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// rawModel answers every request with text already produced by the model.
func rawModel(path string) engine.ModelFunc {
	return func(_ context.Context, _ []byte, _ models.AnalysisKind) (string, error) {
		data, err := readInput(path)
		if err != nil {
			return "", fmt.Errorf("read raw output: %w", err)
		}
		return string(data), nil
	}
}

// commandModel runs an external analyzer. The image goes to stdin, the kind
// is passed in FISHLENS_KIND and stdout is taken as the raw answer.
func commandModel(cfg config.ModelConfig) engine.ModelFunc {
	return func(ctx context.Context, image []byte, kind models.AnalysisKind) (string, error) {
		if len(cfg.Command) == 0 {
			return "", errNoModel
		}
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = append(os.Environ(), "FISHLENS_KIND="+string(kind))
		cmd.Stdin = bytes.NewReader(image)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		out, err := cmd.Output()
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return "", fmt.Errorf("%s: %w: %s", cfg.Command[0], err, msg)
			}
			return "", fmt.Errorf("%s: %w", cfg.Command[0], err)
		}
		return string(out), nil
	}
}

// selectModel prefers --raw over the configured command.
func selectModel(cfg *config.Config, rawPath string) engine.ModelFunc {
	if rawPath != "" {
		return rawModel(rawPath)
	}
	return commandModel(cfg.Model)
}
