// Package syncq keeps player writes that failed to reach the API so they can
// be replayed later under their original idempotency keys.
package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"lifesim/internal/cli"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	Label          string         `json:"label,omitempty"`
}

func queuePath() (string, error) {
	dir, err := cli.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

type Sender interface {
	Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error)
}

type ReplayResult struct {
	Replayed int
	// Rejected holds commands the API refused; they are dropped from the queue.
	Rejected []Command
	Errors   []error
}

// Replay sends every queued command in order. Network failures stay queued;
// commands the API answered with an error are dropped since a retry would
// get the same answer. The remaining queue is saved before returning.
func Replay(ctx context.Context, sender Sender, accessToken string) (ReplayResult, error) {
	queue, err := Load()
	if err != nil {
		return ReplayResult{}, err
	}
	var out ReplayResult
	remaining := make([]Command, 0, len(queue))
	for _, q := range queue {
		_, err := sender.Do(ctx, q.Method, q.Path, accessToken, q.Body, q.IdempotencyKey)
		switch {
		case err == nil:
			out.Replayed++
		case cli.IsAPIError(err):
			out.Rejected = append(out.Rejected, q)
			out.Errors = append(out.Errors, err)
		default:
			remaining = append(remaining, q)
			out.Errors = append(out.Errors, err)
		}
	}
	if err := Save(remaining); err != nil {
		return out, err
	}
	return out, nil
}
