package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// TaskText returns the task handed to the agent: the --task override when
// given, otherwise the trimmed content of the prompt file.
func (c Config) TaskText() (string, error) {
	if task := strings.TrimSpace(c.TaskOverride); task != "" {
		return task, nil
	}

	data, err := os.ReadFile(c.PromptFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", newError("PROMPT_FILE", fmt.Sprintf("prompt file not found: %s", c.PromptFile), err)
		}
		return "", newError("PROMPT_FILE", fmt.Sprintf("failed to read prompt file %s: %v", c.PromptFile, err), err)
	}

	task := strings.TrimSpace(string(data))
	if task == "" {
		return "", newError("PROMPT_FILE", fmt.Sprintf("prompt file is empty: %s", c.PromptFile), nil)
	}
	return task, nil
}
