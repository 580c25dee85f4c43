package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// loadPromptsFromFiles replaces inline prompt overrides with the content of
// their *File counterparts.
func (c *Config) loadPromptsFromFiles() error {
	prompts := &c.AI.Prompts

	if prompts.EvaluationFile != "" {
		content, err := loadPromptFromFile(prompts.EvaluationFile, "evaluation")
		if err != nil {
			return err
		}
		prompts.Evaluation = content
	}

	if prompts.ATSScoringFile != "" {
		content, err := loadPromptFromFile(prompts.ATSScoringFile, "atsScoring")
		if err != nil {
			return err
		}
		prompts.ATSScoring = content
	}

	return nil
}

// loadPromptFromFile reads a prompt file and rejects empty content
func loadPromptFromFile(filePath, intent string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", intent, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s prompt file not found: %s", intent, absPath)
		}
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", intent, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", intent, absPath)
	}

	log.Printf("[CONFIG] Loaded %s prompt from file: %s (%d characters)", intent, absPath, len(trimmed))
	return trimmed, nil
}
