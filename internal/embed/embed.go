// Package embed provides embedded assets for lanes.
package embed

import (
	"embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

//go:embed assets/*

// Assets contains all embedded files for lanes.
var Assets embed.FS

// Prompt names
const (
	PromptMergeChecklist     = "merge-checklist"
	PromptConflictResolution = "conflict-resolution"
)

// GetHelp returns the help content.
func GetHelp() (string, error) {
	data, err := Assets.ReadFile("assets/HELP.md")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetDefaultPrompt returns the default prompt content by name.
// Available prompts: merge-checklist, conflict-resolution
func GetDefaultPrompt(name string) (string, error) {
	data, err := Assets.ReadFile("assets/prompts/" + name + ".md")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadPrompt returns <overrideDir>/<name>.md when it exists, otherwise the
// embedded default.
func LoadPrompt(overrideDir, name string) (string, error) {
	if overrideDir != "" {
		data, err := os.ReadFile(filepath.Join(overrideDir, name+".md")) //nolint:gosec // G304: override directory is project-local
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return GetDefaultPrompt(name)
}

// WriteDefaultPrompt writes a default prompt to the target directory if it doesn't exist.
// Returns the path to the prompt file.
func WriteDefaultPrompt(promptsDir, name string) (string, error) {
	targetPath := filepath.Join(promptsDir, name+".md")

	// Don't overwrite existing file
	if _, err := os.Stat(targetPath); err == nil {
		return targetPath, nil
	}

	if err := os.MkdirAll(promptsDir, 0755); err != nil { //nolint:gosec // G301: standard directory permissions
		return "", err
	}

	content, err := GetDefaultPrompt(name)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(targetPath, []byte(content), 0644); err != nil { //nolint:gosec // G306: prompt files need to be readable
		return "", err
	}
	return targetPath, nil
}

// RenderConflictGuide fills the conflict-resolution prompt for one halted lane.
func RenderConflictGuide(template, laneID, branch, worktree string, files []string) string {
	var list strings.Builder
	for _, f := range files {
		list.WriteString("  - ")
		list.WriteString(f)
		list.WriteString("\n")
	}
	if worktree == "" {
		worktree = "the repository"
	}
	r := strings.NewReplacer(
		"{{LANE}}", laneID,
		"{{BRANCH}}", branch,
		"{{FILES}}", strings.TrimRight(list.String(), "\n"),
		"{{WORKTREE}}", worktree,
	)
	return r.Replace(template)
}
