package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("prompt aborted")

// Prompter asks the user questions on the terminal.
type Prompter struct{}

// NewPrompter returns a terminal prompter.
func NewPrompter() *Prompter {
	return &Prompter{}
}

// Select offers options and returns the chosen one. Its signature matches manifest.ChooseFunc.
func (p *Prompter) Select(label string, options []string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("nothing to choose from")
	}

	prompt := promptui.Select{
		Label: label,
		Items: numberedOptions(options),
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    MarkQuestion + " {{ . }}:",
			Active:   "▶ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: MarkSuccess + " {{ . | green }}",
		},
	}

	index, _, err := prompt.Run()
	if err != nil {
		return "", promptError(err)
	}
	return options[index], nil
}

// Directory asks for the destination folder. An empty answer selects
// defaultDir; "~" expands to the home directory.
func (p *Prompter) Directory(defaultDir string) (string, error) {
	prompt := promptui.Prompt{
		Label:    fmt.Sprintf("%s Enter download directory (Enter for %s)", MarkQuestion, defaultDir),
		Validate: validateDirectoryInput,
	}

	answer, err := prompt.Run()
	if err != nil {
		return "", promptError(err)
	}
	if strings.TrimSpace(answer) == "" {
		return defaultDir, nil
	}
	return ExpandPath(answer)
}

// Confirm asks a yes/no question; anything but an explicit yes is false.
func (p *Prompter) Confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     MarkQuestion + " " + label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

// WaitForEnter blocks until the user presses Enter.
func (p *Prompter) WaitForEnter(message string) {
	prompt := promptui.Prompt{Label: MarkWarning + " " + message}
	_, _ = prompt.Run()
}

// ExpandPath resolves a leading "~" and returns an absolute, cleaned path.
func ExpandPath(input string) (string, error) {
	path := strings.TrimSpace(input)
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve home directory")
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "invalid path: %s", input)
	}
	return abs, nil
}

func validateDirectoryInput(input string) error {
	path := strings.TrimSpace(input)
	if path == "" {
		return nil
	}
	if strings.ContainsRune(path, 0) {
		return errors.New("path contains a NUL byte")
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(expanded); err == nil && !info.IsDir() {
		return errors.New("path exists and is not a directory")
	}
	return nil
}

// numberedOptions prefixes options with right-aligned ordinals.
func numberedOptions(options []string) []string {
	width := runewidth.StringWidth(fmt.Sprint(len(options)))
	items := make([]string, 0, len(options))
	for i, option := range options {
		number := fmt.Sprint(i + 1)
		items = append(items, fmt.Sprintf("%s%s. %s", strings.Repeat(" ", width-runewidth.StringWidth(number)), number, option))
	}
	return items
}

func promptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return ErrAborted
	}
	return errors.Wrap(err, "prompt failed")
}
