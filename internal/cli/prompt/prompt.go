// Package prompt provides interactive terminal prompts for yeepctl.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted (Ctrl+C).
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

// wrapError converts promptui interrupt/abort errors to ErrAborted for consistent handling.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// required rejects blank input.
func required(field string) func(string) error {
	return func(input string) error {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// Input prompts for text input. A non-empty defaultValue is offered for
// editing.
func Input(label, defaultValue string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: required(strings.ToLower(label)),
	}

	result, err := prompt.Run()
	return strings.TrimSpace(result), wrapError(err)
}

// Password prompts for a password input with masking.
func Password(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Mask:     '*',
		Validate: required("password"),
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}

// Confirm prompts the user for yes/no confirmation.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	// promptui renders [Y/n] and accepts an empty answer when Default is "y"
	if defaultYes {
		prompt.Default = "y"
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// Anything but yes is reported as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}

	return isYes(result), nil
}

// ConfirmWithForce returns true immediately if force is true,
// otherwise prompts for confirmation.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// SelectOption represents an item in a selection list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// selectTemplates returns the standard templates for selection prompts.
func selectTemplates(withDetails bool) *promptui.SelectTemplates {
	t := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if withDetails {
		t.Details = `
{{ "Server:" | faint }}	{{ .Description }}`
	}
	return t
}

// Select prompts the user to select from a list of options.
// Returns the selected option's value.
func Select(label string, options []SelectOption) (string, error) {
	if len(options) == 0 {
		return "", errors.New("nothing to select")
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: selectTemplates(options[0].Description != ""),
		Size:      10,
		CursorPos: 0,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", wrapError(err)
	}

	return options[i].Value, nil
}
