// Package prompt wraps interactive confirmation and password entry behind
// small capabilities so non-interactive callers (and tests) can substitute
// auto-confirming implementations.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(msg string) (bool, error)
}

// PasswordReader obtains a password for the named store.
type PasswordReader interface {
	Password(label string) (string, error)
}

// runner vars allow tests to stub promptui.
var promptRunner = func(p promptui.Prompt) (string, error) {
	return p.Run()
}

// Interactive prompts on the terminal via promptui.
type Interactive struct{}

func (Interactive) Confirm(msg string) (bool, error) {
	p := promptui.Prompt{
		Label:     msg,
		IsConfirm: true,
	}
	result, err := promptRunner(p)
	if err != nil {
		// promptui reports a declined confirm as ErrAbort.
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(result, "y") || strings.EqualFold(result, "yes"), nil
}

// Password prompts until a non-empty value is entered.
func (Interactive) Password(label string) (string, error) {
	for {
		p := promptui.Prompt{
			Label: fmt.Sprintf("Password for %s", label),
			Mask:  '*',
		}
		result, err := promptRunner(p)
		if err != nil {
			return "", err
		}
		if result != "" {
			return result, nil
		}
		fmt.Println("password must not be empty")
	}
}

// Auto answers yes to every confirmation; used when prompts are
// suppressed with --yes and in tests.
type Auto struct{}

func (Auto) Confirm(string) (bool, error) { return true, nil }
