package prompt

import (
	"errors"
	"testing"

	"github.com/manifoldco/promptui"
)

func stubRunner(t *testing.T, fn func(p promptui.Prompt) (string, error)) {
	t.Helper()
	orig := promptRunner
	promptRunner = fn
	t.Cleanup(func() { promptRunner = orig })
}

func TestInteractiveConfirmYes(t *testing.T) {
	stubRunner(t, func(promptui.Prompt) (string, error) { return "y", nil })
	ok, err := Interactive{}.Confirm("proceed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected confirmation")
	}
}

func TestInteractiveConfirmDeclined(t *testing.T) {
	stubRunner(t, func(promptui.Prompt) (string, error) { return "", promptui.ErrAbort })
	ok, err := Interactive{}.Confirm("proceed")
	if err != nil {
		t.Fatalf("a declined confirm is not an error: %v", err)
	}
	if ok {
		t.Fatalf("expected decline")
	}
}

func TestInteractiveConfirmFailure(t *testing.T) {
	stubRunner(t, func(promptui.Prompt) (string, error) { return "", errors.New("tty gone") })
	if _, err := (Interactive{}).Confirm("proceed"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInteractivePasswordRejectsEmpty(t *testing.T) {
	answers := []string{"", "s3cret"}
	stubRunner(t, func(promptui.Prompt) (string, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	})
	got, err := Interactive{}.Password("truststore.jks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("got %q", got)
	}
	if len(answers) != 0 {
		t.Fatalf("empty answer should have been re-prompted")
	}
}

func TestAutoConfirm(t *testing.T) {
	ok, err := Auto{}.Confirm("anything")
	if err != nil || !ok {
		t.Fatalf("auto must confirm: %v %v", ok, err)
	}
}
