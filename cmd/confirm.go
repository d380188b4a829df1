package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/arq/internal/sessions"
)

// promptIn is where interactive answers are read from, replaceable in tests.
var promptIn io.Reader = os.Stdin

var (
	promptSrc    io.Reader
	promptReader *bufio.Reader
)

// promptBuffer keeps one buffered reader per input so consecutive prompts
// do not drop each other's read-ahead.
func promptBuffer() *bufio.Reader {
	if promptReader == nil || promptSrc != promptIn {
		promptSrc = promptIn
		promptReader = bufio.NewReader(promptIn)
	}
	return promptReader
}

// newConfirmer asks on the terminal unless --yes or assume_yes is set.
func newConfirmer() sessions.Confirmer {
	return sessions.ConfirmFunc(func(prompt string) bool {
		if assumeYes || viper.GetBool("assume_yes") {
			return true
		}
		answer, err := promptLine(prompt + " [y/N] ")
		if err != nil {
			return false
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true
		}
		return false
	})
}

// promptLine prints prompt and reads one trimmed line from promptIn.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(ui.ErrOut, prompt)
	line, err := promptBuffer().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
