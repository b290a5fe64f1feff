package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "giteakit/internal/errors"
	"giteakit/internal/diff"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// reportedError carries the message to show for err when it is not the
// one ParseError would pick.
type reportedError struct {
	err      error
	friendly apperrors.Friendly
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func friendlyOf(err error) apperrors.Friendly {
	var r *reportedError
	if errors.As(err, &r) {
		return r.friendly
	}
	return apperrors.ParseError(err, apperrors.DefaultMessages)
}

// printError prints the user facing message, then the cause when
// retrying might help.
func printError(w io.Writer, err error) {
	f := friendlyOf(err)
	red.Fprintln(w, f.ErrorMessage)
	if f.IsRecoverable {
		faint.Fprintln(w, err.Error())
	}
}

// splitRepo parses owner/name.
func splitRepo(arg string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", arg)
	}
	return owner, name, nil
}

// highlight writes content colored for the language its filename
// suggests. Unknown types are written as is.
func highlight(w io.Writer, filename, content string) error {
	lexer := lexers.Match(filename)
	if lexer == nil {
		_, err := io.WriteString(w, content)
		return err
	}
	return quick.Highlight(w, content, lexer.Config().Name, "terminal256", "monokai")
}

func printDiff(w io.Writer, result *diff.Result, oldName, newName string) {
	if result.Empty() {
		fmt.Fprintln(w, "No differences")
		return
	}

	for _, line := range strings.Split(strings.TrimSuffix(result.Format(oldName, newName), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			fmt.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			cyan.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			green.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			red.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintf(w, "%s, %s\n",
		green.Sprintf("%d additions", result.Stats.Additions),
		red.Sprintf("%d deletions", result.Stats.Deletions))
}
