package cmd

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()

	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✖")
)

// BeQuietError signals that the failure was already reported to the user.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "command failed"
}

// logError reports a failed remote call including its correlation id.
func logError(err error, correlation, msg string) error {
	log.Error().Msgf("%s %s", redCross, msg)
	if correlation != "" {
		log.Error().Msgf("correlation ID: %s", bold(correlation))
	}
	log.Error().Msgf("error: %v", err)
	return BeQuietError{}
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf(greenCheck+" "+format, args...)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	return t
}

func applyTableFormat(t table.Writer) {
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// readInput reads a value from the argument, or from stdin if it is "-".
func readInput(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	log.Debug().Msg("Reading from stdin")
	data, err := os.ReadFile("/dev/stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
