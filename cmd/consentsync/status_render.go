package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
)

type statusKind int

const (
	statusOK statusKind = iota
	statusError
)

const statusLabelWidth = 20

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := "[OK]"
	color := text.FgGreen
	if kind == statusError {
		statusText = "[ERROR]"
		color = text.FgRed
	}
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", statusText)
	if colorize {
		return color.Sprint(base)
	}
	return base
}
