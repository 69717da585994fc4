package main

import (
	"fmt"
	"io"

	"github.com/amrbekhit/mimasprog"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

// consoleListener prints the progress of a programming run.
type consoleListener struct {
	out     io.Writer
	max     int
	percent int
}

func newConsoleListener(out io.Writer) *consoleListener {
	return &consoleListener{out: out}
}

func (l *consoleListener) InitProgress(max int) {
	l.max = max
	l.percent = -1
}

func (l *consoleListener) UpdateProgress(value int) {
	if l.max <= 0 {
		return
	}
	percent := value * 100 / l.max
	if percent == l.percent {
		return
	}
	l.percent = percent
	fmt.Fprintf(l.out, "\r%3d%%", percent)
	if percent >= 100 {
		fmt.Fprintln(l.out)
	}
}

func (l *consoleListener) LogMessage(text string) {
	fmt.Fprintln(l.out, text)
}

func (l *consoleListener) ErrorMessage(text string) {
	color.New(color.FgRed).Fprintln(l.out, text)
}

func (l *consoleListener) UpdateTitle(text string) {
	color.New(color.Bold).Fprintln(l.out, text)
}

func (l *consoleListener) ProgrammingFinished() {
	log.Debugf("programming finished")
}

func (l *consoleListener) StateChanged(s mimasprog.State) {
	log.Debugf("state: %v", s)
}
