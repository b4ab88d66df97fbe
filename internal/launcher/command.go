package launcher

import "strings"

// Command is the single operation processed per invocation.
type Command int

const (
	// CommandHelp prints usage. Absent and unknown commands map here.
	CommandHelp Command = iota
	CommandBuild
	CommandRebuild
	CommandRun
	CommandGradio
	CommandShell
	CommandClean
	CommandDoctor
)

var commandNames = map[Command]string{
	CommandHelp:    "help",
	CommandBuild:   "build",
	CommandRebuild: "rebuild",
	CommandRun:     "run",
	CommandGradio:  "gradio",
	CommandShell:   "shell",
	CommandClean:   "clean",
	CommandDoctor:  "doctor",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return "help"
}

// ParseCommand maps a sub-command name to its Command. Anything unknown is
// CommandHelp.
func ParseCommand(s string) Command {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c
		}
	}
	return CommandHelp
}

// NeedsPreflight reports whether the daemon and GPU checks must pass first.
func (c Command) NeedsPreflight() bool {
	switch c {
	case CommandRun, CommandGradio, CommandShell:
		return true
	}
	return false
}

// startsJobContainer reports whether the command starts the Job Container and
// so records its exit code.
func (c Command) startsJobContainer() bool {
	return c.NeedsPreflight()
}
