package scheduler

import "context"

func NewCommandWith(run func(ctx context.Context, name string, args ...string) ([]byte, error)) *Command {
	return &Command{Path: "schtasks.exe", run: run}
}

var MissingTask = missingTask
