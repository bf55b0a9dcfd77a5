// Command orchestrator drives a project through planning, dual-reviewer
// validation, task-by-task implementation, verification, and quality/security
// gates, coordinating Claude/Cursor/Gemini CLI agents as subprocesses.
package main

import (
	"os"

	"github.com/anthropics/agent-orchestrator/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
