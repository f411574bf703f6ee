// Package deps reports whether the external programs librarian shells out to
// are present on this host.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"librarian/internal/config"
)

// Requirement names an external program and whether it must exist as an
// executable on PATH or as a plain file.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// File marks requirements satisfied by a readable file rather than an
	// executable, such as the organizer script handed to an interpreter.
	File bool
}

// Status reports the availability of a Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check evaluates each requirement in order.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case status.Command == "":
			status.Detail = "command not configured"
		case req.File:
			status.Available, status.Detail = checkFile(status.Command)
		default:
			if _, err := exec.LookPath(status.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

func checkFile(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("%s does not exist", path)
		}
		return false, fmt.Sprintf("stat %s: %v", path, err)
	}
	if info.IsDir() {
		return false, fmt.Sprintf("%s is a directory", path)
	}
	return true, ""
}

// OrganizerRequirements lists what the local host needs to run organizer
// jobs. A remote target runs the command on the organizer host, so only the
// program file, which is uploaded from here, is required locally.
func OrganizerRequirements(cfg *config.Config) []Requirement {
	program := Requirement{
		Name:        "Organizer program",
		Command:     cfg.Organizer.Program,
		Description: "Script that moves completed downloads into the library",
		File:        true,
	}
	if cfg.RemoteEnabled() {
		return []Requirement{program}
	}
	return []Requirement{
		{
			Name:        "Organizer command",
			Command:     cfg.Organizer.Command,
			Description: "Interpreter that runs the organizer program",
		},
		program,
	}
}
