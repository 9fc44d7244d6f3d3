package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"trafficlens/internal/stage"
)

// Requirement defines an external binary trafficlens relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Health converts statuses into readiness records. Missing optional binaries
// are reported ready with a detail note.
func Health(statuses []Status) []stage.Health {
	out := make([]stage.Health, 0, len(statuses))
	for _, st := range statuses {
		switch {
		case st.Available:
			out = append(out, stage.Health{Name: st.Name, Ready: true, Detail: st.Command})
		case st.Optional:
			out = append(out, stage.Health{Name: st.Name, Ready: true, Detail: "optional: " + st.Detail})
		default:
			out = append(out, stage.Unhealthy(st.Name, st.Detail))
		}
	}
	return out
}
