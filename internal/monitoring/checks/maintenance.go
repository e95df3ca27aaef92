package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saudema/saudema/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance degrades readiness when a cleanup job keeps failing or has not
// run within maxAge (6h when zero). Expired sessions and reset tokens pile up
// in that case but requests are still served.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if tracker == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}
		jobs := tracker.Jobs()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance runs yet"}
		}

		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			if job.ConsecutiveFailures > 0 {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, fmt.Sprintf("%s failed %dx: %s", job.Job, job.ConsecutiveFailures, job.LastError))
			}
			if age := time.Since(job.LastRunAt); !job.LastRunAt.IsZero() && age > maxAge {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, fmt.Sprintf("%s last ran %s ago", job.Job, age.Truncate(time.Minute)))
			}
		}
		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
