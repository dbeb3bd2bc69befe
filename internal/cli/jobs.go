package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List ingestion jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := docStore.ListJobs(cmd.Context())
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs.")
			return nil
		}

		for _, job := range jobs {
			line := fmt.Sprintf("%s  %-10s  %3d%%  %s", job.ID, job.Status, job.ProgressPercent, job.Filename)
			if job.Error != "" {
				line += "  error: " + job.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
