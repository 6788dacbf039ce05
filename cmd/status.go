package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the subset of the server's job document shown here
type jobStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		RefPath    string   `json:"refPath"`
		DistPath   string   `json:"distPath"`
		Background *float32 `json:"background"`
	} `json:"config"`
	Score      *float64 `json:"score"`
	Scales     int      `json:"scales"`
	Composited bool     `json:"composited"`
	Background float32  `json:"background"`
	Error      string   `json:"error"`
	ErrorKind  string   `json:"errorKind"`
	Elapsed    float64  `json:"elapsed"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(os.Stdout, serverURL)
	}
	return getJobStatus(os.Stdout, serverURL, args[0])
}

func fetchJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &httpStatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func listJobs(out io.Writer, baseURL string) error {
	var jobs []jobStatus
	if err := fetchJSON(baseURL+"/api/v1/jobs", &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Pair: %s -> %s\n", job.Config.RefPath, job.Config.DistPath)
		if job.Score != nil {
			fmt.Fprintf(out, "  Score: %.4f\n", *job.Score)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(out io.Writer, baseURL, jobID string) error {
	var status jobStatus
	err := fetchJSON(fmt.Sprintf("%s/api/v1/jobs/%s/status", baseURL, jobID), &status)
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	} else if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Reference: %s\n", status.Config.RefPath)
	fmt.Fprintf(out, "  Distorted: %s\n", status.Config.DistPath)
	if status.Config.Background != nil {
		fmt.Fprintf(out, "  Background: %g\n", *status.Config.Background)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Result:")
	if status.Score != nil {
		fmt.Fprintf(out, "  Score: %.8f\n", *status.Score)
		fmt.Fprintf(out, "  Scales: %d\n", status.Scales)
		if status.Composited {
			fmt.Fprintf(out, "  Composited over: %g\n", status.Background)
		}
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(out, "\nError (%s): %s\n", status.ErrorKind, status.Error)
	}

	return nil
}
