package server

import (
	"net/http"
	"runtime"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/cwbudde/ssimulacra2"
)

// CPUFeatures reports the SIMD extensions of the host that the Go compiler
// and runtime can use for the float kernels.
func CPUFeatures() map[string]bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return map[string]bool{
			"sse2":   cpu.X86.HasSSE2,
			"sse41":  cpu.X86.HasSSE41,
			"avx":    cpu.X86.HasAVX,
			"avx2":   cpu.X86.HasAVX2,
			"fma":    cpu.X86.HasFMA,
			"avx512": cpu.X86.HasAVX512F,
		}
	case "arm64":
		return map[string]bool{
			"asimd": cpu.ARM64.HasASIMD,
			"fphp":  cpu.ARM64.HasFPHP,
			"sve":   cpu.ARM64.HasSVE,
		}
	default:
		return map[string]bool{}
	}
}

type healthResponse struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Model       string          `json:"model"`
	GoVersion   string          `json:"goVersion"`
	Arch        string          `json:"arch"`
	CPUs        int             `json:"cpus"`
	CPUFeatures map[string]bool `json:"cpuFeatures"`
	RunningJobs int             `json:"runningJobs"`
	Uptime      float64         `json:"uptime"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     ssimulacra2.Version,
		Model:       ssimulacra2.VersionString,
		GoVersion:   runtime.Version(),
		Arch:        runtime.GOARCH,
		CPUs:        runtime.NumCPU(),
		CPUFeatures: CPUFeatures(),
		RunningJobs: len(s.jobManager.GetRunningJobs()),
		Uptime:      time.Since(s.started).Seconds(),
	})
}
