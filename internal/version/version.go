package version

import (
	"runtime"
	rdebug "runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GitCommit     string
	GitBranch     string
	GitSummary    string
	BuildDate     string
	AppVersion    string
	GRPCVersion   = dependencyVersion("google.golang.org/grpc")
	DockerVersion = dependencyVersion("github.com/docker/docker")
	GoVersion     = runtime.Version()
)

type Version struct {
	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	AppVersion    string `json:"app_version"`
	GoVersion     string `json:"go_version"`
	GRPCVersion   string `json:"grpc_version"`
	DockerVersion string `json:"docker_version"`
}

func Current() Version {
	return Version{
		GitBranch:     GitBranch,
		GitCommit:     GitCommit,
		GitSummary:    GitSummary,
		BuildDate:     BuildDate,
		AppVersion:    AppVersion,
		GoVersion:     GoVersion,
		GRPCVersion:   GRPCVersion,
		DockerVersion: DockerVersion,
	}
}

func ExportBuildInfoMetric() {
	buildInfo := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osie_runner_build_info",
			Help: "A metric with a constant '1' value, labeled by branch, commit, summary, builddate, version, Go version from which osie-runner was built.",
		},
		[]string{"branch", "commit", "summary", "builddate", "version", "goversion"},
	)

	buildInfo.WithLabelValues(GitBranch, GitCommit, GitSummary, BuildDate, AppVersion, GoVersion).Set(1)
}

// dependencyVersion returns the version of the module the binary was built with.
func dependencyVersion(path string) string {
	buildInfo, ok := rdebug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, d := range buildInfo.Deps {
		if strings.HasPrefix(d.Path, path) {
			return d.Version
		}
	}

	return ""
}
