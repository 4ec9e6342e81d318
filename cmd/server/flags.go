package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/openhtm/htmserve/pkg/constants"
)

type Flags struct {
	Port          int
	Host          string
	ConfigFile    string
	LogLevel      string
	LogFormat     string
	MetricsPort   int
	EnableMetrics bool
	EnableCORS    bool
	TLSCert       string
	TLSKey        string
	Version       bool
}

func ParseFlags() *Flags {
	flags := &Flags{}

	flag.IntVar(&flags.Port, "port", constants.DefaultPort, "Server port")
	flag.StringVar(&flags.Host, "host", constants.DefaultHost, "Server host")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to YAML configuration file")
	flag.StringVar(&flags.LogLevel, "log-level", constants.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.LogFormat, "log-format", constants.DefaultLogFormat, "Log format (json, text)")
	flag.IntVar(&flags.MetricsPort, "metrics-port", constants.DefaultMetricsPort, "Prometheus metrics port")
	flag.BoolVar(&flags.EnableMetrics, "enable-metrics", true, "Enable the Prometheus metrics listener")
	flag.BoolVar(&flags.EnableCORS, "enable-cors", true, "Enable CORS headers")
	flag.StringVar(&flags.TLSCert, "tls-cert", "", "Path to TLS certificate")
	flag.StringVar(&flags.TLSKey, "tls-key", "", "Path to TLS key")
	flag.BoolVar(&flags.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n%s\n\n", constants.AppDescription)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flags.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return flags
}
