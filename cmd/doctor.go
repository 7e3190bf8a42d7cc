package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration, and collaborator health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("opsdesk doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Collaborators:")
	checkEndpoint("Store", cfg.Store.BaseURL)
	if cfg.Bridge.APIURL != "" {
		checkEndpoint("Bridge", cfg.Bridge.APIURL)
	} else {
		fmt.Printf("    %-8s not configured\n", "Bridge:")
	}

	fmt.Println()
	fmt.Printf("  Gateway:  %s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token == "" {
		fmt.Println(" (no auth token set)")
	} else {
		fmt.Println(" (token configured)")
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("  Tracing:  %s via %s\n", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}
}

func checkEndpoint(name, baseURL string) {
	client := &http.Client{Timeout: 3 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		fmt.Printf("    %-8s %s (bad URL: %v)\n", name+":", baseURL, err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("    %-8s %s (UNREACHABLE)\n", name+":", baseURL)
		return
	}
	resp.Body.Close()
	fmt.Printf("    %-8s %s (status %d)\n", name+":", baseURL, resp.StatusCode)
}
