package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

var HealthCheckCommand = &cli.Command{
	Name:  "healthcheck",
	Usage: "Check if the API server is healthy (for container health checks)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Value:   "http://localhost:6080/api/v1/health",
			Usage:   "URL to check for health",
			EnvVars: []string{"LACOCTELERA_HEALTH_URL"},
		},
		&cli.IntFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   5,
			Usage:   "Timeout in seconds",
			EnvVars: []string{"LACOCTELERA_HEALTH_TIMEOUT"},
		},
	},
	Action: func(ctx *cli.Context) error {
		return checkHealth(ctx.String("url"), time.Duration(ctx.Int("timeout"))*time.Second)
	},
}

// checkHealth fails unless url answers 200 with a status of OK
func checkHealth(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status     string `json:"status"`
		Store      string `json:"store"`
		Migrations string `json:"migrations"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil {
			return fmt.Errorf("health check failed: status %d (store %s, migrations %s)", resp.StatusCode, body.Store, body.Migrations)
		}
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	if decodeErr != nil || body.Status != "OK" {
		return fmt.Errorf("health check failed: unexpected response")
	}
	return nil
}
