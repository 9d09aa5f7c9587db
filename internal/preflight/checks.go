package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"relay/internal/config"
	"relay/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabaseDir verifies that the ledger database can be created or opened
// in its directory.
func CheckDatabaseDir(path string) Result {
	const name = "Ledger database"
	dir := CheckDirectoryAccess(name, filepath.Dir(path))
	if !dir.Passed {
		return dir
	}
	if _, err := os.Stat(path); err == nil {
		if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (exists)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first use)", path)}
}

// CheckNtfy verifies that the ntfy server behind topicURL reports healthy.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topicURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid topic url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := parsed.Scheme + "://" + parsed.Host + "/v1/health"
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckCommands evaluates every external program the config refers to: exec
// stage commands, the mail send command, and next-stage commands when the
// exec launcher is selected.
func CheckCommands(cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	for _, stage := range cfg.Stages {
		if stage.Behavior == "exec" {
			requirements = append(requirements, deps.Requirement{
				Name:        stage.Name + " command",
				Command:     stage.Command,
				Description: "Runs every item of stage " + stage.Name,
			})
		}
		if stage.HasNext() && cfg.LauncherKind() == "exec" {
			requirements = append(requirements, deps.Requirement{
				Name:        stage.Name + " next",
				Command:     stage.NextCommand,
				Description: "Starts stage " + stage.Next,
			})
		}
	}
	if cfg.Notifications.SystemError && cfg.Notifications.MailSendCommand != "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Mail",
			Command:     cfg.Notifications.MailSendCommand,
			Description: "Delivers system error mail",
			Optional:    cfg.Notifications.NtfyTopic != "",
		})
	}
	return deps.CheckBinaries(requirements)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out"
	}
	return err.Error()
}
