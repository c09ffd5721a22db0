// Package checks holds the concrete probes wired into the health registry
// at boot: catalog reachability, blob-root writability and the upstream
// discovery provider.
package checks

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zpkg/registry/health"
)

// FileChecker fails while the named file exists. Used to take the registry
// out of rotation by touching a drain file.
func FileChecker(f string) health.Checker {
	return health.CheckFunc(func() error {
		if _, err := os.Stat(f); err == nil {
			return errors.New("file exists")
		}
		return nil
	})
}

// WritableDirectoryChecker probes that dir accepts writes by creating and
// removing a marker file. The blob store cannot ingest when this fails.
func WritableDirectoryChecker(dir string) health.Checker {
	return health.CheckFunc(func() error {
		probe := filepath.Join(dir, ".health-probe")
		f, err := os.Create(probe)
		if err != nil {
			return fmt.Errorf("directory not writable: %v", err)
		}
		f.Close()
		os.Remove(probe)
		return nil
	})
}

// HTTPChecker does a HEAD request and verifies that the status code is
// under 500. Discovery providers answer 404 for a bare HEAD on their base
// URL; only server errors and connection failures count as down.
func HTTPChecker(url string, timeout time.Duration) health.Checker {
	client := &http.Client{Timeout: timeout}
	return health.CheckFunc(func() error {
		response, err := client.Head(url)
		if err != nil {
			return fmt.Errorf("error while checking %s: %v", url, err)
		}
		defer response.Body.Close()
		if response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream returned status %d", response.StatusCode)
		}
		return nil
	})
}
