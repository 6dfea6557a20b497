package e2e

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	adminUser     = "testuser"
	adminPassword = "testpass123"
)

var appURL string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

func runTestMain(m *testing.M) int {
	workDir, err := os.MkdirTemp("", "expense-approvals-e2e")
	if err != nil {
		fmt.Printf("Failed to create work dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(workDir)

	binary := filepath.Join(workDir, "expense-approvals")
	if out, err := buildServer(binary); err != nil {
		fmt.Printf("Failed to build app: %v\n%s\n", err, out)
		return 1
	}

	port, err := freePort()
	if err != nil {
		fmt.Printf("Failed to pick a port: %v\n", err)
		return 1
	}
	appURL = fmt.Sprintf("http://localhost:%d", port)

	// The server reads .env from its working directory
	env := map[string]string{
		"PORT":           fmt.Sprint(port),
		"DB_PATH":        filepath.Join(workDir, "expenses.db"),
		"STATIC_DIR":     filepath.Join(workDir, "static"),
		"ADMIN_USER":     adminUser,
		"ADMIN_PASSWORD": adminPassword,
		"HASH_PASSWORDS": "true",
		"LOG_LEVEL":      "warn",
		"LOG_FORMAT":     "json",
	}
	if err := writeDotEnv(filepath.Join(workDir, ".env"), env); err != nil {
		fmt.Printf("Failed to write .env: %v\n", err)
		return 1
	}

	server := exec.Command(binary)
	server.Dir = workDir
	server.Env = withoutKeys(os.Environ(), env)
	server.Stdout = os.Stdout
	server.Stderr = os.Stderr
	if err := server.Start(); err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		return 1
	}
	defer func() {
		if err := server.Process.Kill(); err != nil {
			fmt.Printf("Failed to kill server: %v\n", err)
		}
		server.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := waitReady(ctx, appURL+"/login"); err != nil {
		fmt.Printf("Server is not reachable: %v\n", err)
		return 1
	}

	return m.Run()
}

// buildServer compiles cmd/server, whether tests run from e2e or the module root.
func buildServer(binary string) ([]byte, error) {
	pkg := "../cmd/server"
	if _, err := os.Stat(pkg); err != nil {
		pkg = "./cmd/server"
	}
	return exec.Command("go", "build", "-o", binary, pkg).CombinedOutput()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func writeDotEnv(path string, env map[string]string) error {
	var b strings.Builder
	for k, v := range env {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// withoutKeys drops inherited variables that would override the .env file.
func withoutKeys(environ []string, env map[string]string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := env[key]; !ok {
			out = append(out, kv)
		}
	}
	return out
}

func waitReady(ctx context.Context, url string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.Join(errors.New("timed out waiting for "+url), ctx.Err())
		case <-ticker.C:
		}
	}
}
