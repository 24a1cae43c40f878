package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	printTimeout   = 20 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary e2e test in -short mode")
	}
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "bambubridge-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "testserver")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/testserver")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = err
			builtBinary = string(out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatalf("build testserver: %v\n%s", buildErr, builtBinary)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

func startServer(t *testing.T, binary string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		"BAMBU_LISTEN_ADDR="+addr,
		"BAMBU_LOG_LEVEL=info",
		"BAMBU_SIM_FILE=benchy.3mf",
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

type jobList struct {
	Jobs []struct {
		ID       string `json:"id"`
		FileName string `json:"file_name"`
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	} `json:"jobs"`
	Total int `json:"total"`
}

func TestTestserverPrintsToCompletion(t *testing.T) {
	sp := startServer(t, getBinary(t))

	var jobs jobList
	deadline := time.Now().Add(printTimeout)
	for {
		getJSON(t, sp.url+"/v1/jobs", &jobs)
		if jobs.Total == 1 && jobs.Jobs[0].Status == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("print did not complete, jobs = %+v\nstdout:\n%s", jobs, sp.stdout.String())
		}
		time.Sleep(pollInterval)
	}

	job := jobs.Jobs[0]
	if job.FileName != "benchy.3mf" {
		t.Errorf("file_name = %q, want benchy.3mf", job.FileName)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}

	var history struct {
		Events []struct {
			Line string `json:"line"`
		} `json:"events"`
	}
	if code := getJSON(t, sp.url+"/v1/jobs/"+job.ID+"/events", &history); code != http.StatusOK {
		t.Fatalf("events status = %d", code)
	}
	if len(history.Events) < 2 {
		t.Fatalf("events = %+v, want start and completion", history.Events)
	}
	if !strings.HasPrefix(history.Events[0].Line, "Started printing") {
		t.Errorf("first event = %q", history.Events[0].Line)
	}
	if last := history.Events[len(history.Events)-1].Line; last != "Print completed: benchy.3mf" {
		t.Errorf("last event = %q", last)
	}

	var status struct {
		State string `json:"state"`
	}
	getJSON(t, sp.url+"/v1/printer", &status)
	if status.State != "idle" {
		t.Errorf("printer state = %q, want idle", status.State)
	}

	resp, err := http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"bambubridge_http_requests_total", "bambubridge_printer_jobs_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
