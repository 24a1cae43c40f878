package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/bambubridge/internal/model"
)

func TestListFiles(t *testing.T) {
	env := newTestEnv(t)
	env.files.files = []*model.FileInfo{
		{Name: "benchy.3mf", DosName: "benchy.3mf", Path: "benchy.3mf", Size: 1024},
		{Name: "cube.gcode", DosName: "cube.gco", Path: "cache/cube.gcode", Size: 10},
	}

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/files")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body listFilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(body.Files))
	}
	if body.Files[1].Path != "cache/cube.gcode" {
		t.Errorf("files[1].path = %q, want cache/cube.gcode", body.Files[1].Path)
	}
}

func TestListFilesEmpty(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/files")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["files"]) != "[]" {
		t.Errorf("files = %s, want []", body["files"])
	}
}

func TestListFilesError(t *testing.T) {
	env := newTestEnv(t)
	env.files.err = errors.New("permission denied")

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/files")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
