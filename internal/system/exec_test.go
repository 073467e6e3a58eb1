package system

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestExecOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r, err := Exec{}.Output(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if r.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", r.ExitCode)
	}
	if r.OK() {
		t.Error("OK() = true for exit 3")
	}
	if strings.TrimSpace(r.Stdout) != "out" {
		t.Errorf("Stdout = %q", r.Stdout)
	}
	if strings.TrimSpace(r.Stderr) != "err" {
		t.Errorf("Stderr = %q", r.Stderr)
	}
}

func TestExecOutput_MissingBinary(t *testing.T) {
	_, err := Exec{}.Output(context.Background(), "stackup-no-such-binary")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error = %v, want exec.ErrNotFound", err)
	}
}

func TestExecStream(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var out bytes.Buffer
	code, err := Exec{}.Stream(context.Background(), Spec{
		Path:   "sh",
		Args:   []string{"-c", "echo $STACKUP_UNIT"},
		Env:    []string{"STACKUP_UNIT=postgres"},
		Stdout: &out,
		Stderr: &out,
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if strings.TrimSpace(out.String()) != "postgres" {
		t.Errorf("output = %q, want postgres", out.String())
	}
}

func TestExecStream_Cancelled(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Exec{}.Stream(ctx, Spec{Path: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"active\n", "active"},
		{"\n\n  true  \nfalse", "true"},
	}
	for _, tt := range tests {
		if got := FirstLine(tt.in); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFake(t *testing.T) {
	f := NewFake().On("systemctl is-active --quiet nginx", &Result{ExitCode: 0})
	f.Binaries["nginx"] = true

	r, err := f.Output(context.Background(), "systemctl", "is-active", "--quiet", "nginx")
	if err != nil || r.ExitCode != 0 {
		t.Fatalf("Output() = %+v, %v", r, err)
	}

	r, _ = f.Output(context.Background(), "systemctl", "is-active", "--quiet", "docker")
	if r.ExitCode != 1 {
		t.Errorf("unregistered command exit = %d, want 1", r.ExitCode)
	}

	if _, err := f.LookPath("nginx"); err != nil {
		t.Errorf("LookPath(nginx) error = %v", err)
	}
	if _, err := f.LookPath("docker"); !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("LookPath(docker) error = %v, want ErrNotFound", err)
	}

	if got := len(f.Calls()); got != 2 {
		t.Errorf("recorded %d calls, want 2", got)
	}
}
