package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestExtractPipe(t *testing.T) {
	cmd, pipeType, pipeArg, ok := extractPipe("show interfaces | match eth0")
	if !ok || cmd != "show interfaces" || pipeType != "match" || pipeArg != "eth0" {
		t.Fatalf("got %q %q %q %v", cmd, pipeType, pipeArg, ok)
	}
	if _, _, _, ok := extractPipe("show interfaces"); ok {
		t.Fatal("no pipe expected")
	}
	if _, _, _, ok := extractPipe("show | bogus"); ok {
		t.Fatal("unknown filter should not be treated as a pipe")
	}
}

func TestCaptureStdout(t *testing.T) {
	wantErr := errors.New("boom")
	out, err := captureStdout(func() error {
		fmt.Println("hello")
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if out != "hello\n" {
		t.Fatalf("out = %q", out)
	}
}

// Output well past the kernel pipe buffer must not block the command
// while the capture waits for it to finish.
func TestCaptureStdoutLargeOutput(t *testing.T) {
	const lines = 2048
	payload := strings.Repeat("x", 200)

	done := make(chan struct{})
	var out string
	go func() {
		defer close(done)
		out, _ = captureStdout(func() error {
			for i := 0; i < lines; i++ {
				fmt.Println(payload)
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("captureStdout blocked on large output")
	}
	if got := strings.Count(out, "\n"); got != lines {
		t.Fatalf("captured %d lines, want %d", got, lines)
	}
}
