// Package main is a smoke-test utility that checks a running server is reachable. It
// calls /health, /ready and /version and, when given an event UUID, the public form for
// that event, printing each status code and body. It exits non-zero when any call fails.
//
//	go run ./cmd/test-api [base-url] [event-uuid]
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}
	paths := []string{"/health", "/ready", "/version"}
	if len(os.Args) > 2 {
		paths = append(paths, "/api/v1/public/events/"+os.Args[2])
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, p := range paths {
		resp, err := client.Get(base + p)
		if err != nil {
			fmt.Printf("%s: error: %v\n", p, err)
			failed = true
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%s: error reading body: %v\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("%s: %d\n%s\n\n", p, resp.StatusCode, body)
		if resp.StatusCode >= 400 {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
