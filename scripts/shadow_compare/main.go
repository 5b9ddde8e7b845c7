// Command shadow_compare replays read-only requests against the Go
// enforcement API and the legacy deployment, then reports status and body
// differences. Volatile fields (ids, tokens, timestamps) are masked before
// comparison because the two systems generate them independently.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type targetsFile struct {
	Targets []target `json:"targets"`
}

// defaultTargets covers the read surface exercised during cutover.
var defaultTargets = []target{
	{Method: http.MethodGet, Path: "/health", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/positions?site=cedar-terrace", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/violations?open=true", Critical: true},
	{Method: http.MethodGet, Path: "/api/v1/violations?category=FIRE_LANE", Critical: false},
}

// maskedFields differ between the legacy and Go systems by construction.
var maskedFields = map[string]struct{}{
	"id":         {},
	"qrToken":    {},
	"createdAt":  {},
	"issuedAt":   {},
	"occurredAt": {},
	"request_id": {},
}

type comparison struct {
	target         target
	legacyStatus   int
	goStatus       int
	statusMatch    bool
	bodyMatch      bool
	err            error
	goDuration     time.Duration
	legacyDuration time.Duration
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		bearerToken string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "legacy API base URL")
	flag.StringVar(&targetsPath, "targets", "", "optional JSON targets file; defaults to the built-in read surface")
	flag.StringVar(&bearerToken, "token", os.Getenv("SHADOW_COMPARE_TOKEN"), "bearer token sent to both systems")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets := defaultTargets
	if targetsPath != "" {
		loaded, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("load targets: %v", err)
		}
		targets = loaded
	}

	client := &http.Client{Timeout: timeout}
	var (
		results      []comparison
		breaking     int
		optionalDiff int
	)

	for _, tgt := range targets {
		comp := compareTarget(client, goBase, legacyBase, bearerToken, tgt)
		if comp.err != nil || !comp.statusMatch || !comp.bodyMatch {
			if tgt.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		results = append(results, comp)
	}

	printReport(results)
	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func compareTarget(client *http.Client, goBase, legacyBase, token string, tgt target) comparison {
	comp := comparison{target: tgt}

	goStatus, goBody, goDur, err := fetch(client, goBase, token, tgt)
	if err != nil {
		comp.err = fmt.Errorf("go request failed: %w", err)
		return comp
	}
	legacyStatus, legacyBody, legacyDur, err := fetch(client, legacyBase, token, tgt)
	if err != nil {
		comp.err = fmt.Errorf("legacy request failed: %w", err)
		return comp
	}

	comp.goStatus = goStatus
	comp.legacyStatus = legacyStatus
	comp.goDuration = goDur
	comp.legacyDuration = legacyDur
	comp.statusMatch = goStatus == legacyStatus
	comp.bodyMatch = bodiesEqual(goBody, legacyBody)
	return comp
}

func fetch(client *http.Client, base, token string, tgt target) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}
	return resp.StatusCode, body, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

// normalize masks volatile fields and collapses integral floats so the two
// encoders compare equal on semantically identical payloads.
func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			if _, masked := maskedFields[k]; masked {
				val[k] = "<masked>"
				continue
			}
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.err != nil {
			status = "ERROR"
		} else if !res.statusMatch || !res.bodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.target.Method, res.target.Path)
		if res.err != nil {
			fmt.Printf("  Error: %v\n", res.err)
			continue
		}
		fmt.Printf("  Go: %d (%s) | Legacy: %d (%s)\n", res.goStatus, res.goDuration, res.legacyStatus, res.legacyDuration)
		fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.statusMatch, res.bodyMatch, res.target.Critical)
	}
}
