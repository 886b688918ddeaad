// Package main is a static health probe for the access rule service image.
// It accepts the wget flags used by container HEALTHCHECK lines so that
// distroless images can keep their existing probe command.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	defaultPort    = "5010"
	defaultTimeout = 5 * time.Second
)

type probeOptions struct {
	url     string
	quiet   bool
	spider  bool
	output  string
	debug   bool
	timeout time.Duration
}

// healthBody is the document served by the service health endpoint.
type healthBody struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

func main() {
	options, err := parseOptions(os.Args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if options.url == "" {
		options.url = defaultHealthURL(os.Getenv)
	}
	if options.debug {
		_, _ = fmt.Fprintf(os.Stderr, "healthprobe url=%s timeout=%s\n", options.url, options.timeout)
	}
	if err := runProbe(options, os.Stdout); err != nil {
		if !options.quiet {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
}

func parseOptions(args []string) (probeOptions, error) {
	options := probeOptions{output: "-", timeout: defaultTimeout}
	if filepath.Base(args[0]) == "healthprobe" {
		options.quiet = true
	}

	rest := args[1:]
	next := func(code string) (string, error) {
		if len(rest) == 0 {
			return "", errors.New(code)
		}
		v := rest[0]
		rest = rest[1:]
		return v, nil
	}
	for len(rest) > 0 {
		arg := rest[0]
		rest = rest[1:]

		switch {
		case arg == "--quiet" || arg == "-q":
			options.quiet = true
		case arg == "--spider":
			options.spider = true
		case arg == "--debug":
			options.debug = true
		case arg == "--tries":
			if _, err := next("HEALTHPROBE-PARSE-MISSINGTRIES"); err != nil {
				return options, err
			}
		case arg == "--output-document" || arg == "-O":
			v, err := next("HEALTHPROBE-PARSE-MISSINGOUTPUT")
			if err != nil {
				return options, err
			}
			options.output = v
		case strings.HasPrefix(arg, "--output-document="):
			options.output = strings.TrimPrefix(arg, "--output-document=")
		case arg == "--timeout" || strings.HasPrefix(arg, "--timeout="):
			v := strings.TrimPrefix(arg, "--timeout=")
			if arg == "--timeout" {
				var err error
				if v, err = next("HEALTHPROBE-PARSE-MISSINGTIMEOUT"); err != nil {
					return options, err
				}
			}
			seconds, err := strconv.Atoi(v)
			if err != nil || seconds <= 0 {
				return options, errors.New("HEALTHPROBE-PARSE-INVALIDTIMEOUT")
			}
			options.timeout = time.Duration(seconds) * time.Second
		case strings.HasPrefix(arg, "-"):
			// other wget flags such as --tries=1 are accepted and ignored
		default:
			options.url = arg
		}
	}
	if !options.spider && options.output == "" {
		options.output = "-"
	}
	return options, nil
}

// defaultHealthURL builds the local health URL from the same SERVER_PORT and
// SERVER_CONTEXTPATH variables the service reads its configuration from.
func defaultHealthURL(getenv func(string) string) string {
	port := getenv("SERVER_PORT")
	if port == "" {
		port = defaultPort
	}
	contextPath := strings.TrimRight(getenv("SERVER_CONTEXTPATH"), "/")
	return fmt.Sprintf("http://127.0.0.1:%s%s/health", port, contextPath)
}

func runProbe(options probeOptions, stdout io.Writer) error {
	client := &http.Client{Timeout: options.timeout}
	resp, err := client.Get(options.url)
	if err != nil {
		return fmt.Errorf("HEALTHPROBE-RUN-REQUESTFAILED: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("HEALTHPROBE-RUN-READBODYFAILED: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("HEALTHPROBE-RUN-UNHEALTHYSTATUS: %d%s", resp.StatusCode, downDetails(body))
	}

	if options.spider {
		return nil
	}
	if options.output == "-" {
		if _, err := stdout.Write(body); err != nil {
			return fmt.Errorf("HEALTHPROBE-RUN-WRITESTDOUTFAILED: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(options.output, body, 0o600); err != nil {
		return fmt.Errorf("HEALTHPROBE-RUN-WRITEOUTPUTFAILED: %w", err)
	}
	return nil
}

// downDetails lists the failing checks of a DOWN health document, if any.
func downDetails(body []byte) string {
	var health healthBody
	if err := jsoniter.Unmarshal(body, &health); err != nil || len(health.Details) == 0 {
		return ""
	}
	names := make([]string, 0, len(health.Details))
	for name := range health.Details {
		names = append(names, name)
	}
	sort.Strings(names)
	return " (" + strings.Join(names, ", ") + ")"
}
