package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	userID    string
	lang      string
	mode      string
	budget    int64
	graded    bool
	casesFile string
	input     string
	expected  string
)

func main() {
	root := &cobra.Command{
		Use:   "judge-cli",
		Short: "CLI client for the exam-judge server",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:4000", "Server URL")
	root.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("JUDGE_USER"), "User id")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Create or revalidate a session",
		RunE:  runLogin,
	}
	loginCmd.Flags().StringVarP(&mode, "mode", "m", "practice", "Session mode (practice, timed)")
	loginCmd.Flags().Int64Var(&budget, "budget", 0, "Time budget in seconds (timed mode)")
	root.AddCommand(loginCmd)

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Submit a source file against test cases",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	runCmd.Flags().StringVarP(&lang, "language", "l", "", "Language (csharp, typescript; auto-detected from extension)")
	runCmd.Flags().BoolVar(&graded, "graded", false, "Submit for grading instead of a dry run")
	runCmd.Flags().StringVar(&casesFile, "cases", "", "JSON file with test cases")
	runCmd.Flags().StringVar(&input, "input", "", "Single-case stdin payload (ignored with --cases)")
	runCmd.Flags().StringVar(&expected, "expect", "", "Single-case expected output (ignored with --cases)")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "result",
		Short: "Fetch the last graded submission's verdicts",
		RunE:  runResult,
	})

	root.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show session state",
		RunE:  runState,
	})

	root.AddCommand(&cobra.Command{
		Use:   "audit",
		Short: "List recent audit events (requires the Postgres mirror)",
		RunE:  runAudit,
	})

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	payload := map[string]any{
		"userId": userID,
		"mode":   mode,
	}
	if budget > 0 {
		payload["timeBudgetSeconds"] = budget
	}
	return postJSON("/api/login", payload)
}

func runSubmit(_ *cobra.Command, args []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	if lang == "" {
		switch ext := filepath.Ext(args[0]); ext {
		case ".cs":
			lang = "csharp"
		case ".ts":
			lang = "typescript"
		default:
			return fmt.Errorf("cannot detect language for extension %q, use --language flag", ext)
		}
	}

	var cases []map[string]any
	if casesFile != "" {
		data, err := os.ReadFile(casesFile)
		if err != nil {
			return fmt.Errorf("reading cases file: %w", err)
		}
		if err := json.Unmarshal(data, &cases); err != nil {
			return fmt.Errorf("parsing cases file: %w", err)
		}
	} else {
		cases = []map[string]any{{
			"input":          input,
			"expectedOutput": expected,
			"isPublic":       true,
		}}
	}

	payload := map[string]any{
		"userId":    userID,
		"code":      string(code),
		"testCases": cases,
		"isGraded":  graded,
	}
	return postJSON("/api/run-"+lang, payload)
}

func runResult(_ *cobra.Command, _ []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return getJSON("/api/get-result?userId=" + userID)
}

func runState(_ *cobra.Command, _ []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return getJSON("/api/user-state?userId=" + userID)
}

func runAudit(_ *cobra.Command, _ []string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return getJSON("/api/audit-events?userId=" + userID)
}

func runHealth(_ *cobra.Command, _ []string) error {
	return getJSON("/health")
}

func postJSON(path string, payload any) error {
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 150 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return printJSON(resp.Body)
}

func getJSON(path string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return printJSON(resp.Body)
}

func printJSON(r io.Reader) error {
	var result any
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
