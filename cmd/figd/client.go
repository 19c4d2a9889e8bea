package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	figd "github.com/Paranoid-AF/figd"
)

const clientTimeout = 2 * time.Second

// roundTrip sends one request to the daemon and prints the raw JSON
// response line to stdout.
func roundTrip(req *figd.Request) error {
	conn, err := net.DialTimeout("unix", socketPath(), clientTimeout)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", socketPath(), err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(clientTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no response from daemon")
	}
	fmt.Println(scanner.Text())
	return nil
}

func newPredictCmd() *cobra.Command {
	var (
		sessionID string
		cursorPos int
		format    string
		maxCands  int
		cwd       string
	)
	cmd := &cobra.Command{
		Use:   "predict <input>",
		Short: "Request candidates for a command line buffer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			input := args[0]
			if cursorPos < 0 || cursorPos > len(input) {
				cursorPos = len(input)
			}
			return roundTrip(&figd.Request{
				Type:          figd.TypePredict,
				RequestID:     1,
				SessionID:     sessionID,
				ClientPID:     os.Getppid(),
				Input:         input,
				CursorPos:     cursorPos,
				Format:        format,
				MaxCandidates: maxCands,
				Cwd:           cwd,
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "shell session identifier")
	cmd.Flags().IntVar(&cursorPos, "cursor", -1, "cursor position (default end of input)")
	cmd.Flags().StringVar(&format, "format", figd.FormatDropdown, "response format: ghost or dropdown")
	cmd.Flags().IntVar(&maxCands, "max", 0, "maximum candidates to return")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory override")
	return cmd
}

func newRecordCmd() *cobra.Command {
	var (
		sessionID string
		exitCode  int
		cwd       string
		shell     string
	)
	cmd := &cobra.Command{
		Use:   "record-command <command>",
		Short: "Record an executed command for learning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &figd.Request{
				Type:      figd.TypeRecord,
				SessionID: sessionID,
				Command:   args[0],
				Cwd:       cwd,
				Shell:     shell,
			}
			if cmd.Flags().Changed("exit-code") {
				req.ExitCode = &exitCode
			}
			return roundTrip(req)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "shell session identifier")
	cmd.Flags().IntVar(&exitCode, "exit-code", 0, "exit status of the command")
	cmd.Flags().StringVar(&cwd, "cwd", "", "directory the command ran in")
	cmd.Flags().StringVar(&shell, "shell", "", "shell flavour: bash, zsh or fish")
	return cmd
}

func newContextCmd() *cobra.Command {
	var (
		sessionID string
		shell     string
		cwd       string
		term      string
		gitBranch string
	)
	cmd := &cobra.Command{
		Use:   "update-context",
		Short: "Replace a session's context snapshot",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return roundTrip(&figd.Request{
				Type:      figd.TypeContext,
				SessionID: sessionID,
				ClientPID: os.Getppid(),
				Shell:     shell,
				Cwd:       cwd,
				Term:      term,
				GitBranch: gitBranch,
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "shell session identifier")
	cmd.Flags().StringVar(&shell, "shell", "", "shell flavour: bash, zsh or fish")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory")
	cmd.Flags().StringVar(&term, "term", os.Getenv("TERM"), "terminal identifier")
	cmd.Flags().StringVar(&gitBranch, "git-branch", "", "current git branch")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("shell")
	return cmd
}

func newToggleGhostCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "toggle-ghost",
		Short: "Toggle inline ghost text for a session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return roundTrip(&figd.Request{
				Type:      figd.TypeToggleGhost,
				SessionID: sessionID,
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "shell session identifier")
	cmd.MarkFlagRequired("session")
	return cmd
}
