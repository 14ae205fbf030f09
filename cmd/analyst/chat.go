package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iyulab/siem-analyst/internal/browser"
	"github.com/iyulab/siem-analyst/internal/detection"
	"github.com/iyulab/siem-analyst/internal/nlp"
	"github.com/iyulab/siem-analyst/internal/pipeline"
	"github.com/iyulab/siem-analyst/internal/session"
	"github.com/iyulab/siem-analyst/internal/transcript"
)

func newChatCmd() *cobra.Command {
	var (
		sessionID      string
		transcriptPath string
		openTranscript bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation (/history, /clear, /quit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if openTranscript && transcriptPath == "" {
				return fmt.Errorf("--open requires --transcript")
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			ctx := cmd.Context()
			assessment, err := repl(ctx, a, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if transcriptPath == "" {
				return nil
			}
			if err := writeTranscript(ctx, a, sessionID, assessment, transcriptPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[*] Transcript: %s\n", transcriptPath)
			if openTranscript {
				return browser.Open(transcriptPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume a session id")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "write an HTML transcript on exit")
	cmd.Flags().BoolVar(&openTranscript, "open", false, "open the transcript in the browser")
	return cmd
}

// repl reads one question per line until EOF or /quit. It returns the
// assessment of the last analyzed turn, if any.
func repl(ctx context.Context, a *app, sessionID string, in io.Reader, out io.Writer) (*detection.Assessment, error) {
	var last *detection.Assessment
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "Session %s. Type /quit to exit.\n", sessionID)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return last, nil
		case line == "/clear":
			if err := a.svc.ClearSession(ctx, sessionID); err != nil {
				return last, err
			}
			last = nil
			fmt.Fprintln(out, "Session cleared.")
			continue
		case line == "/history":
			msgs, err := a.svc.History(ctx, sessionID, session.DefaultHistoryLimit)
			if err != nil {
				return last, err
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "%s [%s] %s\n", m.Timestamp.Local().Format("15:04:05"), m.Type, firstLine(m.Content))
			}
			continue
		}

		p, err := a.handle(ctx, pipeline.Request{SessionID: sessionID, Text: line})
		switch {
		case errors.Is(err, nlp.ErrInvalidInput):
			fmt.Fprintf(out, "Cannot process that question: %v\n", err)
			continue
		case errors.Is(err, pipeline.ErrSearchFailed):
			fmt.Fprintf(out, "%v\n", err)
			continue
		case err != nil:
			return last, err
		}
		if p.Analysis != nil {
			assessment := p.Analysis.Assessment
			last = &assessment
		}
		printPayload(out, p, false)
	}
	return last, scanner.Err()
}

func writeTranscript(ctx context.Context, a *app, sessionID string, assessment *detection.Assessment, path string) error {
	msgs, err := a.svc.Sessions.GetHistory(ctx, sessionID, 0)
	if err != nil {
		return err
	}
	r, err := transcript.New()
	if err != nil {
		return err
	}
	return r.WriteFile(transcript.Data{
		SessionID:   sessionID,
		GeneratedAt: time.Now(),
		Messages:    msgs,
		Assessment:  assessment,
	}, path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
