package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rand/pips/internal/pips"
)

var solveCmd = &cobra.Command{
	Use:   "solve [problem...]",
	Short: "Solve a problem from the command line",
	Long: `Solve a natural-language problem. The solver first decides whether the
problem is better served by step-by-step reasoning or by iteratively
generated and executed Python code, then runs the chosen strategy.

The problem can be provided as arguments or piped from stdin.`,
	Example: `
# Exact arithmetic favors the code path
pips solve "What is the sum of the first 10 prime numbers?"

# Attach an image
pips solve --image diagram.jpg "How many triangles are in this figure?"

# Review each iteration before the solver continues
pips solve --interactive "Schedule these 12 tasks without conflicts"

# Pipe a problem in
cat problem.txt | pips solve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interactive, _ := cmd.Flags().GetBool("interactive")
		stream, _ := cmd.Flags().GetBool("stream")
		rules, _ := cmd.Flags().GetString("rules")
		imagePath, _ := cmd.Flags().GetString("image")
		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		showEvents, _ := cmd.Flags().GetBool("events")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		problem := strings.Join(args, " ")
		problem, err = maybePrependStdin(problem)
		if err != nil {
			return err
		}
		if strings.TrimSpace(problem) == "" {
			return fmt.Errorf("no problem provided")
		}

		input := pips.RawInput{Text: problem}
		if imagePath != "" {
			img, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			input.Image = img
			input.ImageMIME = mimeForPath(imagePath)
		}

		opts := app.Options
		opts.Interactive = interactive
		opts.CustomRules = rules
		if maxIter > 0 {
			opts.MaxIterations = maxIter
		}
		if stream {
			opts.Stream = true
			opts.TokenSink = func(role string, iteration int, tok string) {
				fmt.Fprint(os.Stderr, tok)
			}
		}

		sess, err := app.Service.StartSolve(ctx, input, opts)
		if err != nil {
			return err
		}

		if interactive {
			go promptForFeedback(ctx, app.Service, sess)
		}

		res := waitForResult(ctx, sess)
		if res == nil {
			return fmt.Errorf("interrupted before a result was produced")
		}

		if stream {
			fmt.Fprintln(os.Stderr)
		}
		fmt.Println(res.Answer)

		if res.Status != pips.StatusCompleted {
			fmt.Fprintf(os.Stderr, "status: %s", res.Status)
			if res.Err != "" {
				fmt.Fprintf(os.Stderr, " (%s)", res.Err)
			}
			fmt.Fprintln(os.Stderr)
		} else if !res.Confirmed {
			fmt.Fprintln(os.Stderr, "note: answer was not confirmed within the iteration budget")
		}

		if showEvents {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(res.Events)
		}
		return nil
	},
}

func init() {
	solveCmd.Flags().BoolP("interactive", "i", false, "Pause after each critique for review")
	solveCmd.Flags().Bool("stream", false, "Stream model tokens to stderr")
	solveCmd.Flags().String("rules", "", "Extra rules appended to generation and critique prompts")
	solveCmd.Flags().String("image", "", "Path to an image attached to the problem")
	solveCmd.Flags().Int("max-iterations", 0, "Override the iteration budget")
	solveCmd.Flags().Bool("events", false, "Dump the telemetry event log to stderr")
	rootCmd.AddCommand(solveCmd)
}

// waitForResult polls the session until it finishes or the context is
// cancelled; cancellation requests an interrupt and waits for the loop
// to reach its next checkpoint.
func waitForResult(ctx context.Context, sess *pips.Session) *pips.Result {
	interruptSent := false
	for {
		if res := sess.Result(); res != nil {
			return res
		}
		select {
		case <-ctx.Done():
			if !interruptSent {
				_ = sess.RequestInterrupt()
				interruptSent = true
			}
		case <-time.After(50 * time.Millisecond):
		}
		if interruptSent {
			// Give the loop a bounded window to unwind after interrupt.
			deadline := time.Now().Add(30 * time.Second)
			for time.Now().Before(deadline) {
				if res := sess.Result(); res != nil {
					return res
				}
				time.Sleep(50 * time.Millisecond)
			}
			return sess.Result()
		}
	}
}

// promptForFeedback drives the interactive checkpoints on the terminal.
func promptForFeedback(ctx context.Context, svc *pips.Service, sess *pips.Session) {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
		if sess.Status().Terminal() {
			return
		}

		req := sess.PendingFeedback()
		if req == nil {
			continue
		}

		fmt.Fprintf(os.Stderr, "\n--- iteration %d awaiting review ---\n", req.Iteration)
		fmt.Fprintf(os.Stderr, "critic:\n%s\n\n", req.CriticText)
		fmt.Fprint(os.Stderr, "[a]ccept critique, [r]eject critique, [c]omment, [t]erminate: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			_ = svc.SubmitFeedback(sess.ID, pips.FeedbackResponse{AcceptCritic: true})
			return
		}

		resp := pips.FeedbackResponse{AcceptCritic: true}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "t":
			resp = pips.FeedbackResponse{Terminate: true}
		case "r":
			resp.AcceptCritic = false
		case "c":
			fmt.Fprint(os.Stderr, "comment: ")
			comment, _ := reader.ReadString('\n')
			if comment = strings.TrimSpace(comment); comment != "" {
				resp.Excerpts = []pips.Excerpt{{Comment: comment}}
			}
		}

		if err := svc.SubmitFeedback(sess.ID, resp); err != nil {
			fmt.Fprintf(os.Stderr, "feedback rejected: %v\n", err)
		}
	}
}

// maybePrependStdin prepends piped stdin to the task text.
func maybePrependStdin(task string) (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return task, nil
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return task, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	piped := strings.TrimSpace(string(data))
	if piped == "" {
		return task, nil
	}
	if task == "" {
		return piped, nil
	}
	return piped + "\n\n" + task, nil
}

func mimeForPath(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(path), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
