// Command take runs an assessment in the terminal against the platform
// backend, using the same session runtime as the gateway.
//
//	take <assessment_id>
//
// The bearer token is read from QUIZRUNNER_TOKEN or prompted for.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/quizrunner/internal/apiclient"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/logger"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// Stdout belongs to the quiz; logs go to stderr.
	log := logger.New(os.Stderr, getLevel(cfg.LogLevel), "pretty")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: take <assessment_id>")
		os.Exit(2)
	}
	assessmentID := model.ID(os.Args[1])

	token, err := readToken()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read token")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(cfg.BackendURL, apiclient.WithTimeout(cfg.BackendTimeout)).WithToken(token)

	events := make(chan quiz.Event, 64)
	outcomes := make(chan quiz.Event, 4)
	sess, err := quiz.Open(ctx, client, assessmentID,
		quiz.WithObserver(forward(ctx, events, outcomes)),
		quiz.WithTickInterval(cfg.TickInterval),
		quiz.WithLogger(log),
	)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			log.Fatal().Msg("Token rejected by the platform")
		}
		log.Fatal().Err(err).Msg("Failed to load assessment")
	}
	defer sess.Close()

	r := &runner{sess: sess, client: client, out: os.Stdout}
	r.printHeader()
	r.printQuestion()

	lines := make(chan string)
	go scanLines(lines)

	for {
		// Outcomes first, so a queued submit result is never starved by input.
		select {
		case e := <-outcomes:
			if done := r.handleEvent(ctx, e); done {
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\nInterrupted, attempt not submitted.")
			return

		case e := <-outcomes:
			if done := r.handleEvent(ctx, e); done {
				return
			}

		case e := <-events:
			if done := r.handleEvent(ctx, e); done {
				return
			}

		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := r.handleCommand(ctx, line); done {
				return
			}
		}
	}
}

// forward routes session events to the main loop. Ticks and other chatter
// are dropped when the loop falls behind; expiry and submit outcomes are
// always delivered unless the run is being torn down.
func forward(ctx context.Context, events, outcomes chan<- quiz.Event) quiz.Observer {
	return func(e quiz.Event) {
		switch e.Type {
		case quiz.EventExpired, quiz.EventSubmitted, quiz.EventSubmitFailed:
			select {
			case outcomes <- e:
			case <-ctx.Done():
			}
		default:
			select {
			case events <- e:
			default:
			}
		}
	}
}

type runner struct {
	sess   *quiz.Session
	client *apiclient.Client
	out    *os.File
}

func (r *runner) printHeader() {
	a := r.sess.Assessment()
	fmt.Fprintf(r.out, "=== %s ===\n", a.Title)
	if a.Subject != "" {
		fmt.Fprintf(r.out, "Subject: %s  Difficulty: %s\n", a.Subject, a.Difficulty)
	}
	fmt.Fprintf(r.out, "%d questions, %d minutes, passing score %.0f\n", len(a.Questions), a.DurationMinutes, a.PassingScore)
	fmt.Fprintln(r.out, "Commands: a-d answer, n next, p previous, g <n> go to, s submit, q quit")
}

func (r *runner) printQuestion() {
	st := r.sess.State()
	q := r.sess.Assessment().Questions[st.Cursor]
	fmt.Fprintf(r.out, "\n[%s] Question %d/%d (%d answered)\n", clock(st.RemainingSeconds), st.Cursor+1, st.QuestionCount, st.AnsweredCount)
	fmt.Fprintln(r.out, q.QuestionText)
	for _, c := range []model.Choice{model.ChoiceA, model.ChoiceB, model.ChoiceC, model.ChoiceD} {
		mark := " "
		if st.Answers[q.ID] == c {
			mark = "*"
		}
		fmt.Fprintf(r.out, " %s %s) %s\n", mark, c, q.Option(c))
	}
	if st.IsLastQuestion {
		fmt.Fprintln(r.out, "This is the last question. Type s to finish.")
	}
}

// handleEvent reports whether the run is over.
func (r *runner) handleEvent(ctx context.Context, e quiz.Event) bool {
	switch e.Type {
	case quiz.EventTick:
		if e.RemainingSeconds == 60 || (e.RemainingSeconds <= 10 && e.RemainingSeconds > 0) {
			fmt.Fprintf(r.out, "  %s remaining\n", clock(e.RemainingSeconds))
		}
	case quiz.EventExpired:
		fmt.Fprintln(r.out, "\nTime is up. Submitting your answers...")
	case quiz.EventSubmitFailed:
		fmt.Fprintf(r.out, "Submission failed: %s\nType s to retry.\n", e.Error)
	case quiz.EventSubmitted:
		r.printResult(ctx, e.Result)
		return true
	}
	return false
}

// handleCommand reports whether the run is over.
func (r *runner) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		r.printQuestion()
		return false
	}

	switch cmd := fields[0]; cmd {
	case "a", "b", "c", "d":
		st := r.sess.State()
		q := r.sess.Assessment().Questions[st.Cursor]
		if err := r.sess.Record(q.ID, model.Choice(strings.ToUpper(cmd))); err != nil {
			fmt.Fprintln(r.out, "Cannot answer:", err)
			return false
		}
		if !st.IsLastQuestion {
			r.sess.Next()
		}
		r.printQuestion()
	case "n":
		r.sess.Next()
		r.printQuestion()
	case "p":
		r.sess.Previous()
		r.printQuestion()
	case "g":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "Usage: g <question number>")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintln(r.out, "Not a number:", fields[1])
			return false
		}
		r.sess.GoTo(n - 1)
		r.printQuestion()
	case "s":
		return r.submit(ctx)
	case "q":
		fmt.Fprintln(r.out, "Leaving without submitting.")
		return true
	default:
		fmt.Fprintln(r.out, "Unknown command:", cmd)
	}
	return false
}

func (r *runner) submit(ctx context.Context) bool {
	st := r.sess.State()
	if unanswered := st.QuestionCount - st.AnsweredCount; unanswered > 0 && st.Phase == model.SessionPhaseRunning {
		fmt.Fprintf(r.out, "%d question(s) unanswered.\n", unanswered)
	}

	sub, err := r.sess.Submit(ctx)
	switch {
	case err == nil:
		// The submitted event prints the result.
		return false
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		if sub != nil {
			r.printResult(ctx, sub.Result)
			return true
		}
		fmt.Fprintln(r.out, "Submission already in progress.")
	case errors.Is(err, quiz.ErrSubmissionFailure):
		// Reported by the submit_failed event.
	default:
		fmt.Fprintln(r.out, "Cannot submit:", err)
	}
	return false
}

func (r *runner) printResult(ctx context.Context, res *model.AttemptSummary) {
	if res == nil {
		fmt.Fprintln(r.out, "\nSubmitted.")
		return
	}
	verdict := "NOT PASSED"
	if res.Passed {
		verdict = "PASSED"
	}
	fmt.Fprintf(r.out, "\n=== Result: %s ===\n", verdict)
	fmt.Fprintf(r.out, "Score %.0f, %d correct, %d wrong, time spent %s\n",
		res.Score, res.CorrectAnswers, res.WrongAnswers, clock(res.TimeSpent))

	if res.ID == "" {
		return
	}
	detailCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	detail, err := r.client.GetAttempt(detailCtx, res.ID)
	if err != nil {
		fmt.Fprintln(r.out, "Review unavailable:", err)
		return
	}
	for i, ans := range detail.Answers {
		mark := "x"
		if ans.IsCorrect {
			mark = "v"
		}
		selected := string(ans.SelectedAnswer)
		if selected == "" {
			selected = "-"
		}
		fmt.Fprintf(r.out, "%3d [%s] yours %s, correct %s\n", i+1, mark, selected, ans.CorrectAnswer)
		if ans.Explanation != "" && !ans.IsCorrect {
			fmt.Fprintf(r.out, "      %s\n", ans.Explanation)
		}
	}
}

func scanLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func readToken() (string, error) {
	if t := strings.TrimSpace(os.Getenv("QUIZRUNNER_TOKEN")); t != "" {
		return t, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", errors.New("QUIZRUNNER_TOKEN is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Bearer token: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("token is required")
	}
	return token, nil
}

// getLevel keeps session chatter out of the quiz unless asked for.
func getLevel(level string) string {
	if level == "info" {
		return "warn"
	}
	return level
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
