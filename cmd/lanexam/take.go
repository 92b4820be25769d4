package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/client"
	appI18n "github.com/ianlabicani/lan-exam-web-sub000/internal/i18n"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/mirror"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/session"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/timer"
)

const takeHelp = `Commands:
  show                 list the questions and your answers
  answer N VALUE       answer question N
                         multiple choice: option number
                         true/false:      true or false
                         matching:        one right-hand number per left entry
                         text:            the text itself
  time                 show remaining time and progress
  submit               submit the exam
  help                 show this help
  quit                 save and leave without submitting`

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take an exam from the terminal",
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "Exam server URL")
	f.StringP("username", "u", "", "Username")
	f.String("password", "", "Password (or set LANEXAM_PASSWORD)")
	f.String("exam", "", "Exam ID to take (lists available exams when empty)")
	f.String("mirror", "lanexam-mirror.db", "Local answer mirror database (empty disables)")
	f.StringP("lang", "l", "en", "Language (en, fil)")
	f.Duration("debounce", 600*time.Millisecond, "Delay before typed answers are saved")
	addLogFlags(cmd, "warn")
	return cmd
}

func runTake(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v, os.Stderr)
	out := cmd.OutOrStdout()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))

	c, err := client.New(v.GetString("server"), client.Options{Language: lang})
	if err != nil {
		return err
	}
	user, err := c.Login(ctx, v.GetString("username"), v.GetString("password"))
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) || errors.Is(err, model.ErrInvalid) {
			fmt.Fprintln(out, appI18n.T(ctx, "LoginError"))
		}
		return err
	}
	defer c.Logout(context.Background())

	examID := v.GetString("exam")
	if examID == "" {
		return listExams(ctx, c, out)
	}

	events := make(chan session.Event, 64)
	opts := session.Options{
		Debounce: v.GetDuration("debounce"),
		OnEvent: func(e session.Event) {
			select {
			case events <- e:
			default:
			}
		},
	}
	if path := v.GetString("mirror"); path != "" {
		m, err := mirror.Open(path)
		if err != nil {
			return fmt.Errorf("open local mirror: %w", err)
		}
		defer m.Close()
		opts.Mirror = m
	}

	sess := session.New(c, opts)
	defer sess.Close(context.Background())

	if err := sess.Open(ctx, examID, user.ID); err != nil {
		fmt.Fprintln(out, appI18n.T(ctx, stateNotice(sess.State())))
		if sess.State() == session.StateError {
			return err
		}
		if sess.State() == session.StateBlockedSubmitted {
			printScore(ctx, out, c, sess.Attempt().ID)
		}
		return nil
	}

	t := &terminal{sess: sess, api: c, out: out, lastBand: sess.Band()}
	return t.run(ctx, os.Stdin, events)
}

func listExams(ctx context.Context, c *client.Client, out io.Writer) error {
	exams, err := c.ListExams(ctx)
	if err != nil {
		return err
	}
	for _, e := range exams {
		limit := appI18n.T(ctx, "NoTimeLimit")
		if e.DurationMinutes > 0 {
			limit = fmt.Sprintf("%d min", e.DurationMinutes)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.ID, e.Title, e.Status, limit)
	}
	fmt.Fprintln(out, "\nrun again with --exam ID")
	return nil
}

// stateNotice returns the message ID shown for a session state.
func stateNotice(st session.State) string {
	switch st {
	case session.StateBlockedNotFound:
		return "ExamNotFound"
	case session.StateBlockedInactive:
		return "ExamInactive"
	case session.StateBlockedSubmitted:
		return "AlreadySubmitted"
	case session.StateSubmitted:
		return "Submitted"
	case session.StateError:
		return "SessionError"
	}
	return "AppTitle"
}

// eventNotice returns the message ID shown for an event, or "" for none.
func eventNotice(e session.Event) string {
	switch e.Kind {
	case session.EventExpired:
		return "TimeExpired"
	case session.EventSaveFailed:
		if e.Err == nil || model.IsTransient(e.Err) {
			return "SaveFailed"
		}
		return "SaveRejected"
	case session.EventSubmitFailed:
		if e.Reason == session.ReasonAuto || model.IsTransient(e.Err) {
			return "SubmitFailed"
		}
	case session.EventSubmitted:
		return "Submitted"
	}
	return ""
}

type terminal struct {
	sess     *session.Session
	api      *client.Client
	out      io.Writer
	lastBand timer.Band
}

func (t *terminal) run(ctx context.Context, in io.Reader, events <-chan session.Event) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	exam := t.sess.Exam()
	fmt.Fprintf(t.out, "%s\n\n", exam.Title)
	t.show(ctx)
	t.status(ctx)
	t.prompt()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return nil
		case e := <-events:
			if t.notice(ctx, e) {
				if e.Kind == session.EventSubmitted {
					printScore(ctx, t.out, t.api, t.sess.Attempt().ID)
					return nil
				}
				t.prompt()
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := t.exec(ctx, line, lines)
			if err != nil {
				fmt.Fprintln(t.out, err)
			}
			if done {
				return nil
			}
			t.prompt()
		}
	}
}

func (t *terminal) prompt() { fmt.Fprint(t.out, "> ") }

// notice prints an event and reports whether anything was printed.
func (t *terminal) notice(ctx context.Context, e session.Event) bool {
	if e.Kind == session.EventTick {
		if e.Band == t.lastBand {
			return false
		}
		t.lastBand = e.Band
		fmt.Fprintf(t.out, "\n[%s] %s\n", e.Band, appI18n.Td(ctx, "TimeRemaining", map[string]any{"Time": timer.FormatLong(e.Remaining)}))
		return true
	}
	id := eventNotice(e)
	if id == "" {
		return false
	}
	fmt.Fprintf(t.out, "\n%s\n", appI18n.T(ctx, id))
	return true
}

func (t *terminal) exec(ctx context.Context, line string, lines <-chan string) (done bool, err error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "show", "s":
		t.show(ctx)
	case "time", "t":
		t.status(ctx)
	case "answer", "a":
		return false, t.answer(ctx, rest)
	case "submit":
		return t.submit(ctx, lines)
	case "help", "h", "?":
		fmt.Fprintln(t.out, takeHelp)
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type help", cmd)
	}
	return false, nil
}

func (t *terminal) show(ctx context.Context) {
	for i, it := range t.sess.Exam().Items {
		fmt.Fprintf(t.out, "%d. %s (%d pt)\n", i+1, it.Question, it.Points)
		switch it.Type {
		case model.ItemMCQ:
			for j, o := range it.Options {
				fmt.Fprintf(t.out, "     %d) %s\n", j+1, o.Text)
			}
		case model.ItemTrueFalse:
			fmt.Fprintln(t.out, "     true / false")
		case model.ItemMatching:
			for j, p := range it.Pairs {
				fmt.Fprintf(t.out, "     %c. %-20s %d) %s\n", 'A'+j, p.Left, j+1, p.Right)
			}
		}
		if v, ok := t.sess.Answer(it.ID); ok {
			fmt.Fprintf(t.out, "   = %s\n", answer.Format(it, v))
		} else {
			fmt.Fprintf(t.out, "   - %s\n", appI18n.T(ctx, "NotAnswered"))
		}
	}
}

func (t *terminal) status(ctx context.Context) {
	if rem, ok := t.sess.Remaining(); ok {
		fmt.Fprintln(t.out, appI18n.Td(ctx, "TimeRemaining", map[string]any{"Time": timer.FormatClock(rem)}))
	} else {
		fmt.Fprintln(t.out, appI18n.T(ctx, "NoTimeLimit"))
	}
	fmt.Fprintf(t.out, "%s, %s\n",
		appI18n.Tp(ctx, "ItemsAnswered", t.sess.AnsweredCount()),
		appI18n.Td(ctx, "Progress", map[string]any{"Percent": t.sess.ProgressPercent()}))
	if n := len(t.sess.Unsaved()); n > 0 {
		fmt.Fprintln(t.out, appI18n.Tp(ctx, "UnsavedAnswers", n))
	}
}

func (t *terminal) answer(ctx context.Context, args string) error {
	num, value, _ := strings.Cut(strings.TrimSpace(args), " ")
	items := t.sess.Exam().Items
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > len(items) {
		return fmt.Errorf("question number must be 1-%d", len(items))
	}
	item := items[n-1]
	raw, err := parseAnswer(item, value)
	if err != nil {
		return err
	}
	if err := t.sess.RecordAnswer(ctx, item.ID, raw); err != nil {
		if model.IsTransient(err) {
			return errors.New(appI18n.T(ctx, "SaveFailed"))
		}
		return err
	}
	return nil
}

func (t *terminal) submit(ctx context.Context, lines <-chan string) (bool, error) {
	if left := len(t.sess.Exam().Items) - t.sess.AnsweredCount(); left > 0 {
		fmt.Fprintln(t.out, appI18n.Tp(ctx, "UnansweredWarning", left))
		fmt.Fprint(t.out, appI18n.T(ctx, "ConfirmSubmit")+" ")
		select {
		case <-ctx.Done():
			return true, nil
		case reply := <-lines:
			if r := strings.ToLower(strings.TrimSpace(reply)); r != "y" && r != "yes" && r != "o" && r != "oo" {
				return false, nil
			}
		}
	}
	att, err := t.sess.Submit(ctx, session.ReasonManual)
	if err != nil {
		if model.IsTransient(err) {
			return false, errors.New(appI18n.T(ctx, "SubmitFailed"))
		}
		return false, err
	}
	fmt.Fprintln(t.out, appI18n.T(ctx, "Submitted"))
	printScore(ctx, t.out, t.api, att.ID)
	return true, nil
}

// parseAnswer turns typed input into a raw value for the item's type.
// Numbers typed by the student are 1-based.
func parseAnswer(item model.ExamItem, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch item.Type {
	case model.ItemMCQ:
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > len(item.Options) {
			return nil, fmt.Errorf("choose an option from 1 to %d", len(item.Options))
		}
		return n - 1, nil
	case model.ItemTrueFalse:
		switch strings.ToLower(s) {
		case "t", "true", "y", "yes", "tama":
			return true, nil
		case "f", "false", "n", "no", "mali":
			return false, nil
		}
		return nil, errors.New("answer true or false")
	case model.ItemMatching:
		fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
		if len(fields) != len(item.Pairs) {
			return nil, fmt.Errorf("give %d numbers, one per left entry", len(item.Pairs))
		}
		picks := make([]int, len(fields))
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil || n < 1 || n > len(item.Pairs) {
				return nil, fmt.Errorf("%q is not a choice from 1 to %d", f, len(item.Pairs))
			}
			picks[i] = n - 1
		}
		return picks, nil
	}
	return s, nil
}

func printScore(ctx context.Context, out io.Writer, c *client.Client, attemptID string) {
	if attemptID == "" {
		return
	}
	d, err := c.GetAttempt(ctx, attemptID)
	if err != nil {
		return
	}
	score, graded := d.Score()
	line := fmt.Sprintf("%s: %s / %d", appI18n.T(ctx, "Score"), strconv.FormatFloat(score, 'f', -1, 64), d.TotalPoints)
	if !graded {
		line += " (" + appI18n.T(ctx, "Pending") + ")"
	}
	fmt.Fprintln(out, line)
}
