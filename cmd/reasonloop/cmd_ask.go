package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pocketomega/reasonloop/internal/assistant"
	"github.com/pocketomega/reasonloop/internal/attach"
	"github.com/pocketomega/reasonloop/internal/conversation"
)

var askURL string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question in the terminal, showing the reasoning as it forms",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askURL, "url", "", "Attach the readable text of this page to the question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}

	items := []conversation.Item{conversation.PlainTextItem{Text: strings.Join(args, " ")}}
	if askURL != "" {
		page, err := attach.FetchPage(ctx, askURL)
		if err != nil {
			return err
		}
		items = append(items, page.Item())
	}
	conv := conversation.New(conversation.NewMessage(conversation.RoleUser, items...))

	out := cmd.OutOrStdout()
	reply := a.responder.Respond(ctx, conv)
	if err := render(out, reply); err != nil {
		return err
	}
	st := reply.Stats()
	fmt.Fprintf(out, "\n\n(%d steps accepted, %d rejected, %d forced, %d completeness checks)\n",
		st.Accepted, st.Rejected, st.ForcedAccepts, st.Evaluations)
	return nil
}

// render prints accepted steps as they are settled, the title of the step
// being written, then the answer as it streams.
func render(w io.Writer, reply *assistant.Reply) error {
	r := &terminal{w: w}
	for ev, err := range reply.Events() {
		if err != nil {
			r.endLine()
			return err
		}
		switch ev.Kind {
		case assistant.EventReasoning:
			r.reasoning(ev)
		case assistant.EventAnswer:
			r.answer(ev.Answer)
		}
	}
	_, err := reply.Message()
	return err
}

// terminal keeps track of what has already been written so that each event
// only appends.
type terminal struct {
	w        io.Writer
	printed  int    // accepted steps already shown
	status   string // transient "thinking" line currently displayed
	answered bool
	text     string
}

func (t *terminal) endLine() {
	if t.status != "" {
		fmt.Fprint(t.w, "\r\033[K")
		t.status = ""
	}
}

func (t *terminal) reasoning(ev assistant.Event) {
	if ev.Accepted > t.printed {
		t.endLine()
		for t.printed < ev.Accepted && t.printed < len(ev.Reasoning) {
			it := ev.Reasoning[t.printed]
			t.printed++
			fmt.Fprintf(t.w, "%d. %s\n   %s\n", t.printed, it.TitleText(),
				strings.ReplaceAll(it.ContentText(), "\n", "\n   "))
		}
	}
	if len(ev.Reasoning) > ev.Accepted {
		title := ev.Reasoning[len(ev.Reasoning)-1].TitleText()
		status := fmt.Sprintf("… step %d: %s", len(ev.Reasoning), title)
		if status != t.status {
			fmt.Fprintf(t.w, "\r\033[K%s", status)
			t.status = status
		}
	} else {
		t.endLine()
	}
}

func (t *terminal) answer(text string) {
	t.endLine()
	if !t.answered {
		fmt.Fprint(t.w, "\nAnswer:\n")
		t.answered = true
	}
	if strings.HasPrefix(text, t.text) {
		fmt.Fprint(t.w, text[len(t.text):])
	} else {
		fmt.Fprint(t.w, "\n"+text)
	}
	t.text = text
}
