package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/sysbus"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/k0kubun/pp/v3"
)

// Writer serializes output shared by the prompt and the handlers.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// Printer returns a handler that prints every local delivery of event.
func Printer(out io.Writer, event string) sysbus.Handler {
	return func(_ context.Context, args ...any) error {
		_, err := fmt.Fprintf(out, "%s %s\n", color.MagentaString(event), strings.TrimSpace(pp.Sprint(args)))
		return err
	}
}

// ParseArgs decodes every token as JSON and keeps the tokens that aren't JSON
// as plain strings.
func ParseArgs(tokens []string) []any {
	if len(tokens) == 0 {
		return nil
	}
	args := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		var v any
		if err := json.Unmarshal([]byte(tok), &v); err != nil {
			args = append(args, tok)
			continue
		}
		args = append(args, v)
	}
	return args
}

// Run reads commands until in is exhausted, ctx is done or "exit" is typed.
//
//	<event> [arg...]  emit the event
//	peers             list the peers
//	events            list the events with local subscribers
func Run(ctx context.Context, bus *sysbus.Bus, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)

	for {
		fmt.Fprintf(out, "%s: ", color.CyanString(bus.ID()))
		if !scanner.Scan() {
			fmt.Fprintln(out, "Exiting...")
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "exit":
			return nil
		case "peers":
			for _, peer := range bus.Peers() {
				fmt.Fprintf(out, "%s %s\n", color.YellowString(peer.ID()), peer.Mode())
			}
		case "events":
			fmt.Fprintln(out, strings.Join(bus.EventNames(), " "))
		default:
			fan := bus.Emit(ctx, fields[0], ParseArgs(fields[1:])...)
			go report(ctx, out, fan)
		}
	}
}

func report(ctx context.Context, out io.Writer, fan *sysbus.Fanout) {
	if err := fan.Wait(ctx); err != nil {
		fmt.Fprintf(out, "%s %v\n", color.RedString("push failed:"), err)
	}
}
