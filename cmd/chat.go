package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// runChat starts the interactive chat (REPL) mode.
func runChat() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess := a.pipeline.StartSession()

	fmt.Printf("nanom %s. Type your message, /new for a fresh session, /exit to quit.\n", displayVersion())
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("you> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			return nil
		case "/new":
			sess = a.pipeline.StartSession()
			fmt.Println("Started a new session.")
			continue
		}

		parsed, out := a.pipeline.Generate(ctx, sess, line)
		if !out.OK() {
			fmt.Fprintf(os.Stderr, "error: %s\n", out.Err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		fmt.Printf("nanom> %s\n", parsed.DisplayText())
		a.pipeline.PersistTurn(ctx, sess, line, out.Text)
	}
}

// displayVersion returns a formatted version string for the banner,
// e.g. "v0.1.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}
