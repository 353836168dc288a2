package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medassist/medassist/internal/config"
	"github.com/medassist/medassist/internal/domain/chat"
	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/sidebar"
	"github.com/medassist/medassist/internal/domain/workflow"
	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/internal/platform/upload"
)

var (
	youLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	botLabel  = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText   = color.New(color.Faint).SprintFunc()
	errorText = color.New(color.FgRed).SprintFunc()
)

// splitCommand separates "/open 2" into "open" and "2". Lines that are not
// commands return an empty name.
func splitCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func printMessages(w io.Writer, msgs []conversation.Message) {
	for _, m := range msgs {
		if m.Sender == conversation.SenderUser {
			if m.Type() == conversation.TypeFile {
				fmt.Fprintf(w, "%s %s\n", youLabel("You:"), dimText(m.Text))
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n\n", botLabel("Assistant:"), m.Text)
	}
}

func printList(w io.Writer, items []conversation.Summary, active string) {
	if len(items) == 0 {
		fmt.Fprintln(w, dimText("No conversations yet."))
		return
	}
	for i, s := range items {
		marker := " "
		if s.ConversationID == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d. %s %s\n", marker, i+1, s.Title, dimText(s.Created().Format("2006-01-02 15:04")))
	}
}

// resolveConversation accepts a 1-based list position or a conversation id.
func resolveConversation(items []conversation.Summary, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(items) {
			return "", fmt.Errorf("no conversation at position %d", n)
		}
		return items[n-1].ConversationID, nil
	}
	if arg == "" {
		return "", errors.New("conversation number or id required")
	}
	return arg, nil
}

func printErr(w io.Writer, err error) {
	fmt.Fprintln(w, errorText("Error: "+backend.Detail(err)))
}

// sidebarCommand handles the commands both REPLs share. It reports whether
// name was one of them.
func sidebarCommand(ctx context.Context, w io.Writer, list *sidebar.Controller, name, arg string) (bool, error) {
	switch name {
	case "new":
		_, err := list.Create(ctx)
		return true, err
	case "list":
		if err := list.Refresh(ctx); err != nil {
			return true, err
		}
		printList(w, list.Items(), list.Active())
		return true, nil
	case "open":
		id, err := resolveConversation(list.Items(), arg)
		if err != nil {
			return true, err
		}
		return true, list.Select(ctx, id)
	case "rename":
		if list.Active() == "" {
			return true, errors.New("no active conversation")
		}
		return true, list.Rename(ctx, list.Active(), arg)
	case "delete":
		id := list.Active()
		if arg != "" {
			var err error
			if id, err = resolveConversation(list.Items(), arg); err != nil {
				return true, err
			}
		}
		if id == "" {
			return true, errors.New("no active conversation")
		}
		return true, list.Delete(ctx, id)
	}
	return false, nil
}

const assistantHelp = `Commands:
  /attach PATH   attach a document (.pdf .docx .doc .txt)
  /reset         start over with a new patient search
  /change        pick another patient, keep the history
  /export        write the analyses to a text file
  /new /list /open N /rename TITLE /delete [N]
  /help /quit`

func assistantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assistant",
		Short: "Interactive document assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			a.docList.Start(ctx)
			return runAssistant(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runAssistant(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, youLabel("Medical Document Assistant"))
	fmt.Fprintln(out, dimText("Type /help for commands."))
	fmt.Fprintln(out)
	printMessages(out, a.machine.State().Messages)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, youLabel("You: "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		name, arg := splitCommand(scanner.Text())
		if name == "quit" || name == "exit" || (name == "" && strings.EqualFold(arg, "exit")) {
			return nil
		}
		if name == "" && arg == "" {
			continue
		}

		var (
			res *workflow.Result
			err error
		)
		switch name {
		case "":
			res, err = a.machine.Handle(ctx, arg)
		case "help":
			fmt.Fprintln(out, assistantHelp)
		case "attach":
			var data []byte
			if data, err = os.ReadFile(arg); err == nil {
				res, err = a.machine.AttachFile(ctx, upload.File{Name: filepath.Base(arg), Data: data})
			}
		case "reset":
			res, err = a.machine.Reset(ctx)
		case "change":
			res, err = a.machine.ChangePatient(ctx)
		case "export":
			err = exportAnalyses(out, a.machine)
		default:
			var handled bool
			handled, err = sidebarCommand(ctx, out, a.docList, name, arg)
			if !handled {
				err = fmt.Errorf("unknown command /%s", name)
			}
			switch name {
			case "new", "open", "delete":
				// The workspace was replaced; show it whole.
				printMessages(out, a.machine.State().Messages)
			}
		}

		if res != nil {
			printMessages(out, res.Appended)
		}
		if err != nil {
			printErr(out, err)
		}
	}
}

func exportAnalyses(out io.Writer, m *workflow.Machine) error {
	name, content, ok := m.Export()
	if !ok {
		return errors.New("no analysis to export")
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(out, "%s %s\n", dimText("Exported to"), name)
	return nil
}

const chatHelp = `Commands:
  /voice [FILE]  speak the last reply to FILE (default reply.mp3)
  /new /list /open N /rename TITLE /delete [N]
  /help /quit`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive medical chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			a.medList.Start(ctx)
			return runChat(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, youLabel("Medical Chat"))
	fmt.Fprintln(out, dimText("Type /help for commands."))
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, youLabel("You: "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		name, arg := splitCommand(scanner.Text())
		if name == "quit" || name == "exit" || (name == "" && strings.EqualFold(arg, "exit")) {
			return nil
		}
		if name == "" && arg == "" {
			continue
		}

		var err error
		switch name {
		case "":
			var reply *chat.Reply
			reply, err = a.chat.Send(ctx, arg)
			if reply != nil {
				printMessages(out, reply.Appended)
			}
		case "help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "voice":
			path := arg
			if path == "" {
				path = "reply.mp3"
			}
			var audio []byte
			if audio, err = a.chat.Voice(ctx, ""); err == nil {
				if err = os.WriteFile(path, audio, 0o644); err == nil {
					fmt.Fprintf(out, "%s %s\n", dimText("Saved audio to"), path)
				}
			}
		default:
			var handled bool
			handled, err = sidebarCommand(ctx, out, a.medList, name, arg)
			if !handled {
				err = fmt.Errorf("unknown command /%s", name)
			}
			if handled && name == "open" && err == nil {
				printMessages(out, a.chat.Messages())
			}
		}
		if err != nil {
			printErr(out, err)
		}
	}
}

// loadApp builds the components for a one-shot or interactive command.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg, newCLILogger(cfg))
}

// newCLILogger keeps tolerated failures off the conversation: warnings and
// above go to stderr unless LOG_LEVEL asks for more.
func newCLILogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "info" {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
}
