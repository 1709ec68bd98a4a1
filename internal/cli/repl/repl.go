package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"codearena/internal/cli/command"
	"codearena/internal/cli/config"
	"codearena/internal/common/httpclient"
	"codearena/internal/platform/credential"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/gorilla/websocket"
)

const (
	prompt             = "codearena> "
	defaultWatchWindow = 2 * time.Minute
)

var errExit = errors.New("exit")

// Session holds REPL state.
type Session struct {
	client        *httpclient.Client
	commands      map[string]command.Command
	statePath     string
	tokenOverride string
	prettyJSON    bool
	watchWindow   time.Duration
	out           io.Writer
	ask           func(prompt string) (string, error)
}

// New creates a session. A non-empty tokenOverride wins over the token state file.
func New(cfg config.Config, commands map[string]command.Command, tokenOverride string) *Session {
	s := &Session{
		commands:      commands,
		statePath:     cfg.TokenStatePath,
		tokenOverride: tokenOverride,
		prettyJSON:    cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		watchWindow:   defaultWatchWindow,
		out:           os.Stdout,
	}
	s.client = httpclient.New(cfg.BaseURL, cfg.Timeout, credential.ProviderFunc(s.applyToken))
	return s
}

// Run reads commands until exit or EOF.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.out = rl.Stdout()
	s.ask = func(p string) (string, error) {
		rl.SetPrompt(p + ": ")
		defer rl.SetPrompt(prompt)
		line, err := rl.Readline()
		return strings.TrimSpace(line), err
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.Handle(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

// Handle executes one input line.
func (s *Session) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if handled, err := s.handleSystemCommand(line); handled {
		return err
	}
	return s.handleCommand(ctx, line)
}

func (s *Session) applyToken(ctx context.Context, header http.Header) error {
	if s.tokenOverride != "" {
		header.Set("Authorization", "Bearer "+s.tokenOverride)
		return nil
	}
	return credential.StateFile(s.statePath).Apply(ctx, header)
}

func (s *Session) handleSystemCommand(line string) (bool, error) {
	switch line {
	case "exit", "quit":
		return true, errExit
	case "help":
		s.printHelp()
		return true, nil
	case "logout":
		s.tokenOverride = ""
		if err := credential.ClearState(s.statePath); err != nil {
			return true, err
		}
		s.printLine("token cleared")
		return true, nil
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true, nil
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, nil
	}
	return false, nil
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token> [team_id]")
			return
		}
		st := credential.TokenState{AccessToken: parts[1]}
		if len(parts) > 2 {
			st.TeamID = parts[2]
		}
		if err := credential.SaveState(s.statePath, st); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.tokenOverride = ""
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		token := s.tokenOverride
		if token == "" {
			st, err := credential.LoadState(s.statePath)
			if err != nil {
				s.printLine("load token failed: %v", err)
				return
			}
			token = st.AccessToken
			if st.Expired(time.Now()) {
				s.printLine("token expired at %s", st.ExpiresAt.Format(time.RFC3339))
			}
		}
		if token == "" {
			s.printLine("token: <empty>")
			return
		}
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	default:
		s.printLine("usage: show token|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseArgs(tokens[2:])
	if err != nil {
		return err
	}

	command.ApplyShortcuts(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	if cmd.Stream {
		return s.watch(ctx, req.Path)
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		if s.ask == nil {
			return fmt.Errorf("missing required param: %s", field.Name)
		}
		value, err := s.ask(field.Prompt)
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, value)
	}
	return nil
}

type watchFrame struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// watch prints observations until the attempt settles or the watch window closes.
func (s *Session) watch(ctx context.Context, path string) error {
	wsURL := "ws" + strings.TrimPrefix(s.client.BaseURL(), "http") + path
	header := http.Header{}
	if err := s.applyToken(ctx, header); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.watchWindow)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			s.renderResponse(httpclient.ResponseInfo{StatusCode: resp.StatusCode, Body: body})
		}
		return fmt.Errorf("watch failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var first *watchFrame
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("watch interrupted: %w", err)
		}
		s.renderJSON(data)

		var frame watchFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if first == nil {
			first = &frame
			if frame.Status == "completed" || frame.Status == "error" {
				return nil
			}
			continue
		}
		if frame.Version > first.Version && frame.Status != "testing" && frame.Status != "submitting" {
			return nil
		}
	}
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	s.renderJSON(resp.Body)
}

func (s *Session) renderJSON(data []byte) {
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(data, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(data))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | logout | set base|timeout|token | show token|config")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %s", key)
	}
	s.printLine("examples:")
	s.printLine("  attempt create challenge_id=two-sum")
	s.printLine("  attempt test id=<attempt_id> language=python source_file=./main.py")
	s.printLine("  attempt watch id=<attempt_id>")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
