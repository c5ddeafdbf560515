package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/llm"
	"github.com/yoockh/basketvoice/internal/tools"
	"github.com/yoockh/basketvoice/internal/utils"
)

type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceFallback  Source = "fallback"
)

const (
	MessageRoundsExhausted = "Sorry, I couldn't finish that. Could you try asking in a simpler way?"
	MessageApology         = "Sorry, I'm having trouble right now. Please try again in a moment."
	MessageActionFailed    = "Sorry, I couldn't complete that action."
)

type DispatchResult struct {
	Text          string
	PendingAction *models.PendingAction
	Source        Source
	Rounds        int
	ToolNames     []string
}

// Dispatcher turns one transcript into a spoken answer, running tool calls
// on the way. scope identifies whose data the tools act on.
type Dispatcher interface {
	Process(ctx context.Context, scope, transcript string, screen models.ScreenContext, history []models.ConversationTurn) (*DispatchResult, error)
	ExecutePending(ctx context.Context, scope string, action models.PendingAction) (string, error)
}

type DispatcherOptions struct {
	MaxRounds    int
	RoundTimeout time.Duration
	Now          func() time.Time
}

type dispatcher struct {
	primary   llm.Provider
	secondary llm.Provider
	catalog   *tools.Catalog
	exec      tools.Executor
	opts      DispatcherOptions
	log       *logrus.Logger
}

func NewDispatcher(primary, secondary llm.Provider, catalog *tools.Catalog, exec tools.Executor, opts DispatcherOptions, log *logrus.Logger) Dispatcher {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 3
	}
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = 20 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logrus.New()
	}
	return &dispatcher{
		primary:   primary,
		secondary: secondary,
		catalog:   catalog,
		exec:      exec,
		opts:      opts,
		log:       log,
	}
}

func (d *dispatcher) Process(ctx context.Context, scope, transcript string, screen models.ScreenContext, history []models.ConversationTurn) (*DispatchResult, error) {
	const op = "Dispatcher.Process"

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "transcript is empty", nil)
	}

	res, err := d.runPrimary(ctx, scope, transcript, screen, history)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, utils.E(utils.CodeTimeout, op, "dispatch cancelled", ctx.Err())
	}

	d.log.WithError(err).WithFields(logrus.Fields{
		"provider": d.primary.Name(),
		"scope":    scope,
	}).Warn("primary provider failed, trying secondary")

	return d.runSecondary(ctx, transcript, screen, history, err)
}

func (d *dispatcher) runPrimary(ctx context.Context, scope, transcript string, screen models.ScreenContext, history []models.ConversationTurn) (*DispatchResult, error) {
	ex := d.primary.NewExchange(llm.Request{
		System:  d.systemPrompt(screen, true),
		History: history,
		Prompt:  transcript,
		Tools:   d.catalog.MCPTools(),
	})

	res := &DispatchResult{Source: SourcePrimary}
	for {
		rctx, cancel := context.WithTimeout(ctx, d.opts.RoundTimeout)
		resp, err := ex.Next(rctx)
		cancel()
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return nil, errors.New("empty answer from provider")
			}
			res.Text = text
			return res, nil
		}

		if res.Rounds >= d.opts.MaxRounds {
			d.log.WithFields(logrus.Fields{"scope": scope, "round": res.Rounds}).Warn("tool round budget exhausted")
			res.Text = MessageRoundsExhausted
			return res, nil
		}

		// A held call stops the whole batch; nothing in it runs.
		for _, call := range resp.ToolCalls {
			def, ok := d.catalog.Get(call.Name)
			if ok && def.RequiresConfirmation {
				res.PendingAction = &models.PendingAction{
					ActionName: call.Name,
					Parameters: call.Args,
					Prompt:     def.ConfirmationPrompt(call.Args),
				}
				res.Text = res.PendingAction.Prompt
				return res, nil
			}
		}

		res.Rounds++
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res.ToolNames = append(res.ToolNames, call.Name)
			results = append(results, d.runTool(ctx, scope, call, res.Rounds))
		}
		ex.SubmitToolResults(results)
	}
}

// runTool never fails the turn; errors go back to the model as results.
func (d *dispatcher) runTool(ctx context.Context, scope string, call llm.ToolCall, round int) llm.ToolResult {
	log := d.log.WithFields(logrus.Fields{"tool": call.Name, "round": round, "scope": scope})

	if _, ok := d.catalog.Get(call.Name); !ok {
		log.Warn("model called unknown tool")
		return llm.ToolResult{CallID: call.ID, Name: call.Name, Content: "error: unknown tool " + call.Name, IsError: true}
	}

	out, err := d.exec.Execute(ctx, scope, call.Name, call.Args)
	if err != nil {
		log.WithError(err).Warn("tool execution failed")
		return llm.ToolResult{CallID: call.ID, Name: call.Name, Content: "error: " + err.Error(), IsError: true}
	}
	return llm.ToolResult{CallID: call.ID, Name: call.Name, Content: out.Content}
}

func (d *dispatcher) runSecondary(ctx context.Context, transcript string, screen models.ScreenContext, history []models.ConversationTurn, cause error) (*DispatchResult, error) {
	const op = "Dispatcher.Process"

	if d.secondary != nil {
		ex := d.secondary.NewExchange(llm.Request{
			System:  d.systemPrompt(screen, false),
			History: history,
			Prompt:  transcript,
		})
		rctx, cancel := context.WithTimeout(ctx, d.opts.RoundTimeout)
		resp, err := ex.Next(rctx)
		cancel()

		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return &DispatchResult{Text: strings.TrimSpace(resp.Text), Source: SourceSecondary}, nil
		}
		if err == nil {
			err = errors.New("empty answer from provider")
		}
		d.log.WithError(err).WithField("provider", d.secondary.Name()).Warn("secondary provider failed")
		cause = fmt.Errorf("primary: %v; secondary: %w", cause, err)
	}

	return &DispatchResult{Text: MessageApology, Source: SourceFallback},
		utils.E(utils.CodeProviderFailure, op, "language model unavailable", cause)
}

func (d *dispatcher) ExecutePending(ctx context.Context, scope string, action models.PendingAction) (string, error) {
	const op = "Dispatcher.ExecutePending"

	def, ok := d.catalog.Get(action.ActionName)
	if !ok {
		return MessageActionFailed, utils.E(utils.CodeToolExecution, op, "unknown tool "+action.ActionName, nil)
	}
	if _, err := d.exec.Execute(ctx, scope, action.ActionName, action.Parameters); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"tool": action.ActionName, "scope": scope}).Warn("confirmed action failed")
		return MessageActionFailed, utils.E(utils.CodeToolExecution, op, "confirmed action failed", err)
	}
	return def.DoneMessage(), nil
}

func (d *dispatcher) systemPrompt(screen models.ScreenContext, withTools bool) string {
	var b strings.Builder
	b.WriteString("You are a voice assistant inside a grocery, pantry and budgeting app. ")
	b.WriteString("Answers are spoken aloud: reply in one or two short sentences, no lists or markdown.\n")
	fmt.Fprintf(&b, "Current time: %s.\n", d.opts.Now().Format("Monday, January 2 2006 15:04"))
	b.WriteString(screenLine(screen))
	if withTools {
		b.WriteString("Use the tools to read or change the user's data. ")
		b.WriteString("Never claim a change was made unless a tool call succeeded.\n")
	} else {
		b.WriteString("You cannot read or change the user's data right now; say so if asked to.\n")
	}
	return b.String()
}

func screenLine(s models.ScreenContext) string {
	if s.Screen == "" {
		return ""
	}
	line := "The user is on the " + s.Screen + " screen"
	switch {
	case s.EntityName != "" && s.EntityID != "":
		line += fmt.Sprintf(", viewing %q (id %s)", s.EntityName, s.EntityID)
	case s.EntityName != "":
		line += fmt.Sprintf(", viewing %q", s.EntityName)
	case s.EntityID != "":
		line += ", viewing id " + s.EntityID
	}
	return line + ".\n"
}
