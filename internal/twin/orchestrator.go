package twin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/memory"
	"github.com/memvra/dtwin/internal/prompt"
)

// DefaultExcerptTokens caps the last upload's text in the system prompt.
const DefaultExcerptTokens = 2000

// ModelUnavailable is reported as the model of a failed turn.
const ModelUnavailable = "Unavailable"

// State is the orchestrator's position within a turn.
type State int

const (
	StateIdle State = iota
	StateRetrieving
	StateComposing
	StateAwaitingReply
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateRetrieving:
		return "retrieving"
	case StateComposing:
		return "composing"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePersisting:
		return "persisting"
	}
	return "idle"
}

// Observer is told about every state transition.
type Observer func(State)

// Retriever returns the joined context for a query in one namespace.
type Retriever interface {
	Retrieve(ctx context.Context, query, namespace string) (string, error)
}

// ChatClient produces the assistant reply.
type ChatClient interface {
	Reply(ctx context.Context, messages []adapter.Message, modelHint string) (reply, modelUsed string, err error)
}

// MemoryWriter stores a reply in the memory namespace.
type MemoryWriter interface {
	WriteBack(ctx context.Context, reply string) (memory.Record, error)
}

// Truncator caps text at a token budget.
type Truncator interface {
	Truncate(s string, maxTokens int) string
}

// TurnResult describes how a turn went.
type TurnResult struct {
	Reply         string
	Model         string
	Command       Command
	Failed        bool
	MemoryWritten bool
	Warnings      []error
}

// Config wires an Orchestrator. Writer and Tokenizer are optional.
type Config struct {
	Retriever     Retriever
	Chat          ChatClient
	Writer        MemoryWriter
	Tokenizer     Truncator
	Persona       prompt.Persona
	ExcerptTokens int
	WriteBack     bool
	Observer      Observer
}

// Orchestrator runs chat turns. It holds no session state and is safe to
// share; callers serialise turns of the same session.
type Orchestrator struct {
	retriever     Retriever
	chat          ChatClient
	writer        MemoryWriter
	tokenizer     Truncator
	persona       prompt.Persona
	excerptTokens int
	writeBack     bool
	observer      Observer
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	excerpt := cfg.ExcerptTokens
	if excerpt <= 0 {
		excerpt = DefaultExcerptTokens
	}
	persona := cfg.Persona
	if persona.Template == "" {
		persona = prompt.DefaultPersona()
	}
	return &Orchestrator{
		retriever:     cfg.Retriever,
		chat:          cfg.Chat,
		writer:        cfg.Writer,
		tokenizer:     cfg.Tokenizer,
		persona:       persona,
		excerptTokens: excerpt,
		writeBack:     cfg.WriteBack,
		observer:      cfg.Observer,
	}
}

// HandleTurn runs one user input through the conversation and returns the
// new state. It never returns an error: failures end up in the result as a
// synthesized reply or a warning.
func (o *Orchestrator) HandleTurn(ctx context.Context, state SessionState, input string) (SessionState, TurnResult) {
	defer o.enter(StateIdle)

	var res TurnResult
	st := state.clone()

	res.Command = ParseCommand(input)
	st.KrytenMode = res.Command.apply(st.KrytenMode)
	st = st.append(adapter.RoleUser, input)

	o.enter(StateRetrieving)
	knowledge, mem, warnings := o.retrieve(ctx, input)
	res.Warnings = append(res.Warnings, warnings...)

	o.enter(StateComposing)
	messages := make([]adapter.Message, 0, len(st.Messages)+1)
	messages = append(messages, adapter.Message{Role: adapter.RoleSystem, Content: o.systemPrompt(st, knowledge, mem)})
	messages = append(messages, st.Messages...)

	o.enter(StateAwaitingReply)
	reply, model, err := o.chat.Reply(ctx, messages, st.Model)
	if err != nil {
		res.Failed = true
		res.Model = ModelUnavailable
		res.Reply = fmt.Sprintf("⚠️ Chat error: %v", chatCause(err))
		st = st.append(adapter.RoleAssistant, res.Reply)
		return st, res
	}
	res.Reply = reply
	res.Model = model
	st = st.append(adapter.RoleAssistant, reply)

	if !o.writeBack || o.writer == nil {
		return st, res
	}
	o.enter(StatePersisting)
	if _, err := o.writer.WriteBack(ctx, reply); err != nil {
		var perr *memory.PersistenceError
		if !errors.As(err, &perr) {
			err = &memory.PersistenceError{Namespace: memory.NamespaceMemory, Err: err}
		}
		res.Warnings = append(res.Warnings, err)
	} else {
		res.MemoryWritten = true
	}
	return st, res
}

// retrieve queries both namespaces concurrently. A failed namespace yields
// an empty section and a warning.
func (o *Orchestrator) retrieve(ctx context.Context, query string) (knowledge, mem string, warnings []error) {
	if o.retriever == nil {
		return "", "", nil
	}
	namespaces := [2]string{memory.NamespaceKnowledge, memory.NamespaceMemory}
	var (
		texts [2]string
		errs  [2]error
		wg    sync.WaitGroup
	)
	for i, ns := range namespaces {
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts[i], errs[i] = o.retriever.Retrieve(ctx, query, ns)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		texts[i] = ""
		var rerr *memory.RetrievalError
		if !errors.As(err, &rerr) {
			err = &memory.RetrievalError{Namespace: namespaces[i], Err: err}
		}
		warnings = append(warnings, err)
	}
	return texts[0], texts[1], warnings
}

func (o *Orchestrator) systemPrompt(st SessionState, knowledge, mem string) string {
	var excerpt string
	if st.LastUploaded != nil {
		excerpt = st.LastUploaded.Text
		if o.tokenizer != nil {
			excerpt = o.tokenizer.Truncate(excerpt, o.excerptTokens)
		}
	}
	return prompt.Build(o.persona, prompt.Sections{
		Summaries:   st.RecentSummaries,
		FileExcerpt: excerpt,
		Knowledge:   knowledge,
		Memory:      mem,
		FormalMode:  st.KrytenMode,
	})
}

func (o *Orchestrator) enter(s State) {
	if o.observer != nil {
		o.observer(s)
	}
}

// chatCause strips the client wrapper so the user sees the provider message.
func chatCause(err error) error {
	if u := errors.Unwrap(err); u != nil {
		return u
	}
	return err
}
