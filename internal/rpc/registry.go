package rpc

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

var (
	ErrUnknownTool   = errors.New("rpc: unknown tool")
	ErrUnknownPrompt = errors.New("rpc: unknown prompt")
	ErrDuplicate     = errors.New("rpc: duplicate registration")
)

// PromptRenderer fills a prompt template from its arguments.
type PromptRenderer func(args map[string]string) (*mcp.GetPromptResult, error)

type Prompt struct {
	Definition mcp.Prompt
	Render     PromptRenderer
}

// Registry holds the tools and prompts a Dispatcher serves. It is built once
// at startup and read-only afterwards.
type Registry struct {
	tools       map[ToolName]*Tool
	toolOrder   []ToolName
	prompts     map[string]*Prompt
	promptOrder []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[ToolName]*Tool),
		prompts: make(map[string]*Prompt),
	}
}

func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("rpc: tool without a name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: tool %s", ErrDuplicate, name)
	}
	if tool.handle == nil {
		return fmt.Errorf("rpc: tool %s has no handler", name)
	}
	if err := tool.compile(); err != nil {
		return err
	}
	r.tools[name] = &tool
	r.toolOrder = append(r.toolOrder, name)
	return nil
}

func (r *Registry) RegisterPrompt(prompt Prompt) error {
	name := prompt.Definition.Name
	if _, exists := r.prompts[name]; exists {
		return fmt.Errorf("%w: prompt %s", ErrDuplicate, name)
	}
	r.prompts[name] = &prompt
	r.promptOrder = append(r.promptOrder, name)
	return nil
}

// Lookup resolves a wire name to a registered tool.
func (r *Registry) Lookup(name string) (*Tool, error) {
	tool, ok := r.tools[ToolName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

func (r *Registry) Prompt(name string) (*Prompt, error) {
	prompt, ok := r.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
	}
	return prompt, nil
}

// Tools returns descriptors in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name].Definition)
	}
	return out
}

func (r *Registry) ToolNames() []ToolName {
	return append([]ToolName(nil), r.toolOrder...)
}

func (r *Registry) Prompts() []mcp.Prompt {
	out := make([]mcp.Prompt, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name].Definition)
	}
	return out
}
