package xdbg

import (
	"context"
	"slices"
	"sync"
)

// Command 调试命令。
type Command interface {
	Name() string
	Help() string
	// Execute args 不含命令名
	Execute(ctx context.Context, args []string) (string, error)
}

// CommandFunc 函数式命令。
type CommandFunc struct {
	name, help string
	fn         func(ctx context.Context, args []string) (string, error)
}

// NewCommand 用函数创建命令。
func NewCommand(name, help string, fn func(ctx context.Context, args []string) (string, error)) *CommandFunc {
	return &CommandFunc{name: name, help: help, fn: fn}
}

func (c *CommandFunc) Name() string { return c.name }

func (c *CommandFunc) Help() string { return c.help }

func (c *CommandFunc) Execute(ctx context.Context, args []string) (string, error) {
	return c.fn(ctx, args)
}

// help 不受白名单限制
const alwaysAllowed = "help"

// registry 命令表与白名单。
type registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	whitelist map[string]struct{} // nil 表示全部允许
}

func newRegistry(whitelist []string) *registry {
	r := &registry{commands: make(map[string]Command)}
	if whitelist != nil {
		r.whitelist = make(map[string]struct{}, len(whitelist))
		for _, name := range whitelist {
			r.whitelist[name] = struct{}{}
		}
	}
	return r
}

// register 同名命令被覆盖
func (r *registry) register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name()] = cmd
}

func (r *registry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, name)
}

func (r *registry) get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

func (r *registry) allowed(name string) bool {
	if name == alwaysAllowed {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.whitelist == nil {
		return true
	}
	_, ok := r.whitelist[name]
	return ok
}

// list 按名称排序，仅含允许执行的命令
func (r *registry) list() []Command {
	r.mu.RLock()
	cmds := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		cmds = append(cmds, c)
	}
	r.mu.RUnlock()

	cmds = slices.DeleteFunc(cmds, func(c Command) bool { return !r.allowed(c.Name()) })
	slices.SortFunc(cmds, func(a, b Command) int {
		switch {
		case a.Name() < b.Name():
			return -1
		case a.Name() > b.Name():
			return 1
		}
		return 0
	})
	return cmds
}
