// Package filter evaluates a user-supplied JavaScript predicate against
// update items, so the CLI can narrow a feed without server support.
package filter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// Filter wraps a compiled JS predicate. Evaluation is serialized: the goja
// runtime is not safe for concurrent use.
type Filter struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	fn     goja.Callable
	logger zerolog.Logger
}

// New compiles src, which must evaluate to a function taking one update item
// and returning a truthy value to keep it, e.g. "(u) => u.type === 'task'".
func New(src string, logger zerolog.Logger) (*Filter, error) {
	vm := goja.New()
	f := &Filter{
		vm:     vm,
		logger: logger.With().Str("component", "filter").Logger(),
	}
	f.setupConsole()

	value, err := vm.RunString("(" + src + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("filter must be a function, got %s", value.ExportType())
	}
	f.fn = fn
	return f, nil
}

// Match reports whether the update passes the predicate. Malformed updates
// and evaluation errors fail open, so a broken filter never hides updates.
func (f *Filter) Match(update json.RawMessage) bool {
	var item interface{}
	if err := json.Unmarshal(update, &item); err != nil {
		f.logger.Warn().Err(err).Msg("filter received malformed update")
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	result, err := f.fn(goja.Undefined(), f.vm.ToValue(item))
	if err != nil {
		f.logger.Warn().Err(err).Msg("filter evaluation failed")
		return true
	}
	return result.ToBoolean()
}

// setupConsole creates console.log and console.error bindings
func (f *Filter) setupConsole() {
	console := f.vm.NewObject()

	console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		f.logger.Info().Msgf("[filter] %v", args)
		return goja.Undefined()
	})

	console.Set("error", func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		f.logger.Error().Msgf("[filter] %v", args)
		return goja.Undefined()
	})

	f.vm.Set("console", console)
}
