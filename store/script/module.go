// Package script backs a custom data source with a JavaScript module run on
// an embedded engine. The module exports load and, optionally, insert,
// update, remove, and byKey; operations without an export report themselves
// as not implemented.
package script

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Module is a compiled script plus the name diagnostics refer to it by.
type Module struct {
	name    string
	program *goja.Program
}

// Compile parses source in strict mode and proves it evaluates to a module
// with a callable load export, CommonJS style.
func Compile(name, source string) (*Module, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = "store.js"
	}
	prog, err := goja.Compile(trimmed, source, true)
	if err != nil {
		return nil, fmt.Errorf("script store: compile %s: %w", trimmed, err)
	}
	exports, err := runModule(goja.New(), prog)
	if err != nil {
		return nil, fmt.Errorf("script store: execute %s: %w", trimmed, err)
	}
	value := exports.Get("load")
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, fmt.Errorf("script store: %s: load export required", trimmed)
	}
	if _, ok := goja.AssertFunction(value); !ok {
		return nil, fmt.Errorf("script store: %s: load export not callable", trimmed)
	}
	return &Module{name: trimmed, program: prog}, nil
}

// Name returns the name the module was compiled under.
func (m *Module) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

func runModule(rt *goja.Runtime, program *goja.Program) (*goja.Object, error) {
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("module", module); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("console", buildConsole(rt)); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}

	if _, err := rt.RunProgram(program); err != nil {
		return nil, fmt.Errorf("module run: %w", err)
	}

	object := module.Get("exports").ToObject(rt)
	if object == nil {
		return nil, fmt.Errorf("module exports must be an object")
	}
	return object, nil
}

func buildConsole(rt *goja.Runtime) *goja.Object {
	console := rt.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = console.Set("log", noop)
	_ = console.Set("error", noop)
	_ = console.Set("warn", noop)
	_ = console.Set("info", noop)
	return console
}
