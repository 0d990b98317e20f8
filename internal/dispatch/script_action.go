package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
)

// runScript compiles code as an async function of (page, log) and awaits
// it, the adaptation of the static engine's inline-script execution: there
// goja ran scripts passively to mine page globals; here it runs one script
// actively, with "page" bound to the live browser driver so the workflow
// author can script arbitrary driver calls.
func runScript(ctx context.Context, d browserdriver.Driver, code string) error {
	vm := goja.New()

	pageObj := vm.NewObject()
	mustSet(pageObj, "navigate", func(call goja.FunctionCall) goja.Value {
		url := call.Argument(0).String()
		err := d.Navigate(ctx, url, "load", 30*time.Second)
		return errValue(vm, err)
	})
	mustSet(pageObj, "click", func(call goja.FunctionCall) goja.Value {
		sel := call.Argument(0).String()
		err := d.Click(ctx, sel, browserdriver.ClickOptions{})
		return errValue(vm, err)
	})
	mustSet(pageObj, "evaluate", func(call goja.FunctionCall) goja.Value {
		expr := call.Argument(0).String()
		var out any
		if err := d.Evaluate(ctx, expr, nil, &out); err != nil {
			return errValue(vm, err)
		}
		return vm.ToValue(out)
	})
	mustSet(pageObj, "url", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(d.URL())
	})

	logObj := vm.NewObject()
	mustSet(logObj, "info", func(call goja.FunctionCall) goja.Value {
		log.Info().Str("source", "script action").Msg(argString(call))
		return goja.Undefined()
	})
	mustSet(logObj, "warn", func(call goja.FunctionCall) goja.Value {
		log.Warn().Str("source", "script action").Msg(argString(call))
		return goja.Undefined()
	})
	mustSet(logObj, "error", func(call goja.FunctionCall) goja.Value {
		log.Error().Str("source", "script action").Msg(argString(call))
		return goja.Undefined()
	})

	vm.Set("page", pageObj)
	vm.Set("log", logObj)

	wrapped := fmt.Sprintf("(async function(page, log){ %s })(page, log)", code)

	done := make(chan error, 1)
	go func() {
		_, err := vm.RunString(wrapped)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		vm.Interrupt("context canceled")
		return ctx.Err()
	}
}

func mustSet(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.Set(name, fn); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("failed to bind script action global")
	}
}

func errValue(vm *goja.Runtime, err error) goja.Value {
	if err != nil {
		return vm.ToValue(err.Error())
	}
	return goja.Undefined()
}

func argString(call goja.FunctionCall) string {
	out := ""
	for i, a := range call.Arguments {
		if i > 0 {
			out += " "
		}
		out += a.String()
	}
	return out
}
