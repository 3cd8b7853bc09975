package sandbox

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// bind installs the GM_* functions of h, the GM object, GM_info, timers
// and a console that forwards to the script log.
func (r *Runtime) bind(ctx context.Context, h *bridge.Handle) error {
	vm := r.vm
	sc := h.Script()

	fns := map[string]func(goja.FunctionCall) goja.Value{
		"GM_getValue":        r.getValue(ctx, h),
		"GM_setValue":        r.setValue(ctx, h),
		"GM_deleteValue":     r.deleteValue(ctx, h),
		"GM_listValues":      r.listValues(ctx, h),
		"GM_xmlhttpRequest":  r.xmlhttpRequest(ctx, h),
		"GM_openInTab":       r.openInTab(ctx, h),
		"GM_notification":    r.notification(ctx, h),
		"GM_getResourceText": r.resourceText(ctx, h),
		"GM_getResourceURL":  r.resourceURL(ctx, h),
		"GM_log":             r.makeConsoleFunc("log", h),
		"setTimeout":         r.setTimeout(h),
		"clearTimeout":       r.clearTimeout,
	}
	for name, fn := range fns {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	gm := vm.NewObject()
	aliases := map[string]string{
		"getValue":        "GM_getValue",
		"setValue":        "GM_setValue",
		"deleteValue":     "GM_deleteValue",
		"listValues":      "GM_listValues",
		"xmlHttpRequest":  "GM_xmlhttpRequest",
		"openInTab":       "GM_openInTab",
		"notification":    "GM_notification",
		"getResourceText": "GM_getResourceText",
		"getResourceUrl":  "GM_getResourceURL",
		"log":             "GM_log",
	}
	for alias, name := range aliases {
		if err := gm.Set(alias, fns[name]); err != nil {
			return err
		}
	}

	info := map[string]any{
		"scriptHandler": "userscripts",
		"script": map[string]any{
			"name":        sc.Name,
			"namespace":   sc.Namespace,
			"version":     sc.Version,
			"description": sc.Description,
			"grants":      h.Grants().List(),
		},
	}
	if err := vm.Set("GM_info", info); err != nil {
		return err
	}
	if err := gm.Set("info", info); err != nil {
		return err
	}
	if err := vm.Set("GM", gm); err != nil {
		return err
	}

	if r.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level, h)); err != nil {
				return err
			}
		}
		return vm.Set("console", console)
	}
	return nil
}

// throw raises err as a JavaScript exception
func (r *Runtime) throw(err error) {
	panic(r.vm.NewGoError(err))
}

func (r *Runtime) getValue(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		def := call.Argument(1)
		v, err := h.GetValue(ctx, call.Argument(0).String(), nil)
		if err != nil {
			r.throw(err)
		}
		if v == nil {
			return def
		}
		return r.vm.ToValue(v)
	}
}

func (r *Runtime) setValue(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if err := h.SetValue(ctx, call.Argument(0).String(), call.Argument(1).Export()); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}
}

func (r *Runtime) deleteValue(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if err := h.DeleteValue(ctx, call.Argument(0).String()); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}
}

func (r *Runtime) listValues(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		values, err := h.ListValues(ctx)
		if err != nil {
			r.throw(err)
		}
		keys := make([]any, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		return r.vm.NewArray(keys...)
	}
}

// xmlhttpRequest takes a details object with method, url, headers, data,
// timeout (ms), onload and onerror. The callbacks run on a later turn.
func (r *Runtime) xmlhttpRequest(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		details := call.Argument(0).ToObject(r.vm)

		req := types.HTTPRequest{
			Method: stringField(details, "method"),
			URL:    stringField(details, "url"),
			Body:   stringField(details, "data"),
		}
		if ms := details.Get("timeout"); ms != nil && !goja.IsUndefined(ms) {
			req.Timeout = time.Duration(ms.ToInteger()) * time.Millisecond
		}
		if hv := details.Get("headers"); hv != nil && !goja.IsUndefined(hv) && !goja.IsNull(hv) {
			obj := hv.ToObject(r.vm)
			req.Headers = make(map[string]string)
			for _, k := range obj.Keys() {
				req.Headers[k] = obj.Get(k).String()
			}
		}
		onload := callable(details, "onload")
		onerror := callable(details, "onerror")

		reqID, err := h.CrossOriginRequest(ctx, req, func(resp *types.HTTPResponse, err error) {
			if err != nil {
				r.call(onerror, r.vm.ToValue(map[string]any{"error": err.Error(), "finalUrl": req.URL}))
				return
			}
			r.call(onload, r.vm.ToValue(map[string]any{
				"status":          resp.Status,
				"statusText":      resp.StatusText,
				"responseText":    resp.Body,
				"responseHeaders": resp.Headers,
				"finalUrl":        resp.FinalURL,
			}))
		})
		if err != nil {
			r.throw(err)
		}
		return r.vm.ToValue(map[string]any{"id": reqID})
	}
}

// openInTab accepts a boolean (true opens in the background) or an
// options object with active.
func (r *Runtime) openInTab(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		background := false
		switch opt := call.Argument(1).(type) {
		case *goja.Object:
			if active := opt.Get("active"); active != nil && !goja.IsUndefined(active) {
				background = !active.ToBoolean()
			}
		default:
			if b, ok := opt.Export().(bool); ok {
				background = b
			}
		}
		if err := h.OpenInTab(ctx, call.Argument(0).String(), background); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}
}

// notification accepts (text, title, image) or a details object
func (r *Runtime) notification(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var text, title, image string
		first := call.Argument(0)
		if obj, ok := first.(*goja.Object); ok {
			text = stringField(obj, "text")
			title = stringField(obj, "title")
			image = stringField(obj, "image")
		} else {
			text = optString(first)
			title = optString(call.Argument(1))
			image = optString(call.Argument(2))
		}
		if err := h.Notify(ctx, title, text, image); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}
}

func (r *Runtime) resourceText(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		text, err := h.ResourceText(ctx, call.Argument(0).String())
		if err != nil {
			r.throw(err)
		}
		return r.vm.ToValue(text)
	}
}

func (r *Runtime) resourceURL(ctx context.Context, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		uri, err := h.ResourceURL(ctx, call.Argument(0).String())
		if err != nil {
			r.throw(err)
		}
		return r.vm.ToValue(uri)
	}
}

// setTimeout queues fn for a later turn. Delays are not honoured; timers
// only order work after the current turn.
func (r *Runtime) setTimeout(h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		args := append([]goja.Value(nil), call.Arguments[min(2, len(call.Arguments)):]...)

		r.nextTime++
		id := r.nextTime
		r.timers[id] = true
		h.Turns().Post(func() {
			if !r.timers[id] {
				return
			}
			delete(r.timers, id)
			r.call(fn, args...)
		})
		return r.vm.ToValue(id)
	}
}

func (r *Runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	delete(r.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

func stringField(obj *goja.Object, name string) string {
	return optString(obj.Get(name))
}

func optString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func callable(obj *goja.Object, name string) goja.Callable {
	fn, ok := goja.AssertFunction(obj.Get(name))
	if !ok {
		return nil
	}
	return fn
}
