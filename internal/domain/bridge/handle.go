package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// Handle is the bridge as seen by one executing script
type Handle struct {
	bridge *Bridge
	script *types.Script
	grants Grants
	turns  *Turns
	log    *logging.Logger
}

// ScriptID returns the id every operation is scoped to
func (h *Handle) ScriptID() string { return h.script.ID }

// Script returns the script this handle belongs to
func (h *Handle) Script() *types.Script { return h.script }

// Grants returns the script's grant set
func (h *Handle) Grants() Grants { return h.grants }

// Turns returns the queue asynchronous completions are delivered on
func (h *Handle) Turns() *Turns { return h.turns }

// Allows reports whether the script may call c
func (h *Handle) Allows(c Capability) bool { return h.grants.Allows(c) }

func (h *Handle) check(c Capability) error {
	if h.grants.Allows(c) {
		return nil
	}
	err := fmt.Errorf("%w: %s requires @grant GM_%s", ErrPermissionDenied, c, c)
	h.bridge.record(c, err)
	h.log.Debug("Capability denied", zap.String("capability", string(c)))
	return err
}

func (h *Handle) valueKey(key string) string {
	return valuePrefix(h.script.ID) + key
}

// GetValue returns the stored value for key, or def when none is stored
func (h *Handle) GetValue(ctx context.Context, key string, def any) (any, error) {
	if err := h.check(GetValue); err != nil {
		return def, err
	}
	raw, err := h.bridge.kv.Get(ctx, h.valueKey(key))
	if errors.Is(err, persistence.ErrNotFound) {
		h.bridge.record(GetValue, nil)
		return def, nil
	}
	if err != nil {
		h.bridge.record(GetValue, err)
		return def, err
	}

	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		h.log.Warn("Stored value is unreadable", zap.String("key", key), zap.Error(err))
		h.bridge.record(GetValue, nil)
		return def, nil
	}
	h.bridge.record(GetValue, nil)
	return v, nil
}

// SetValue stores a JSON-compatible value under key
func (h *Handle) SetValue(ctx context.Context, key string, value any) error {
	if err := h.check(SetValue); err != nil {
		return err
	}
	raw, err := sonic.Marshal(value)
	if err == nil {
		err = h.bridge.kv.Put(ctx, h.valueKey(key), raw)
	}
	h.bridge.record(SetValue, err)
	return err
}

// DeleteValue removes key
func (h *Handle) DeleteValue(ctx context.Context, key string) error {
	if err := h.check(DeleteValue); err != nil {
		return err
	}
	err := h.bridge.kv.Delete(ctx, h.valueKey(key))
	h.bridge.record(DeleteValue, err)
	return err
}

// ListValues returns every stored value of the script by key
func (h *Handle) ListValues(ctx context.Context) (map[string]any, error) {
	if err := h.check(ListValues); err != nil {
		return nil, err
	}
	prefix := valuePrefix(h.script.ID)
	keys, err := h.bridge.kv.List(ctx, prefix)
	if err != nil {
		h.bridge.record(ListValues, err)
		return nil, err
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		raw, err := h.bridge.kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var v any
		if sonic.Unmarshal(raw, &v) == nil {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	h.bridge.record(ListValues, nil)
	return out, nil
}

// CrossOriginRequest starts req and returns its id at once. done runs on
// a later turn of this script's Turns queue, never during this call.
func (h *Handle) CrossOriginRequest(ctx context.Context, req types.HTTPRequest, done func(*types.HTTPResponse, error)) (string, error) {
	if err := h.check(XMLHTTPRequest); err != nil {
		return "", err
	}
	if h.bridge.requester == nil {
		err := fmt.Errorf("%w: no transport configured", ErrInvalidRequest)
		h.bridge.record(XMLHTTPRequest, err)
		return "", err
	}
	if err := validateRequestURL(req.URL); err != nil {
		h.bridge.record(XMLHTTPRequest, err)
		return "", err
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	reqID := id.NewRequestID().String()
	complete := h.turns.expect()
	h.bridge.inflight.Add(1)
	go func() {
		defer h.bridge.inflight.Done()
		resp, err := h.bridge.requester.Do(ctx, &req)
		h.bridge.record(XMLHTTPRequest, err)
		if err != nil {
			h.log.Debug("Cross-origin request failed", zap.String("request_id", reqID), zap.String("url", req.URL), zap.Error(err))
		}
		complete(func() {
			if done != nil {
				done(resp, err)
			}
		})
	}()
	return reqID, nil
}

// OpenInTab asks the host to open url
func (h *Handle) OpenInTab(ctx context.Context, rawURL string, background bool) error {
	if err := h.check(OpenInTab); err != nil {
		return err
	}
	if h.bridge.host == nil {
		h.bridge.record(OpenInTab, ErrNoHost)
		return ErrNoHost
	}
	err := h.bridge.host.OpenTab(ctx, rawURL, background)
	h.bridge.record(OpenInTab, err)
	return err
}

// Notify shows a notification. Markup in title and text is stripped.
func (h *Handle) Notify(ctx context.Context, title, text, image string) error {
	if err := h.check(Notification); err != nil {
		return err
	}
	if h.bridge.host == nil {
		h.bridge.record(Notification, ErrNoHost)
		return ErrNoHost
	}
	if title == "" {
		title = h.script.Name
	}
	n := Notice{
		ScriptID:   h.script.ID,
		ScriptName: h.script.Name,
		Title:      h.bridge.sanitize(title),
		Text:       h.bridge.sanitize(text),
		Image:      image,
	}
	err := h.bridge.host.Notify(ctx, n)
	h.bridge.record(Notification, err)
	return err
}

// ResourceText returns the cached body of the named @resource
func (h *Handle) ResourceText(ctx context.Context, name string) (string, error) {
	if err := h.check(GetResourceText); err != nil {
		return "", err
	}
	res, ok := h.script.Resource(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownResource, name)
		h.bridge.record(GetResourceText, err)
		return "", err
	}
	text, err := h.bridge.cache.Text(ctx, res.URL)
	h.bridge.record(GetResourceText, err)
	return text, err
}

// ResourceURL returns the named @resource as a data: URI
func (h *Handle) ResourceURL(ctx context.Context, name string) (string, error) {
	if err := h.check(GetResourceURL); err != nil {
		return "", err
	}
	res, ok := h.script.Resource(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownResource, name)
		h.bridge.record(GetResourceURL, err)
		return "", err
	}
	uri, err := h.bridge.cache.DataURI(ctx, res.URL)
	h.bridge.record(GetResourceURL, err)
	return uri, err
}

// Log writes a script log line
func (h *Handle) Log(level string, msg string) {
	switch level {
	case "error":
		h.log.Error(msg, zap.String("source", "script"))
	case "warn":
		h.log.Warn(msg, zap.String("source", "script"))
	case "debug":
		h.log.Debug(msg, zap.String("source", "script"))
	default:
		h.log.Info(msg, zap.String("source", "script"))
	}
}
