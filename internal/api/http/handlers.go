package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/match"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/detect"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/sandbox"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/utils"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// InstallListener is told about every install attempt made through the API
type InstallListener interface {
	InstallFinished(res installer.Result)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store      *store.Store
	installer  *installer.Installer
	dispatcher *dispatch.Dispatcher
	executor   *sandbox.Executor
	listener   InstallListener
	metrics    *monitoring.Metrics
	log        *logging.Logger
	started    time.Time
}

// Deps are the collaborators of the handler set. Executor, Listener and
// Metrics are optional.
type Deps struct {
	Store      *store.Store
	Installer  *installer.Installer
	Dispatcher *dispatch.Dispatcher
	Executor   *sandbox.Executor
	Listener   InstallListener
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		store:      d.Store,
		installer:  d.Installer,
		dispatcher: d.Dispatcher,
		executor:   d.Executor,
		listener:   d.Listener,
		metrics:    d.Metrics,
		log:        logging.OrNop(d.Logger).Component("api"),
		started:    time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/scripts", h.ListScripts)
	r.POST("/scripts", h.InstallScript)
	r.GET("/scripts/:id", h.GetScript)
	r.GET("/scripts/:id/source", h.GetSource)
	r.POST("/scripts/:id/enable", h.EnableScript)
	r.POST("/scripts/:id/disable", h.DisableScript)
	r.POST("/scripts/:id/update", h.UpdateScript)
	r.DELETE("/scripts/:id", h.RemoveScript)

	r.GET("/dispatch", h.Dispatch)
	r.POST("/navigate", h.Navigate)
	r.POST("/detect", h.Detect)
}

// Root reports service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "userscripts",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"scripts": h.store.Len(),
		"enabled": len(h.store.ListEnabled()),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"sandbox": h.executor != nil,
	})
}

// ListScripts lists installed scripts in install order
func (h *Handlers) ListScripts(c *gin.Context) {
	entries := h.store.List()
	out := make([]ScriptSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summarize(e.Script))
	}
	c.JSON(http.StatusOK, gin.H{"scripts": out, "count": len(out)})
}

// GetScript returns one script with its effective match rules
func (h *Handlers) GetScript(c *gin.Context) {
	entry, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, detail(entry))
}

// GetSource returns the script source as installed
func (h *Handlers) GetSource(c *gin.Context) {
	entry, ok := h.entry(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/javascript; charset=utf-8", []byte(entry.Script.Source))
}

// InstallScript installs from a URL or inline source
func (h *Handlers) InstallScript(c *gin.Context) {
	var req types.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.URL == "" && req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url or source required"})
		return
	}
	schemes := []string{"http", "https"}
	if req.Source != "" {
		schemes = append(schemes, "file")
	}
	if err := firstError(
		utils.ValidateURL(req.URL, "url", false, schemes...),
		utils.ValidateSize(len(req.Source), "source", utils.MaxSourceSize),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ireq := installer.Request{URL: req.URL, Force: req.Force}
	if req.Source != "" {
		ireq.Source = []byte(req.Source)
	}
	h.respondInstall(c, h.installer.Install(c.Request.Context(), ireq))
}

// UpdateScript re-fetches a script from its update location
func (h *Handlers) UpdateScript(c *gin.Context) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	res, err := h.installer.Update(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondInstall(c, res)
}

// EnableScript enables a script
func (h *Handlers) EnableScript(c *gin.Context) { h.setEnabled(c, true) }

// DisableScript disables a script
func (h *Handlers) DisableScript(c *gin.Context) { h.setEnabled(c, false) }

func (h *Handlers) setEnabled(c *gin.Context, enabled bool) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	entry, err := h.installer.SetEnabled(c.Request.Context(), id, enabled)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.refreshGauges()
	c.JSON(http.StatusOK, summarize(entry.Script))
}

// RemoveScript uninstalls a script and deletes its stored values
func (h *Handlers) RemoveScript(c *gin.Context) {
	id, ok := scriptID(c)
	if !ok {
		return
	}
	if err := h.installer.Remove(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.refreshGauges()
	c.JSON(http.StatusOK, gin.H{"success": true, "script_id": id})
}

// Dispatch lists the scripts to inject for a navigation without running them
func (h *Handlers) Dispatch(c *gin.Context) {
	url := c.Query("url")
	if err := utils.ValidateURL(url, "url", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	phase, _ := types.ParseRunAt(c.Query("phase"))

	injections := h.dispatcher.SelectForNavigation(c.Request.Context(), url, phase)
	out := make([]InjectionView, 0, len(injections))
	for _, inj := range injections {
		out = append(out, viewInjection(inj))
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "phase": phase, "scripts": out})
}

// NavigateRequest asks the built-in sandbox to run the scripts for a page
type NavigateRequest struct {
	URL   string `json:"url" binding:"required"`
	Phase string `json:"phase,omitempty"`
}

// Navigate selects and runs the scripts for a navigation in the sandbox
func (h *Handlers) Navigate(c *gin.Context) {
	if h.executor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sandbox disabled"})
		return
	}
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := utils.ValidateURL(req.URL, "url", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	phase, _ := types.ParseRunAt(req.Phase)

	ctx := c.Request.Context()
	results := h.executor.Run(ctx, h.dispatcher.SelectForNavigation(ctx, req.URL, phase))
	out := make([]RunView, 0, len(results))
	for _, r := range results {
		out = append(out, viewRun(r))
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "phase": phase, "results": out})
}

// DetectRequest carries a page to scan for installable scripts
type DetectRequest struct {
	HTML string `json:"html" binding:"required"`
	Base string `json:"base"`
}

// Detect lists installable .user.js links in an HTML page
func (h *Handlers) Detect(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := firstError(
		utils.ValidateSize(len(req.HTML), "html", utils.MaxHTMLSize),
		utils.ValidateURL(req.Base, "base", false, "http", "https", "file"),
	); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	links, err := detect.InstallableLinks(req.HTML, req.Base)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

func scriptID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := utils.ValidateID(id, "script_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) entry(c *gin.Context) (store.Entry, bool) {
	id, ok := scriptID(c)
	if !ok {
		return store.Entry{}, false
	}
	entry, err := h.store.Get(id)
	if err != nil {
		h.fail(c, err)
		return store.Entry{}, false
	}
	return entry, true
}

func (h *Handlers) respondInstall(c *gin.Context, res installer.Result) {
	if h.listener != nil {
		h.listener.InstallFinished(res)
	}
	if res.Outcome.Committed() {
		h.refreshGauges()
	}
	c.JSON(installStatus(res.Outcome), viewInstall(res))
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, installer.ErrNoUpdateURL):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) refreshGauges() {
	if h.metrics != nil {
		h.metrics.SetScripts(h.store.Len(), len(h.store.ListEnabled()))
	}
}

func installStatus(o installer.Outcome) int {
	switch o {
	case installer.Inserted:
		return http.StatusCreated
	case installer.UpdateApplied:
		return http.StatusOK
	case installer.DuplicateNoOp, installer.StaleVersion:
		return http.StatusConflict
	case installer.Rejected:
		return http.StatusForbidden
	case installer.MalformedMetadata:
		return http.StatusUnprocessableEntity
	case installer.FetchError, installer.ResourceFetchError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func diagnostics(in []match.Diagnostic) []DiagnosticView {
	out := make([]DiagnosticView, 0, len(in))
	for _, d := range in {
		v := DiagnosticView{Rule: string(d.Rule), Pattern: d.Pattern}
		if d.Err != nil {
			v.Error = d.Err.Error()
		}
		out = append(out, v)
	}
	return out
}
