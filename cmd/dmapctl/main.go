package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/dmapctl/internal/backend"
	"github.com/danmuck/dmapctl/internal/cache"
	"github.com/danmuck/dmapctl/internal/config"
	"github.com/danmuck/dmapctl/internal/creation"
	"github.com/danmuck/dmapctl/internal/logging"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/danmuck/dmapctl/internal/view"
	"github.com/rs/zerolog/log"
)

const settleTimeout = 30 * time.Second

var (
	// ErrNavigateBack signals caller-intent to return to the previous menu.
	ErrNavigateBack = errors.New("navigate back")
	// ErrNavigateExit signals caller-intent to exit the interactive client.
	ErrNavigateExit = errors.New("navigate exit")
)

type App struct {
	reader      *bufio.Reader
	out         io.Writer
	cfgPath     string
	cfg         config.ClientConfig
	clearScreen bool
	active      protocol.Key
	ctx         context.Context
	dispatcher  *view.Dispatcher
	unwatch     func()

	listsMu sync.Mutex
	lists   map[protocol.Key]view.ListView
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", defaultConfigPath, "terminal client config path")
	flag.Parse()

	logging.ConfigureRuntime()
	app := NewApp(cfgPath, os.Stdin, os.Stdout)
	if err := app.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("dmapctl failed")
		os.Exit(1)
	}
}

func NewApp(cfgPath string, in io.Reader, out io.Writer) *App {
	return &App{
		reader:  bufio.NewReader(in),
		out:     out,
		cfgPath: cfgPath,
		ctx:     context.Background(),
	}
}

// Run executes the main interactive menu loop.
func (a *App) Run(ctx context.Context) error {
	if ctx != nil {
		a.ctx = ctx
	}
	if err := a.loadConfig(); err != nil {
		return err
	}
	log.Info().
		Str("base_url", a.cfg.BaseURL).
		Str("protocol", string(a.active)).
		Msg("dmapctl loaded")

	for {
		a.printMainMenu()
		choice, err := a.promptInt("Choose", 1, 8, false, true)
		if err != nil {
			if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
				return a.exitClient()
			}
			return err
		}
		a.clearIfEnabled()
		switch choice {
		case 1:
			if err := a.selectProtocol(); err != nil {
				if errors.Is(err, ErrNavigateBack) {
					continue
				}
				if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
					return a.exitClient()
				}
				log.Error().Err(err).Msg("select protocol failed")
			}
		case 2:
			a.printPlan(a.dispatcher.Resolve(string(a.active), string(view.SegmentInfo)))
		case 3:
			a.showList()
		case 4:
			if err := a.runCreate(); err != nil {
				if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
					return a.exitClient()
				}
				log.Error().Err(err).Msg("new data node failed")
			}
		case 5:
			a.dispatcher.Refresh(a.active)
			a.showList()
		case 6:
			a.showOverview()
		case 7:
			if err := a.runConfigMenu(); err != nil {
				if errors.Is(err, ErrNavigateBack) {
					continue
				}
				if errors.Is(err, ErrNavigateExit) || errors.Is(err, io.EOF) {
					return a.exitClient()
				}
				log.Error().Err(err).Msg("config menu failed")
			}
		case 8:
			return a.exitClient()
		}
	}
}

// exitClient saves the current config.
func (a *App) exitClient() error {
	if err := saveClientConfig(a.cfgPath, a.cfg); err != nil {
		log.Warn().Err(err).Msg("save on exit failed")
	}
	log.Info().Msg("dmapctl exiting")
	return nil
}

func (a *App) loadConfig() error {
	cfg, err := loadClientConfig(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.clearScreen = cfg.ClearScreenAfterCommand
	a.active = protocol.Key(strings.TrimSpace(cfg.DefaultProtocol))
	return a.connect()
}

// connect rebuilds the backend client and dispatcher from the current config.
func (a *App) connect() error {
	bc, err := a.cfg.Backend()
	if err != nil {
		return err
	}
	client, err := backend.NewClient(bc)
	if err != nil {
		return err
	}
	if a.unwatch != nil {
		a.unwatch()
	}
	a.listsMu.Lock()
	a.lists = make(map[protocol.Key]view.ListView)
	a.listsMu.Unlock()
	a.dispatcher = view.NewDispatcher(a.ctx, client)
	a.unwatch = a.dispatcher.Watch(a.trackList)
	return nil
}

// trackList keeps the latest list state per protocol for the menu header.
func (a *App) trackList(plan view.RenderPlan) {
	if plan.List == nil {
		return
	}
	a.listsMu.Lock()
	a.lists[plan.Protocol] = *plan.List
	a.listsMu.Unlock()
}

func (a *App) listStatus() string {
	a.listsMu.Lock()
	lv, ok := a.lists[a.active]
	a.listsMu.Unlock()
	switch {
	case !ok:
		return "not loaded"
	case lv.Status == cache.StatusReady:
		return fmt.Sprintf("%d loaded (rev %d)", len(lv.Rows), lv.Rev)
	case lv.Status == cache.StatusFailed:
		return lv.Message
	default:
		return view.LoadingText
	}
}

func (a *App) printMainMenu() {
	a.println()
	a.println("dmapctl")
	a.printf("  backend:  %s\n", a.cfg.BaseURL)
	a.printf("  protocol: %s\n", a.activeLabel())
	if a.active != "" {
		a.printf("  data nodes: %s\n", a.listStatus())
	}
	a.printf("  clear screen after command: %v\n", a.clearScreen)
	a.println("  1) Select protocol")
	a.println("  2) Info")
	a.println("  3) Data nodes")
	a.println("  4) New data node")
	a.println("  5) Refresh data nodes")
	a.println("  6) Overview")
	a.println("  7) Config menu")
	a.println("  8) Exit")
}

func (a *App) activeLabel() string {
	if a.active == "" {
		return "(none)"
	}
	desc := protocol.Resolve(string(a.active))
	return fmt.Sprintf("%s (%s)", desc.NavLabel, desc.Key)
}

func (a *App) selectProtocol() error {
	nav := a.dispatcher.Navigation()
	a.println()
	a.println("Protocols")
	for i, entry := range nav.Nav {
		marker := " "
		if entry.Key == a.active {
			marker = "*"
		}
		a.printf("  %s [%d] %s (%s)\n", marker, i+1, entry.Label, entry.Key)
	}
	choice, err := a.promptInt("Select protocol", 1, len(nav.Nav), true, true)
	if err != nil {
		return err
	}
	a.active = nav.Nav[choice-1].Key
	log.Info().Str("protocol", string(a.active)).Msg("active protocol set")
	return nil
}

func (a *App) showList() {
	ctx, cancel := context.WithTimeout(a.ctx, settleTimeout)
	defer cancel()
	plan, err := a.dispatcher.ResolveWait(ctx, string(a.active), string(view.SegmentList))
	if err != nil {
		log.Warn().Err(err).Msg("data nodes still loading")
	}
	a.printPlan(plan)
}

func (a *App) showOverview() {
	ctx, cancel := context.WithTimeout(a.ctx, settleTimeout)
	defer cancel()
	plans, err := a.dispatcher.Overview(ctx)
	if err != nil {
		log.Error().Err(err).Msg("overview failed")
		return
	}
	for _, plan := range plans {
		desc := protocol.Resolve(string(plan.Protocol))
		a.println()
		a.printf("== %s (%s) ==\n", desc.NavLabel, desc.Key)
		a.printList(plan.List)
	}
}

func (a *App) printPlan(plan view.RenderPlan) {
	a.println()
	switch plan.Kind {
	case view.PlanNavigation:
		a.println(plan.Body)
		for _, entry := range plan.Nav {
			a.printf("  - %s (%s)\n", entry.Label, entry.Key)
		}
	case view.PlanInfo:
		a.println(plan.Title)
		a.printf("  %s\n", plan.Body)
	case view.PlanList:
		a.printf("%s data nodes\n", plan.Title)
		a.printList(plan.List)
	case view.PlanCreate:
		a.printf("New %s node\n", plan.Title)
		if plan.Form != nil {
			for _, f := range plan.Form.Fields {
				a.printf("  - %s (%s)\n", f.Label, f.Name)
			}
		}
	case view.PlanUnsupported:
		if plan.Title != "" {
			a.println(plan.Title)
		}
		a.printf("  %s\n", plan.Body)
	case view.PlanNotFound:
		a.printf("  %s\n", plan.Body)
	}
}

func (a *App) printList(lv *view.ListView) {
	if lv == nil {
		a.printf("  %s\n", view.NoMapText)
		return
	}
	switch lv.Status {
	case cache.StatusReady:
		if len(lv.Rows) == 0 {
			a.println("  (none)")
			return
		}
		for i, row := range lv.Rows {
			a.printf("  [%d] %s\n", i+1, row.Identity)
			for _, f := range row.Fields {
				a.printf("      %s: %s\n", f.Label, f.Value)
			}
		}
	case cache.StatusFailed:
		a.printf("  %s: %s\n", lv.Message, lv.Reason)
	case cache.StatusPending, cache.StatusAbsent:
		a.printf("  %s\n", view.LoadingText)
	}
}

// runCreate mounts a create view and drives its gate until the operator leaves.
func (a *App) runCreate() error {
	m, err := a.dispatcher.Mount(string(a.active))
	if err != nil {
		a.printPlan(a.dispatcher.Resolve(string(a.active), string(view.SegmentCreate)))
		return nil
	}
	defer m.Close()

	values := make(map[string]string)
	for {
		a.printGate(m.Plan, m.Gate.Snapshot())
		a.println("  1) Generate identifier")
		a.println("  2) Fill form and submit")
		a.println("  3) Submit current values again")
		a.println("  4) Back")
		choice, err := a.promptInt("Choose", 1, 4, true, true)
		if err != nil {
			if errors.Is(err, ErrNavigateBack) {
				return nil
			}
			return err
		}
		switch choice {
		case 1:
			if err := m.Gate.Generate(); err != nil {
				a.printf("  %v\n", err)
				continue
			}
			a.settle(m.Gate)
		case 2:
			if err := a.promptForm(m.Plan.Form, values); err != nil {
				if errors.Is(err, ErrNavigateBack) {
					continue
				}
				return err
			}
			a.submit(m, values)
		case 3:
			a.submit(m, values)
		case 4:
			return nil
		}
	}
}

func (a *App) printGate(plan view.RenderPlan, snap creation.Snapshot) {
	a.println()
	a.printf("New %s node\n", plan.Title)
	a.printf("  phase: %s\n", snap.Phase)
	if snap.ID != "" {
		a.printf("  identifier: %s\n", snap.ID)
	}
	if snap.Phase == creation.PhaseFailed && snap.Err != nil {
		a.printf("  %s failed: %v\n", snap.FailedOp, snap.Err)
	}
	if snap.Submitted > 0 {
		a.printf("  submitted: %d\n", snap.Submitted)
	}
}

func (a *App) promptForm(form *view.FormSpec, values map[string]string) error {
	if form == nil {
		return errors.New("no form for protocol")
	}
	for _, f := range form.Fields {
		label := f.Label
		if f.Stamped {
			label += " (blank = allocated id)"
		}
		if current := values[f.Name]; current != "" {
			label += " [" + current + "]"
		}
		line, err := a.promptLine(label)
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "back") {
			return ErrNavigateBack
		}
		if line != "" {
			values[f.Name] = line
		}
	}
	return nil
}

func (a *App) submit(m *view.Mount, values map[string]string) {
	rec, err := record.Build(m.Gate.Protocol(), values)
	if err != nil {
		a.printf("  invalid form: %v\n", err)
		return
	}
	if err := m.Gate.Submit(rec); err != nil {
		a.printf("  %v\n", err)
		return
	}
	a.settle(m.Gate)
}

func (a *App) settle(g *creation.Gate) {
	ctx, cancel := context.WithTimeout(a.ctx, settleTimeout)
	defer cancel()
	snap, err := g.Wait(ctx)
	if err != nil {
		a.printf("  still %s: %v\n", snap.Phase, err)
		return
	}
	switch snap.Phase {
	case creation.PhaseAllocated:
		a.printf("  allocated identifier %s\n", snap.ID)
	case creation.PhaseIdle:
		a.println("  submitted")
	case creation.PhaseFailed:
		a.printf("  %s failed: %v\n", snap.FailedOp, snap.Err)
	case creation.PhaseAllocating, creation.PhaseSubmitting:
		a.printf("  %s\n", snap.Phase)
	}
}

// runConfigMenu centralizes client runtime toggles and persistence actions.
func (a *App) runConfigMenu() error {
	for {
		a.println()
		a.println("Config Menu")
		a.printf("  base_url: %s\n", a.cfg.BaseURL)
		a.printf("  default_protocol: %s\n", a.cfg.DefaultProtocol)
		a.printf("  clear_screen_after_command: %v\n", a.clearScreen)
		a.printf("  config: %s\n", a.cfgPath)
		a.println("  1) Toggle clear-screen")
		a.println("  2) Set backend base url")
		a.println("  3) Use active protocol as default")
		a.println("  4) Save config")
		a.println("  5) Reset config to defaults")
		a.println("  6) Back")
		choice, err := a.promptInt("Choose", 1, 6, true, true)
		if err != nil {
			return err
		}
		a.clearIfEnabled()
		switch choice {
		case 1:
			a.clearScreen = !a.clearScreen
			a.cfg.ClearScreenAfterCommand = a.clearScreen
			log.Info().Bool("clear_screen_after_command", a.clearScreen).Msg("config updated")
		case 2:
			if err := a.setBaseURL(); err != nil {
				log.Error().Err(err).Msg("set base url failed")
			}
		case 3:
			a.cfg.DefaultProtocol = string(a.active)
			log.Info().Str("default_protocol", a.cfg.DefaultProtocol).Msg("config updated")
		case 4:
			if err := saveClientConfig(a.cfgPath, a.cfg); err != nil {
				log.Error().Err(err).Msg("save failed")
			} else {
				log.Info().Msg("config saved")
			}
		case 5:
			if err := a.resetToDefaultConfig(); err != nil {
				log.Error().Err(err).Msg("reset config failed")
			}
		case 6:
			return nil
		}
	}
}

func (a *App) setBaseURL() error {
	raw, err := a.promptLine("Backend base url")
	if err != nil {
		return err
	}
	next := a.cfg
	next.BaseURL = strings.TrimSpace(raw)
	if err := config.ValidateClientConfig(next); err != nil {
		return err
	}
	a.cfg = next
	return a.connect()
}

// resetToDefaultConfig restores the baseline file.
func (a *App) resetToDefaultConfig() error {
	confirm, err := a.promptLine("Type RESET to confirm")
	if err != nil {
		return err
	}
	if strings.TrimSpace(confirm) != "RESET" {
		return errors.New("reset cancelled")
	}
	a.cfg = config.DefaultClientConfig()
	a.clearScreen = false
	a.active = protocol.Key(a.cfg.DefaultProtocol)
	if err := a.connect(); err != nil {
		return err
	}
	return saveClientConfig(a.cfgPath, a.cfg)
}

func (a *App) promptLine(label string) (string, error) {
	if strings.TrimSpace(label) != "" {
		a.printf("%s: ", label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) promptInt(label string, min int, max int, allowBack bool, allowExit bool) (int, error) {
	for {
		rangePrompt := fmt.Sprintf("%s [%d-%d", label, min, max)
		if allowBack {
			rangePrompt += "|back|b"
		}
		if allowExit {
			rangePrompt += "|exit|e"
		}
		rangePrompt += "]"
		line, err := a.promptLine(rangePrompt)
		if err != nil {
			return 0, err
		}
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if allowBack && (trimmed == "back" || trimmed == "b") {
			return 0, ErrNavigateBack
		}
		if allowExit && (trimmed == "exit" || trimmed == "e") {
			return 0, ErrNavigateExit
		}
		v, err := strconv.Atoi(trimmed)
		if err != nil || v < min || v > max {
			a.println("Invalid selection.")
			continue
		}
		return v, nil
	}
}

func (a *App) clearIfEnabled() {
	if !a.clearScreen {
		return
	}
	fmt.Fprint(a.out, "\033[H\033[2J")
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
