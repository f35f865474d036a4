package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fleetops/hardpoint/internal/api"
	"github.com/fleetops/hardpoint/internal/dispatcher"
	"github.com/fleetops/hardpoint/internal/engine"
	"github.com/fleetops/hardpoint/internal/loadout"
	"github.com/fleetops/hardpoint/internal/logging"
	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/pkg/core"
)

// commands is what the CLI needs from either the in-process engine or a remote server.
type commands interface {
	CreateMission(ctx context.Context, in engine.MissionInput) (api.Mission, error)
	Loadout(ctx context.Context, missionID uint) ([]api.Position, error)
	Assign(ctx context.Context, missionID uint, pos core.PositionID, body api.AssignBody) (api.Transition, error)
	Fire(ctx context.Context, missionID uint, pos core.PositionID) (api.Transition, error)
	Correct(ctx context.Context, missionID uint, pos core.PositionID, body api.CorrectionBody) (api.Transition, error)
	LauncherStatus(ctx context.Context, partNumber string) (api.LauncherStatus, error)
	FleetStatus(ctx context.Context) ([]api.LauncherStatus, error)
}

var _ commands = (*api.Client)(nil)

// engineCommands runs commands in-process and renders the same wire types as the API.
type engineCommands struct {
	e *engine.Engine
}

func (c engineCommands) CreateMission(ctx context.Context, in engine.MissionInput) (api.Mission, error) {
	m, err := c.e.CreateMission(ctx, in)
	if err != nil {
		return api.Mission{}, err
	}
	return api.MissionView(m), nil
}

func (c engineCommands) Loadout(ctx context.Context, missionID uint) ([]api.Position, error) {
	out, err := c.e.ResolveLoadout(ctx, missionID)
	if err != nil {
		return nil, err
	}
	views := make([]api.Position, 0, len(out))
	for _, pl := range out {
		views = append(views, api.PositionView(pl))
	}
	return views, nil
}

func (c engineCommands) Assign(ctx context.Context, missionID uint, pos core.PositionID, body api.AssignBody) (api.Transition, error) {
	res, err := c.e.AssignPosition(ctx, missionID, pos, loadout.AssignRequest{
		LauncherPN: body.LauncherPN,
		MissilePN:  body.MissilePN,
		Overwrite:  body.Overwrite,
	})
	return transition(res, err)
}

func (c engineCommands) Fire(ctx context.Context, missionID uint, pos core.PositionID) (api.Transition, error) {
	return transition(c.e.FirePosition(ctx, missionID, pos))
}

func (c engineCommands) Correct(ctx context.Context, missionID uint, pos core.PositionID, body api.CorrectionBody) (api.Transition, error) {
	return transition(c.e.CorrectPosition(ctx, missionID, pos, body.Status, body.Reason))
}

func (c engineCommands) LauncherStatus(ctx context.Context, partNumber string) (api.LauncherStatus, error) {
	st, err := c.e.LauncherStatus(ctx, partNumber)
	if err != nil {
		return api.LauncherStatus{}, err
	}
	return api.StatusView(st), nil
}

func (c engineCommands) FleetStatus(ctx context.Context) ([]api.LauncherStatus, error) {
	fleet, err := c.e.FleetStatus(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]api.LauncherStatus, 0, len(fleet))
	for _, st := range fleet {
		views = append(views, api.StatusView(st))
	}
	return views, nil
}

func transition(res loadout.Result, err error) (api.Transition, error) {
	if err != nil {
		return api.Transition{}, err
	}
	return api.TransitionView(res), nil
}

// app holds what a single invocation needs. The local engine is opened on
// first use so remote commands never touch the store.
type app struct {
	opts       options
	dispatcher *dispatcher.Dispatcher
	remote     *api.Client

	mu    sync.Mutex
	local *local
}

func newApp(opts options) (*app, error) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a := &app{opts: opts, dispatcher: d}
	if opts.remote != "" {
		a.remote = api.NewClient(opts.remote)
	}
	registerCommands(a)
	return a, nil
}

// Close drains buffered commands before the store and exporter shut down.
func (a *app) Close() error {
	a.dispatcher.Close()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.local == nil {
		return nil
	}
	err := a.local.Close()
	if err != nil {
		Logger.Error("Error closing storage", "error", err)
	}
	a.local = nil
	return err
}

func (a *app) openLocal(ctx context.Context) (*local, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.local != nil {
		return a.local, nil
	}
	l, err := openLocal(ctx, Logger)
	if err != nil {
		return nil, err
	}
	a.local = l
	return l, nil
}

// requireLocal rejects commands that only make sense next to the store.
func (a *app) requireLocal(ctx context.Context, cmd string) (*local, error) {
	if a.remote != nil {
		return nil, core.Validation(cmd, fmt.Errorf("%s runs against the local store, drop --remote", cmd))
	}
	return a.openLocal(ctx)
}

func (a *app) commands(ctx context.Context) (commands, error) {
	if a.remote != nil {
		if err := a.remote.Healthcheck(ctx); err != nil {
			return nil, core.StoreFailure("remote", fmt.Errorf("server %s unreachable: %w", a.opts.remote, err))
		}
		return a.remote, nil
	}
	l, err := a.openLocal(ctx)
	if err != nil {
		return nil, err
	}
	return engineCommands{e: l.engine}, nil
}

type command struct {
	name string
	run  func(ctx context.Context, a *app, args []string) (any, error)
	opts []dispatcher.Option
}

var commandTable = []command{
	{name: "serve", run: cmdServe},
	{name: "mission:create", run: cmdMissionCreate},
	{name: "loadout:show", run: cmdLoadoutShow},
	{name: "loadout:assign", run: cmdLoadoutAssign},
	{name: "loadout:fire", run: cmdLoadoutFire},
	{name: "loadout:correct", run: cmdLoadoutCorrect},
	{name: "fatigue:status", run: cmdFatigueStatus},
	{name: "fatigue:fleet", run: cmdFatigueFleet},
	{name: "fatigue:refresh", run: cmdFatigueRefresh, opts: []dispatcher.Option{dispatcher.Buffered(1), dispatcher.Logged()}},
	{name: "catalog:import", run: cmdCatalogImport},
	{name: "register:import", run: cmdRegisterImport},
	{name: "migratebackups", run: cmdMigrateBackups},
}

var commandUsage = map[string]string{
	"serve":           "serve",
	"mission:create":  "mission:create AIRCRAFT FLIGHT DATE [DEPARTURE [ARRIVAL]]",
	"loadout:show":    "loadout:show MISSION",
	"loadout:assign":  "loadout:assign MISSION POSITION LAUNCHER [MISSILE] [--overwrite]",
	"loadout:fire":    "loadout:fire MISSION POSITION",
	"loadout:correct": "loadout:correct MISSION POSITION STATUS REASON...",
	"fatigue:status":  "fatigue:status PART_NUMBER",
	"fatigue:fleet":   "fatigue:fleet",
	"fatigue:refresh": "fatigue:refresh",
	"catalog:import":  "catalog:import FILE",
	"register:import": "register:import FILE",
	"migratebackups":  "migratebackups [DIR]",
}

func commandHelp() string {
	var b strings.Builder
	for _, c := range commandTable {
		fmt.Fprintf(&b, "  %s\n", commandUsage[c.name])
	}
	return b.String()
}

func registerCommands(a *app) {
	for _, c := range commandTable {
		a.dispatcher.Register(c.name, func(ctx context.Context, e dispatcher.Event) (any, error) {
			return c.run(ctx, a, e.Args)
		}, c.opts...)
	}
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return 2
	case core.KindNotFound:
		return 3
	case core.KindConflict:
		return 4
	case core.KindDataIntegrity:
		return 5
	case core.KindStore:
		return 6
	default:
		return 1
	}
}

func printResult(w io.Writer, result any) error {
	switch v := result.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func usageError(cmd string, args []string, min, max int) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	if usage, ok := commandUsage[cmd]; ok {
		return core.Validation(cmd, fmt.Errorf("usage: %s %s", AppName, usage))
	}
	return core.Validation(cmd, errors.New("wrong number of arguments"))
}

func parseMissionID(op, s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, core.Validation(op, fmt.Errorf("invalid mission id %q", s))
	}
	return uint(id), nil
}

func missionAndPosition(op string, args []string) (uint, core.PositionID, error) {
	id, err := parseMissionID(op, args[0])
	if err != nil {
		return 0, "", err
	}
	pos, err := position.Parse(args[1])
	if err != nil {
		return 0, "", err
	}
	return id, pos, nil
}

func cmdMissionCreate(ctx context.Context, a *app, args []string) (any, error) {
	const op = "mission:create"
	if err := usageError(op, args, 3, 5); err != nil {
		return nil, err
	}
	flight, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, core.Validation(op, fmt.Errorf("invalid flight number %q", args[1]))
	}
	in := engine.MissionInput{Aircraft: args[0], FlightNumber: flight, Date: args[2]}
	if len(args) > 3 {
		in.Departure = args[3]
	}
	if len(args) > 4 {
		in.Arrival = args[4]
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.CreateMission(ctx, in)
}

func cmdLoadoutShow(ctx context.Context, a *app, args []string) (any, error) {
	const op = "loadout:show"
	if err := usageError(op, args, 1, 1); err != nil {
		return nil, err
	}
	id, err := parseMissionID(op, args[0])
	if err != nil {
		return nil, err
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.Loadout(ctx, id)
}

func cmdLoadoutAssign(ctx context.Context, a *app, args []string) (any, error) {
	const op = "loadout:assign"
	if err := usageError(op, args, 3, 4); err != nil {
		return nil, err
	}
	id, pos, err := missionAndPosition(op, args)
	if err != nil {
		return nil, err
	}
	body := api.AssignBody{LauncherPN: args[2], Overwrite: a.opts.overwrite}
	if len(args) > 3 {
		body.MissilePN = args[3]
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.Assign(ctx, id, pos, body)
}

func cmdLoadoutFire(ctx context.Context, a *app, args []string) (any, error) {
	const op = "loadout:fire"
	if err := usageError(op, args, 2, 2); err != nil {
		return nil, err
	}
	id, pos, err := missionAndPosition(op, args)
	if err != nil {
		return nil, err
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.Fire(ctx, id, pos)
}

func cmdLoadoutCorrect(ctx context.Context, a *app, args []string) (any, error) {
	const op = "loadout:correct"
	if err := usageError(op, args, 4, -1); err != nil {
		return nil, err
	}
	id, pos, err := missionAndPosition(op, args)
	if err != nil {
		return nil, err
	}
	status, err := core.ParseStatus(args[2])
	if err != nil {
		return nil, core.Validation(op, err)
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.Correct(ctx, id, pos, api.CorrectionBody{Status: status, Reason: strings.Join(args[3:], " ")})
}

func cmdFatigueStatus(ctx context.Context, a *app, args []string) (any, error) {
	const op = "fatigue:status"
	if err := usageError(op, args, 1, 1); err != nil {
		return nil, err
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.LauncherStatus(ctx, args[0])
}

func cmdFatigueFleet(ctx context.Context, a *app, args []string) (any, error) {
	if err := usageError("fatigue:fleet", args, 0, 0); err != nil {
		return nil, err
	}
	cmds, err := a.commands(ctx)
	if err != nil {
		return nil, err
	}
	return cmds.FleetStatus(ctx)
}

// cmdFatigueRefresh recomputes every launcher so the snapshots reach the exporter.
// It runs behind a buffer, so the invocation returns before the sweep is done.
func cmdFatigueRefresh(ctx context.Context, a *app, args []string) (any, error) {
	l, err := a.requireLocal(ctx, "fatigue:refresh")
	if err != nil {
		return nil, err
	}
	fleet, err := l.engine.FleetStatus(ctx)
	if err != nil {
		return nil, err
	}
	Logger.InfoContext(ctx, "Fatigue snapshots refreshed", "launchers", len(fleet))
	return len(fleet), nil
}

type catalogFile struct {
	Launchers []struct {
		PartNumber       string  `json:"partNumber"`
		Nomenclature     string  `json:"nomenclature"`
		ManufacturerCode string  `json:"manufacturerCode"`
		RatedLifeHours   float64 `json:"ratedLifeHours"`
	} `json:"launchers"`
	Weapons []struct {
		PartNumber       string `json:"partNumber"`
		Nomenclature     string `json:"nomenclature"`
		ManufacturerCode string `json:"manufacturerCode"`
	} `json:"weapons"`
}

func readJSONFile(op, path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return core.Validation(op, err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.Validation(op, fmt.Errorf("decoding %s: %w", path, err))
	}
	return nil
}

func cmdCatalogImport(ctx context.Context, a *app, args []string) (any, error) {
	const op = "catalog:import"
	if err := usageError(op, args, 1, 1); err != nil {
		return nil, err
	}
	var file catalogFile
	if err := readJSONFile(op, args[0], &file); err != nil {
		return nil, err
	}
	l, err := a.requireLocal(ctx, op)
	if err != nil {
		return nil, err
	}
	for _, in := range file.Launchers {
		if err := l.engine.PutLauncher(ctx, core.LauncherInfo{
			PartNumber:       strings.TrimSpace(in.PartNumber),
			Nomenclature:     in.Nomenclature,
			ManufacturerCode: in.ManufacturerCode,
			RatedLifeHours:   in.RatedLifeHours,
		}); err != nil {
			return nil, err
		}
	}
	for _, in := range file.Weapons {
		if err := l.engine.PutWeapon(ctx, core.WeaponInfo{
			PartNumber:       strings.TrimSpace(in.PartNumber),
			Nomenclature:     in.Nomenclature,
			ManufacturerCode: in.ManufacturerCode,
		}); err != nil {
			return nil, err
		}
	}
	return map[string]int{"launchers": len(file.Launchers), "weapons": len(file.Weapons)}, nil
}

// bulkImporter is implemented by the GORM backed stores, which batch register rows.
type bulkImporter interface {
	EnqueueInstallations(ws ...core.InstallationWindow) error
	Flush(ctx context.Context) error
}

func cmdRegisterImport(ctx context.Context, a *app, args []string) (any, error) {
	const op = "register:import"
	if err := usageError(op, args, 1, 1); err != nil {
		return nil, err
	}
	var rows []api.Installation
	if err := readJSONFile(op, args[0], &rows); err != nil {
		return nil, err
	}
	windows := make([]core.InstallationWindow, 0, len(rows))
	for i, row := range rows {
		w, err := row.Window()
		if err != nil {
			return nil, core.NewError(core.KindOf(err), op, fmt.Errorf("row %d: %w", i+1, err))
		}
		windows = append(windows, w)
	}

	l, err := a.requireLocal(ctx, op)
	if err != nil {
		return nil, err
	}
	if bulk, ok := l.backend.(bulkImporter); ok {
		if err := bulk.EnqueueInstallations(windows...); err != nil {
			return nil, err
		}
		if err := bulk.Flush(ctx); err != nil {
			return nil, err
		}
	} else {
		for _, w := range windows {
			if err := l.engine.RecordInstallation(ctx, w); err != nil {
				return nil, err
			}
		}
	}
	return map[string]int{"installations": len(windows)}, nil
}
