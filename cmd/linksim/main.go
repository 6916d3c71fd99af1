// linksim wires the full link engine against an in-process physics world
// and runs a scripted scenario: tie two vessels together, run a winch
// through extend, retract and auto-lock, then pack and unpack the scene
// through the configured storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/attachkit/linkcore/internal/api"
	"github.com/attachkit/linkcore/internal/config"
	"github.com/attachkit/linkcore/internal/events"
	"github.com/attachkit/linkcore/internal/frame"
	"github.com/attachkit/linkcore/internal/joint"
	"github.com/attachkit/linkcore/internal/link"
	"github.com/attachkit/linkcore/internal/logging"
	"github.com/attachkit/linkcore/internal/monitor"
	intOtel "github.com/attachkit/linkcore/internal/otel"
	"github.com/attachkit/linkcore/internal/physics"
	"github.com/attachkit/linkcore/internal/renderer"
	"github.com/attachkit/linkcore/internal/sim"
	"github.com/attachkit/linkcore/internal/storage"
	"github.com/attachkit/linkcore/internal/storage/gormdb"
	"github.com/attachkit/linkcore/internal/telemetry"
	"github.com/attachkit/linkcore/internal/worker"
	"github.com/attachkit/linkcore/pkg/core"
)

var Version = "0.0.1"

// battery is the demo power provider: a finite charge pool.
type battery struct {
	charge float64
}

func (b *battery) RequestPower(amount float64) float64 {
	if amount > b.charge {
		granted := b.charge
		b.charge = 0
		return granted
	}
	b.charge -= amount
	return amount
}

// telemetryRecorder adapts the influx manager to the engine's recorder
// seam.
type telemetryRecorder struct {
	m *telemetry.Manager
}

func (r *telemetryRecorder) RecordLinkCreated(ev core.LinkCreated) error {
	return r.m.WriteLinkCreated(context.Background(), ev)
}

func (r *telemetryRecorder) RecordLinkBroken(ev core.LinkBroken) error {
	return r.m.WriteLinkBroken(context.Background(), ev)
}

func (r *telemetryRecorder) RecordMotorSample(s core.MotorSample) error {
	return r.m.WriteMotorSample(context.Background(), s)
}

// feedRecorder adapts the streaming feed to the recorder seam.
type feedRecorder struct {
	f *renderer.Feed
}

func (r *feedRecorder) RecordLinkCreated(ev core.LinkCreated) error {
	r.f.PublishLinkCreated(ev)
	return nil
}

func (r *feedRecorder) RecordLinkBroken(ev core.LinkBroken) error {
	r.f.PublishLinkBroken(ev)
	return nil
}

func (r *feedRecorder) RecordMotorSample(s core.MotorSample) error {
	r.f.PublishMotorSample(s)
	return nil
}

func main() {
	configDir := flag.String("config", ".", "directory containing linkcore.cfg.json")
	saveName := flag.String("save", "linksim demo", "save name for the recorded session")
	flag.Parse()

	if err := run(*configDir, *saveName); err != nil {
		fmt.Fprintln(os.Stderr, "linksim:", err)
		os.Exit(1)
	}
}

func run(configDir, saveName string) error {
	if err := config.Load(configDir); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logManager := logging.NewManager()
	graylogAddr := ""
	if config.GetBool("graylog.enabled") {
		graylogAddr = config.GetString("graylog.address")
	}
	logsDir := config.GetString("logsDir")
	if err := logManager.Setup(config.GetString("logLevel"), logsDir, graylogAddr); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logManager.Close() }()
	log := logManager.Logger
	log.Info().Str("version", Version).Msg("linksim starting")

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		MetricWriter: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	backend, err := storage.NewBackend(config.GetStorageConfig(), log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = backend.Close() }()
	if err := backend.StartSession(saveName, config.GetString("defaultTag")); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer func() { _ = backend.EndSession() }()

	// All lifecycle events and motor samples reach the backend through the
	// async pump so the simulation thread never blocks on a write.
	pump := worker.NewManager(backend, viper.GetDuration("storage.flushInterval"), log)
	pump.Start()
	defer pump.Stop()
	recorders := []sim.EventRecorder{pump}

	var tm *telemetry.Manager
	if viper.GetBool("influx.enabled") {
		tm = telemetry.NewManager(log, filepath.Join(logsDir, "telemetry_backup.lp.gz"))
		if err := tm.Connect(); err != nil {
			log.Warn().Err(err).Msg("telemetry unavailable")
			tm = nil
		} else {
			defer func() { _ = tm.Close() }()
			recorders = append(recorders, &telemetryRecorder{m: tm})
		}
	}

	var rend link.Renderer = &renderer.Null{}
	streamCfg := config.GetStreamingConfig()
	if streamCfg.Enabled {
		feed := renderer.NewFeed(renderer.Config{
			URL:    streamCfg.URL,
			Secret: config.GetString("streaming.secret"),
		}, log)
		if err := feed.Init(); err != nil {
			log.Warn().Err(err).Msg("streaming feed unavailable, visuals disabled")
		} else {
			defer func() { _ = feed.Close() }()
			if err := feed.StartSession(saveName, config.GetString("defaultTag")); err != nil {
				log.Warn().Err(err).Msg("streaming session start failed")
			}
			defer func() { _ = feed.EndSession() }()
			rend = feed
			recorders = append(recorders, &feedRecorder{f: feed})
		}
	}

	busLog := logging.NewBusLogger(log)
	bus, err := events.NewBus(busLog)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	scheduler, err := frame.NewScheduler(busLog)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	world := physics.NewWorld(log)
	simCfg := config.GetSimConfig()
	engine := sim.NewEngine(sim.Deps{
		Bus:            bus,
		World:          world,
		Builder:        joint.NewBuilder(world, log),
		Scheduler:      scheduler,
		Backend:        backend,
		Renderer:       rend,
		Recorders:      recorders,
		SampleInterval: simCfg.SampleInterval,
		Log:            log,
	})
	defer engine.Close()

	if tm != nil {
		perf := monitor.NewService(monitor.Dependencies{
			Sink:   tm,
			Ticks:  engine.Ticks,
			Joints: world.JointCount,
			Worker: pump,
			Log:    log,
		}, viper.GetDuration("monitor.interval"))
		perf.Start()
		defer perf.Stop()
	}

	if err := runScenario(engine, world, simCfg.TickRate, log); err != nil {
		return err
	}

	pump.Flush()
	if config.GetBool("archive.enabled") {
		uploadSession(backend, logsDir, log)
	}

	if err := provider.Flush(context.Background()); err != nil {
		log.Warn().Err(err).Msg("metric flush failed")
	}
	log.Info().Int("ticks", engine.Ticks()).Msg("linksim finished")
	return nil
}

// uploadSession dumps the session database and sends it to the archive
// frontend. Only local SQLite sessions can be dumped; anything else is
// already on a shared server.
func uploadSession(backend storage.Backend, logsDir string, log zerolog.Logger) {
	gb, ok := backend.(*gormdb.Backend)
	if !ok {
		log.Warn().Msg("archive upload needs a database backend")
		return
	}

	client := api.New(config.GetString("archive.url"), config.GetString("archive.secret"))
	if err := client.Healthcheck(); err != nil {
		log.Warn().Err(err).Msg("archive frontend unreachable")
		return
	}

	s := gb.Session().Get()
	dumpPath := filepath.Join(logsDir, fmt.Sprintf("session_%d.db", s.ID))
	if err := gb.DumpTo(dumpPath); err != nil {
		log.Warn().Err(err).Msg("session dump failed")
		return
	}

	meta := api.UploadMetadata{
		SaveName:      s.SaveName,
		Tag:           s.Tag,
		EngineVersion: s.EngineVersion,
		DurationSec:   time.Since(s.StartTime).Seconds(),
	}
	if err := client.Upload(dumpPath, meta); err != nil {
		log.Warn().Err(err).Msg("session upload failed")
		return
	}
	log.Info().Str("save", s.SaveName).Msg("session archived")
}

// demo scene layout: vessel 10 carries the winch housing and its connector,
// vessel 20 carries the socket 3m down the Z axis, facing back.
func buildScene(world *physics.World) (housing, socket, connector *core.Part) {
	node := core.AttachNode{
		Name:        "link",
		Orientation: mgl64.QuatIdent(),
		Size:        1,
		IsStack:     true,
	}

	housing = &core.Part{
		ID: 1, VesselID: 10, Title: "winch housing", Mass: 2,
		BreakingForce: 200, BreakingTorque: 150,
		Nodes: []core.AttachNode{node},
	}
	connector = &core.Part{
		ID: 3, VesselID: 10, Title: "cable connector", Mass: 0.05,
		BreakingForce: 80, BreakingTorque: 80,
		Nodes: []core.AttachNode{node},
	}
	socket = &core.Part{
		ID: 2, VesselID: 20, Title: "socket", Mass: 1,
		BreakingForce: 300, BreakingTorque: 100,
		Nodes: []core.AttachNode{node},
	}

	world.AddBody(&physics.Body{Part: 1, Root: 10, Name: housing.Title, Mass: housing.Mass, Radius: 0.2})
	world.AddBody(&physics.Body{Part: 3, Root: 10, Name: connector.Title, Mass: connector.Mass,
		Position: mgl64.Vec3{0, 0, 0.05}})
	world.AddBody(&physics.Body{Part: 2, Root: 20, Name: socket.Title, Mass: socket.Mass,
		Position: mgl64.Vec3{0, 0, 3},
		Rotation: mgl64.QuatRotate(3.14159265358979, mgl64.Vec3{0, 1, 0}),
		Radius:   0.2})
	return housing, socket, connector
}

func runScenario(engine *sim.Engine, world *physics.World, tickRate int, log zerolog.Logger) error {
	if tickRate <= 0 {
		tickRate = 50
	}
	dt := 1.0 / float64(tickRate)
	housing, socket, connector := buildScene(world)

	linkCfg := core.ConstraintConfig{
		MinLinkLength:    0.5,
		MaxLinkLength:    5,
		SourceAngleLimit: 30,
		TargetAngleLimit: 30,
		LinkType:         "cable20",
	}
	winchCfg := core.WinchConfig{
		MaxCableLength:    20,
		MotorMaxSpeed:     2,
		MotorAcceleration: 2,
		PowerDrainPerSec:  0.5,
		LockMaxErrorDist:  0.1,
		LockMaxErrorDir:   5,
		CableSpring:       1000,
		CableDamper:       10,
	}
	engine.LinkTypes().Set(linkCfg.LinkType, linkCfg)

	src, err := engine.AddSourcePeer(housing, "link", linkCfg)
	if err != nil {
		return err
	}
	if _, err := engine.AddTargetPeer(socket, "link", linkCfg); err != nil {
		return err
	}
	w, err := engine.AddWinch(housing, "link", connector, "link", linkCfg, winchCfg,
		&battery{charge: 100}, nil,
		func(msg string) { log.Info().Str("source", "winch").Msg(msg) })
	if err != nil {
		return err
	}

	tick := func(seconds float64) {
		steps := int(seconds / dt)
		for i := 0; i < steps; i++ {
			engine.Tick(dt)
		}
	}

	// Phase 1: tie the vessels together.
	if err := src.StartLinking(core.ModeTiePartsOnDifferentVessels); err != nil {
		return err
	}
	fail, err := engine.LinkPeers(housing.ID, socket.ID)
	if err != nil {
		return err
	}
	if fail != nil {
		return fmt.Errorf("link rejected: %s", fail.Reason)
	}
	tick(1)

	// Phase 2: deploy the winch, pay out 2m of cable, then wind back in.
	if err := w.Deploy(); err != nil {
		return err
	}
	if err := w.SetMotorTarget(1); err != nil {
		return err
	}
	tick(1.5)
	log.Info().Float64("cableLength", w.CableLength()).Msg("cable extended")

	if err := w.SetMotorTarget(-1); err != nil {
		return err
	}
	tick(3)
	log.Info().Str("motorState", w.State().String()).Msg("winch wound down")

	// Phase 3: pack both vessels, drop the live link as an unload would, then
	// unpack and verify the persisted identity brings it back.
	if err := engine.PackVessel(10); err != nil {
		return err
	}
	if err := engine.PackVessel(20); err != nil {
		return err
	}

	if err := src.BreakLink(core.BreakReasonAPI); err != nil {
		return err
	}

	if err := engine.UnpackVessel(20); err != nil {
		return err
	}
	if err := engine.UnpackVessel(10); err != nil {
		return err
	}
	tick(1)

	restored, _ := engine.PeerByPart(housing.ID)
	log.Info().
		Str("state", restored.State().String()).
		Int("joints", world.JointCount()).
		Msg("scene restored")
	return nil
}
