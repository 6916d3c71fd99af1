package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/attachkit/linkcore/pkg/core"
)

// Bucket names used for link telemetry.
const (
	BucketLinkEvents   = "link_events"
	BucketMotorSamples = "motor_samples"
	BucketEnginePerf   = "engine_performance"
)

// DefaultBucketNames are the InfluxDB buckets provisioned on connect.
var DefaultBucketNames = []string{
	BucketLinkEvents,
	BucketMotorSamples,
	BucketEnginePerf,
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect establishes a connection to InfluxDB. When the endpoint is down,
// points are spooled to a gzip backup file instead.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		// create backup writer
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		err = m.setupOrganizationAndBuckets()
		if err != nil {
			return err
		}
		m.CreateWriters()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// get influxOrg
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)

		m.Logger.Trace().Str("bucket", bucket).Msg("InfluxDB writer created")
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
	} else {
		if m.BackupWriter == nil {
			return fmt.Errorf("influxDB client not initialized and backup writer not available")
		}

		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
		_, err := m.BackupWriter.Write([]byte(lineProtocol + "\n"))
		if err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
		}
	}

	return nil
}

// MotorSamplePoint builds the point for one winch telemetry sample.
func MotorSamplePoint(s core.MotorSample) *influxdb2_write.Point {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2_write.NewPointWithMeasurement("motor_sample").
		AddTag("part", fmt.Sprint(uint32(s.Part))).
		AddTag("state", s.State.String()).
		AddField("cable_length", s.CableLength).
		AddField("motor_speed", s.MotorSpeed).
		AddField("power_draw", s.PowerDraw).
		AddField("power_starved", s.PowerStarved).
		SetTime(ts)
}

// LinkCreatedPoint builds the point for a created link.
func LinkCreatedPoint(ev core.LinkCreated) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("link_event").
		AddTag("kind", "created").
		AddTag("mode", ev.Mode.String()).
		AddField("source", int64(ev.Source)).
		AddField("target", int64(ev.Target)).
		SetTime(ev.Time)
}

// LinkBrokenPoint builds the point for a broken link.
func LinkBrokenPoint(ev core.LinkBroken) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("link_event").
		AddTag("kind", "broken").
		AddTag("mode", ev.Mode.String()).
		AddTag("reason", string(ev.Reason)).
		AddField("source", int64(ev.Source)).
		AddField("target", int64(ev.Target)).
		SetTime(ev.Time)
}

// EnginePerf is one engine health observation.
type EnginePerf struct {
	Time        time.Time
	Ticks       int
	Joints      int
	QueueDepth  int
	Goroutines  int
	HeapAllocMB float64
	LastFlushMs float64
}

// EnginePerfPoint builds the point for an engine health observation.
func EnginePerfPoint(p EnginePerf) *influxdb2_write.Point {
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2_write.NewPointWithMeasurement("engine_perf").
		AddField("ticks", int64(p.Ticks)).
		AddField("joints", int64(p.Joints)).
		AddField("queue_depth", int64(p.QueueDepth)).
		AddField("goroutines", int64(p.Goroutines)).
		AddField("heap_alloc_mb", p.HeapAllocMB).
		AddField("last_flush_ms", p.LastFlushMs).
		SetTime(ts)
}

// WriteEnginePerf records an engine health observation.
func (m *Manager) WriteEnginePerf(ctx context.Context, p EnginePerf) error {
	return m.WritePoint(ctx, BucketEnginePerf, EnginePerfPoint(p))
}

// WriteMotorSample records one winch observation.
func (m *Manager) WriteMotorSample(ctx context.Context, s core.MotorSample) error {
	return m.WritePoint(ctx, BucketMotorSamples, MotorSamplePoint(s))
}

// WriteLinkCreated records a created link.
func (m *Manager) WriteLinkCreated(ctx context.Context, ev core.LinkCreated) error {
	return m.WritePoint(ctx, BucketLinkEvents, LinkCreatedPoint(ev))
}

// WriteLinkBroken records a broken link.
func (m *Manager) WriteLinkBroken(ctx context.Context, ev core.LinkBroken) error {
	return m.WritePoint(ctx, BucketLinkEvents, LinkBrokenPoint(ev))
}

// Close flushes writers and the backup file.
func (m *Manager) Close() error {
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		return m.BackupWriter.Close()
	}
	return nil
}
