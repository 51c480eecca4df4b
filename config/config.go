package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"matchbook/domain/orderbook"
	"matchbook/infra/instruments"
)

type AppConfig struct {
	ServiceName string           `yaml:"service_name"`
	LogLevel    string           `yaml:"log_level"`
	Engine      EngineConfig     `yaml:"engine"`
	Journal     JournalConfig    `yaml:"journal"`
	Outbox      OutboxConfig     `yaml:"outbox"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	GRPC        GRPCConfig       `yaml:"grpc"`
	Snapshot    SnapshotConfig   `yaml:"snapshot"`
	Simulation  SimulationConfig `yaml:"simulation"`
}

type EngineConfig struct {
	Universe         int                      `yaml:"universe"`
	TickSize         string                   `yaml:"tick_size"`
	MinPrice         string                   `yaml:"min_price"`
	MaxPrice         string                   `yaml:"max_price"`
	InstrumentsFile  string                   `yaml:"instruments_file"`
	InstrumentsRedis *instruments.RedisConfig `yaml:"instruments_redis"`
	ReclaimInterval  time.Duration            `yaml:"reclaim_interval"`
	ReclaimEvery     uint64                   `yaml:"reclaim_every"`
	RetireRing       uint64                   `yaml:"retire_ring"`
}

// JournalConfig enables the audit journal when Dir is set.
type JournalConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segment_size"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	Codec           string        `yaml:"codec"`
	Text            bool          `yaml:"text"`
}

// OutboxConfig enables the trade outbox when Dir is set.
type OutboxConfig struct {
	Dir string `yaml:"dir"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	OrderTopic   string        `yaml:"order_topic"`
	TradeTopic   string        `yaml:"trade_topic"`
	Codec        string        `yaml:"codec"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRetries   uint32        `yaml:"max_retries"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// SnapshotConfig enables periodic snapshots when Dir is set.
type SnapshotConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

type SimulationConfig struct {
	MinBrokers      int           `yaml:"min_brokers"`
	Brokers         int           `yaml:"brokers"`
	OrdersPerBroker int           `yaml:"orders_per_broker"`
	RandomOrders    bool          `yaml:"random_orders"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	MaxArrival      time.Duration `yaml:"max_arrival"`
	Seed            uint64        `yaml:"seed"`
}

// Load load config from file and environment variables. An empty
// filePath falls back to $CONFIG_FILE.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	return Parse(configBytes)
}

// Parse expands ${VAR} references, decodes, applies defaults and
// validates.
func Parse(configBytes []byte) (*AppConfig, error) {
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.SetDefaults()
	return cfg
}

func (c *AppConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "matchbook"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	e := &c.Engine
	if e.Universe == 0 {
		e.Universe = 1024
	}
	if e.TickSize == "" {
		e.TickSize = "1"
	}
	if e.MinPrice == "" {
		e.MinPrice = "1"
	}
	if e.MaxPrice == "" {
		e.MaxPrice = "999"
	}
	if e.ReclaimInterval == 0 {
		e.ReclaimInterval = 100 * time.Millisecond
	}
	if e.ReclaimEvery == 0 {
		e.ReclaimEvery = 1024
	}
	if e.RetireRing == 0 {
		e.RetireRing = 1 << 14
	}

	if c.Journal.Codec == "" {
		c.Journal.Codec = "json"
	}
	if c.Kafka.OrderTopic == "" {
		c.Kafka.OrderTopic = "orders"
	}
	if c.Kafka.TradeTopic == "" {
		c.Kafka.TradeTopic = "trades"
	}
	if c.Kafka.Codec == "" {
		c.Kafka.Codec = "json"
	}
	if c.Kafka.PollInterval == 0 {
		c.Kafka.PollInterval = 250 * time.Millisecond
	}
	if c.Kafka.MaxRetries == 0 {
		c.Kafka.MaxRetries = 5
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = time.Minute
	}

	s := &c.Simulation
	if s.Brokers == 0 {
		s.Brokers = 10
	}
	if s.OrdersPerBroker == 0 {
		s.OrdersPerBroker = 100
	}
	if s.MaxDelay == 0 {
		s.MaxDelay = 10 * time.Millisecond
	}
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Engine.Universe < 0 {
		errs = append(errs, fmt.Errorf("engine.universe must be positive, got %d", c.Engine.Universe))
	}
	if r := c.Engine.RetireRing; r&(r-1) != 0 {
		errs = append(errs, fmt.Errorf("engine.retire_ring must be a power of two, got %d", r))
	}
	if _, err := c.Engine.Ladder(); err != nil {
		errs = append(errs, err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Kafka.Enabled && c.Outbox.Dir == "" {
		errs = append(errs, errors.New("outbox.dir is required when kafka is enabled"))
	}
	if c.Simulation.MinBrokers < 0 || c.Simulation.Brokers < 0 || c.Simulation.OrdersPerBroker < 0 {
		errs = append(errs, errors.New("simulation counts must not be negative"))
	}
	if c.Simulation.MinBrokers > c.Simulation.Brokers {
		errs = append(errs, fmt.Errorf("simulation.min_brokers %d above brokers %d", c.Simulation.MinBrokers, c.Simulation.Brokers))
	}
	if c.Simulation.MaxArrival < 0 {
		errs = append(errs, errors.New("simulation.max_arrival must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Ladder parses the price grid.
func (e EngineConfig) Ladder() (orderbook.Ladder, error) {
	tick, err := decimal.NewFromString(e.TickSize)
	if err != nil {
		return orderbook.Ladder{}, fmt.Errorf("engine.tick_size: %w", err)
	}
	lo, err := decimal.NewFromString(e.MinPrice)
	if err != nil {
		return orderbook.Ladder{}, fmt.Errorf("engine.min_price: %w", err)
	}
	hi, err := decimal.NewFromString(e.MaxPrice)
	if err != nil {
		return orderbook.Ladder{}, fmt.Errorf("engine.max_price: %w", err)
	}
	return orderbook.NewLadder(tick, lo, hi)
}
