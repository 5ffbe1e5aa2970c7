package app

import (
	"time"

	"ctfex.com/pkg/orm"
	"ctfex.com/pkg/xredis"
)

// 总配置
type Config struct {
	Name            string         `mapstructure:"name"`
	Log             LogConfig      `mapstructure:"log"`
	HTTP            HTTPConfig     `mapstructure:"http"`
	MetricsAddr     string         `mapstructure:"metrics_addr"`
	Engine          EngineConfig   `mapstructure:"engine"`
	Ledger          LedgerConfig   `mapstructure:"ledger"`
	Redis           xredis.Config  `mapstructure:"redis"`
	Nats            NatsConfig     `mapstructure:"nats"`
	Otel            OtelConfig     `mapstructure:"otel"`
	MarketAuthority string         `mapstructure:"market_authority"`
	Markets         []MarketConfig `mapstructure:"markets"`
	Faucet          []FaucetConfig `mapstructure:"faucet"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // 空: logs/<name>.log, "-": 只打 stdout
}

type HTTPConfig struct {
	Addr       string        `mapstructure:"addr"`
	Rate       float64       `mapstructure:"rate"`
	Burst      int           `mapstructure:"burst"`
	SignDomain string        `mapstructure:"sign_domain"` // 空: 用 name
	SignSkew   time.Duration `mapstructure:"sign_skew"`
}

type EngineConfig struct {
	WALDir          string        `mapstructure:"wal_dir"`
	MailboxSize     int           `mapstructure:"mailbox_size"`
	BatchMax        int           `mapstructure:"batch_max"`
	EventBusSize    int           `mapstructure:"event_bus_size"`
	EnableCmdWAL    bool          `mapstructure:"enable_cmd_wal"`
	EnableOutbox    bool          `mapstructure:"enable_outbox"`
	EnablePublisher bool          `mapstructure:"enable_publisher"`
	PublisherPoll   time.Duration `mapstructure:"publisher_poll"`
	Codec           string        `mapstructure:"codec"` // binary | json
	Exchange        string        `mapstructure:"exchange_address"`
	// 非空时用 redis 锁保证同一个 wal 目录只有一个进程在写
	LeaseKey string        `mapstructure:"lease_key"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

type LedgerConfig struct {
	Driver string      `mapstructure:"driver"` // memory | mysql | sqlite
	DB     orm.Config  `mapstructure:"db"`
	Cache  CacheConfig `mapstructure:"cache"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type NatsConfig struct {
	URL           string `mapstructure:"url"` // 空: 进程内 broker
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type OtelConfig struct {
	Exporter string `mapstructure:"exporter"` // otlp | stdout | none
	Endpoint string `mapstructure:"endpoint"`
}

type MarketConfig struct {
	ConditionID string `mapstructure:"condition_id"`
	Collateral  string `mapstructure:"collateral"`
	EndTime     int64  `mapstructure:"end_time"`
}

// FaucetConfig 开发环境发钱; token: cash | yes | no
type FaucetConfig struct {
	Owner  string `mapstructure:"owner"`
	Market string `mapstructure:"market"`
	Token  string `mapstructure:"token"`
	Amount uint64 `mapstructure:"amount"`
}
