package config

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type Settings struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	RedisHost string
	RedisPort string

	KafkaBrokers []string
	FeedTopic    string

	NotifyChannel string
	LocationID    string
	StaffID       string
	HTTPAddr      string
	PublicBaseURL string

	ActionTimeout     time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	HistoryWindow     time.Duration
	PresenceTTL       time.Duration
}

func LoadSettings() Settings {
	return Settings{
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBName:     getenv("DB_NAME", "overcooked"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),

		RedisHost: getenv("REDIS_HOST", "localhost"),
		RedisPort: getenv("REDIS_PORT", "6379"),

		KafkaBrokers: strings.Split(getenv("KAFKA_BROKER", "localhost:9092"), ","),
		FeedTopic:    getenv("FEED_TOPIC", "staff-changes"),

		NotifyChannel: getenv("NOTIFY_CHANNEL", "staff_changes"),
		LocationID:    os.Getenv("LOCATION_ID"),
		StaffID:       os.Getenv("STAFF_ID"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8086"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost"),

		ActionTimeout:     getduration("ACTION_TIMEOUT", 10*time.Second),
		HeartbeatInterval: getduration("HEARTBEAT_INTERVAL", 5*time.Second),
		StaleAfter:        getduration("STALE_AFTER", 15*time.Second),
		BackoffBase:       getduration("BACKOFF_BASE", time.Second),
		BackoffMax:        getduration("BACKOFF_MAX", 30*time.Second),
		HistoryWindow:     getduration("HISTORY_WINDOW", 30*time.Minute),
		PresenceTTL:       getduration("PRESENCE_TTL", 20*time.Second),
	}
}

func (s Settings) PostgresDSN() string {
	return "host=" + s.DBHost + " port=" + s.DBPort + " user=" + s.DBUser +
		" password=" + s.DBPassword + " dbname=" + s.DBName + " sslmode=disable"
}

func (s Settings) RedisAddr() string {
	return s.RedisHost + ":" + s.RedisPort
}

func MustInitPostgres(s Settings) *sql.DB {
	db, err := sql.Open("postgres", s.PostgresDSN())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err = db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return db
}

func MustInitRedis(s Settings) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: s.RedisAddr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	return client
}

// NewKafkaReader builds a reader pinned to one partition of the feed topic.
// Staff sessions never join a consumer group: every session must see the whole
// stream of its location.
func NewKafkaReader(s Settings, partition int) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.KafkaBrokers,
		Topic:     s.FeedTopic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   500 * time.Millisecond,
	})
}

func NewKafkaWriter(s Settings) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(s.KafkaBrokers...),
		Topic:    s.FeedTopic,
		Balancer: &kafka.Hash{},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
