package config

import (
	"os"
	"strconv"
	"time"

	"github.com/drope29/api-flashbets/pkg/contracts/topics"
)

// Config centraliza variáveis de ambiente e parâmetros de execução do servidor
// Inclui conexões, portas, duração da janela e parâmetros do match de debug
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	PostgresDSN  string // vazio desativa o archive
	RedisAddr    string // vazio desativa o espelho de odds e o pub/sub
	KafkaBrokers string // vazio desativa a publicação de eventos

	// Tópicos Kafka de saída
	TopicBetAccepted   string
	TopicBetSettled    string
	TopicMatchFinished string

	// Canal Redis Pub/Sub com o espelho dos deltas de broadcast.
	// Subscribe liga o modo réplica de gateway: o processo consome o espelho
	// e repassa pro hub local, em vez de publicar nele.
	BroadcastChannel   string
	BroadcastSubscribe bool

	// Portas
	HTTPPort    string // API pública + WebSocket
	MetricsPort string // exclusiva para /metrics e /healthz

	// Motor de apostas
	WindowDuration      time.Duration // duração de cada janela de aposta
	InitialBalanceCents int64         // saldo inicial de contas novas
	MatchAbandonTimeout time.Duration // LIVE sem progresso -> void
	MatchRetention      time.Duration // FINISHED -> descarte

	// Match sintético de debug
	DebugMatch bool
}

// Load carrega variáveis de ambiente e aplica defaults
func Load() Config {
	return Config{
		Env:         getEnv("ENV", "local"),
		ServiceName: getEnv("SERVICE_NAME", "flashbets-server"),

		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),

		TopicBetAccepted:   getEnv("KAFKA_TOPIC_BET_ACCEPTED", topics.BetAccepted),
		TopicBetSettled:    getEnv("KAFKA_TOPIC_BET_SETTLED", topics.BetSettled),
		TopicMatchFinished: getEnv("KAFKA_TOPIC_MATCH_FINISHED", topics.MatchFinished),

		BroadcastChannel:   getEnv("REDIS_BROADCAST_CHANNEL", "flashbets_broadcast"),
		BroadcastSubscribe: getBool("REDIS_BROADCAST_SUBSCRIBE", false),

		HTTPPort:    getEnv("HTTP_PORT", "3001"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),

		WindowDuration:      getDuration("WINDOW_DURATION", 60*time.Second),
		InitialBalanceCents: getInt64("INITIAL_BALANCE_CENTS", 100000), // R$ 1.000,00
		MatchAbandonTimeout: getDuration("MATCH_ABANDON_TIMEOUT", 30*time.Minute),
		MatchRetention:      getDuration("MATCH_RETENTION", 10*time.Minute),

		DebugMatch: getBool("DEBUG_MATCH", true),
	}
}

// getEnv retorna o valor da variável de ambiente ou o default
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
