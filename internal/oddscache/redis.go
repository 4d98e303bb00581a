package oddscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis espelha as odds correntes em chaves de leitura rápida, no formato
// "odds:{matchID}:{marketID}:{selection}" => "2.50". Consumido por serviços
// externos de validação/telemetria; TTL curto porque a odd vira a cada tick.
type Redis struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client) *Redis {
	return &Redis{R: r, TTL: 30 * time.Second}
}

func key(matchID, marketID, selection string) string {
	return fmt.Sprintf("odds:%s:%s:%s", matchID, marketID, selection)
}

// SetOdds grava o par SIM/NÃO do mercado; implementa engine.OddsMirror
func (c *Redis) SetOdds(ctx context.Context, matchID, marketID string, yes, no float64) {
	pipe := c.R.Pipeline()
	pipe.Set(ctx, key(matchID, marketID, "YES"), formatOdd(yes), c.TTL)
	pipe.Set(ctx, key(matchID, marketID, "NO"), formatOdd(no), c.TTL)
	_, _ = pipe.Exec(ctx)
}

// CurrentOdd lê a odd espelhada de uma seleção
func (c *Redis) CurrentOdd(ctx context.Context, matchID, marketID, selection string) (string, error) {
	return c.R.Get(ctx, key(matchID, marketID, selection)).Result()
}

func formatOdd(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
