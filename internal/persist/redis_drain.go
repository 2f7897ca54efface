package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// drainEnvelope is the wire record pushed onto the redis list. msgpack keeps
// the opaque payload bytes intact.
type drainEnvelope struct {
	Seq     uint64 `msgpack:"seq"`
	Player  string `msgpack:"player"`
	Save    string `msgpack:"save"`
	Tick    int64  `msgpack:"tick"`
	Payload []byte `msgpack:"payload"`
}

// Drainer pops the write-request queue into a redis list on a background
// goroutine. It never runs on the tick thread; the core's only interaction
// with persistence stays request-only.
type Drainer struct {
	queue  *Queue
	rdb    *redis.Client
	list   string
	batch  int
	logger *zap.Logger
}

// NewDrainer connects to redis and wires a drainer. The caller decides what
// to do on connection failure (typically run without a drain in dev).
func NewDrainer(queue *Queue, addr, list string, batch int, logger *zap.Logger) (*Drainer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 32
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("persist: redis ping failed (%s): %w", addr, err)
	}
	logger.Info("persistence drain connected", zap.String("addr", addr), zap.String("list", list))
	return &Drainer{queue: queue, rdb: rdb, list: list, batch: batch, logger: logger.Named("persist.drain")}, nil
}

// Run drains until ctx is canceled.
func (d *Drainer) Run(ctx context.Context) {
	idle := time.NewTicker(50 * time.Millisecond)
	defer idle.Stop()
	defer d.rdb.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}
		for i := 0; i < d.batch; i++ {
			req := d.queue.Dequeue()
			if req == nil {
				break
			}
			encoded, err := msgpack.Marshal(drainEnvelope{
				Seq:     req.Seq,
				Player:  string(req.Player),
				Save:    string(req.Save),
				Tick:    int64(req.Tick),
				Payload: req.Payload,
			})
			if err != nil {
				d.logger.Error("encode write request", zap.Error(err))
				continue
			}
			if err := d.rdb.LPush(ctx, d.list, encoded).Err(); err != nil {
				d.logger.Warn("redis push failed, request dropped", zap.Error(err))
			}
		}
	}
}
