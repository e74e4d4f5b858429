package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"noticer/internal/task"
	logx "noticer/pkg/logx"
)

// redisStore keeps one hash per task under <prefix>task:<id>, the id index in
// the sorted set <prefix>tasks (score = id), and the id sequence in
// <prefix>task:seq. Absent hash fields are NULL columns.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "noticer:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrUnavailable, addr, err)
	}
	log.Debug("redis store ready", logx.String("addr", addr), logx.String("prefix", prefix))
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) taskKey(id int64) string { return s.prefix + "task:" + strconv.FormatInt(id, 10) }
func (s *redisStore) indexKey() string        { return s.prefix + "tasks" }
func (s *redisStore) seqKey() string          { return s.prefix + "task:seq" }

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) List(ctx context.Context) ([]task.Task, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list task ids: %w", ErrUnavailable, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed task index member", logx.String("member", m))
			continue
		}
		ids = append(ids, id)
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.taskKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %w", ErrUnavailable, err)
	}

	out := make([]task.Task, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			// Indexed but deleted.
			continue
		}
		r, err := decodeHash(id, fields)
		if err != nil {
			s.log.Warn("skipping undecodable task", logx.TaskID(id), logx.Err(err))
			continue
		}
		out = append(out, r.task())
	}
	return out, nil
}

func (s *redisStore) Get(ctx context.Context, id int64) (task.Task, error) {
	fields, err := s.client.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: get task %d: %w", ErrUnavailable, id, err)
	}
	if len(fields) == 0 {
		return task.Task{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	r, err := decodeHash(id, fields)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: decode task %d: %w", ErrUnavailable, id, err)
	}
	return r.task(), nil
}

// saveRunState updates the run-state fields only while the hash exists, so a
// concurrently deleted task never comes back as a partial record.
var saveRunState = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "execute_times", ARGV[1])
if ARGV[2] == "" then
	redis.call("HDEL", KEYS[1], "last_executed_at")
else
	redis.call("HSET", KEYS[1], "last_executed_at", ARGV[2])
end
return 1
`)

func (s *redisStore) Save(ctx context.Context, t task.Task) error {
	r := toRow(t)
	var at string
	if r.LastExecutedAt != nil {
		at = r.LastExecutedAt.Format(time.RFC3339Nano)
	}
	n, err := saveRunState.Run(ctx, s.client, []string{s.taskKey(t.ID)}, r.ExecuteTimes, at).Int()
	if err != nil {
		return fmt.Errorf("%w: save task %d: %w", ErrUnavailable, t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, t.ID)
	}
	return nil
}

func (s *redisStore) Create(ctx context.Context, t task.Task) (int64, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: allocate task id: %w", ErrUnavailable, err)
	}
	r := toRow(t)
	r.ID = id
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.taskKey(id), encodeHash(r))
		p.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: create task: %w", ErrUnavailable, err)
	}
	return id, nil
}

func encodeHash(r row) map[string]any {
	m := map[string]any{
		"name":          r.Name,
		"description":   r.Description,
		"execute_times": r.ExecuteTimes,
	}
	putInt := func(k string, p *int) {
		if p != nil {
			m[k] = *p
		}
	}
	putBits := func(k string, p *uint32) {
		if p != nil {
			m[k] = *p
		}
	}
	putInt("expect_times", r.ExpectTimes)
	putBits("month", r.Month)
	putBits("day", r.Day)
	putBits("weekday", r.Weekday)
	putInt("timepoint", r.Timepoint)
	putInt("time_gap", r.TimeGap)
	putInt("duration_start", r.DurationStart)
	putInt("duration_end", r.DurationEnd)
	if r.LastExecutedAt != nil {
		m["last_executed_at"] = r.LastExecutedAt.Format(time.RFC3339Nano)
	}
	return m
}

func decodeHash(id int64, f map[string]string) (row, error) {
	r := row{ID: id, Name: f["name"], Description: f["description"]}
	var err error
	getInt := func(k string) *int {
		v, ok := f[k]
		if !ok || err != nil {
			return nil
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("field %s: %w", k, perr)
			return nil
		}
		return &n
	}
	getBits := func(k string) *uint32 {
		v, ok := f[k]
		if !ok || err != nil {
			return nil
		}
		n, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil {
			err = fmt.Errorf("field %s: %w", k, perr)
			return nil
		}
		b := uint32(n)
		return &b
	}
	r.ExpectTimes = getInt("expect_times")
	r.Month = getBits("month")
	r.Day = getBits("day")
	r.Weekday = getBits("weekday")
	r.Timepoint = getInt("timepoint")
	r.TimeGap = getInt("time_gap")
	r.DurationStart = getInt("duration_start")
	r.DurationEnd = getInt("duration_end")
	if n := getInt("execute_times"); n != nil {
		r.ExecuteTimes = *n
	}
	if err != nil {
		return row{}, err
	}
	if v, ok := f["last_executed_at"]; ok && v != "" {
		at, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			return row{}, fmt.Errorf("field last_executed_at: %w", perr)
		}
		r.LastExecutedAt = &at
	}
	return r, nil
}
