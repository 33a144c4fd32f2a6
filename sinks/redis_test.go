package sinks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
)

var _ = Describe("Redis sink", func() {
	var (
		server *miniredis.Miniredis
		ctx    context.Context
		people models.Chunk
	)

	// newSink builds the sink through the registry, as a job file would
	newSink := func(cfg map[string]any) models.Sink {
		cfg["uri"] = "redis://" + server.Addr()
		factory, err := builder.CreateSinkFactory(config.ComponentConfig{Type: "redis", Config: cfg},
			map[string]any{"prefix": "user"})
		Expect(err).NotTo(HaveOccurred())
		sink, err := factory()
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Open(ctx)).To(Succeed())
		DeferCleanup(sink.Close)
		return sink
	}

	BeforeEach(func() {
		var err error
		server, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Close)
		ctx = context.Background()
		people = models.Chunk{
			models.RecordOf("id", 1, "name", "Ada", "score", 9.5),
			models.RecordOf("id", 2, "name", "Grace", "score", 7),
		}
	})

	Context("hset", func() {
		It("writes one hash per record under keyspace and key fields", func() {
			sink := newSink(map[string]any{"command": "hset", "keyspace": "person", "keys": []any{"id"}})
			Expect(sink.Write(ctx, people)).To(Succeed())

			Expect(server.HGet("person:1", "name")).To(Equal("Ada"))
			Expect(server.HGet("person:2", "score")).To(Equal("7"))
			Expect(server.HGet("person:2", "id")).To(Equal("2"))
		})

		It("drops key fields from the payload with remove_fields", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id", "remove_fields": true})
			Expect(sink.Write(ctx, people)).To(Succeed())

			Expect(server.HKeys("person:1")).To(ConsistOf("name", "score"))
		})

		It("replaces existing hashes unless merging", func() {
			server.HSet("person:1", "email", "ada@example.com")

			sink := newSink(map[string]any{"keyspace": "person", "keys": "id"})
			Expect(sink.Capabilities().Merge).To(BeFalse())
			Expect(sink.Write(ctx, people[:1])).To(Succeed())
			Expect(server.HKeys("person:1")).NotTo(ContainElement("email"))

			server.HSet("person:1", "email", "ada@example.com")
			merging := newSink(map[string]any{"keyspace": "person", "keys": "id", "merge": true})
			Expect(merging.Capabilities().Merge).To(BeTrue())
			Expect(merging.Write(ctx, people[:1])).To(Succeed())
			Expect(server.HGet("person:1", "email")).To(Equal("ada@example.com"))
			Expect(server.HGet("person:1", "name")).To(Equal("Ada"))
		})

		It("applies a ttl", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id", "ttl": "1h"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.TTL("person:1")).To(Equal(time.Hour))
		})

		It("builds keys from an expression", func() {
			sink := newSink(map[string]any{"key": "$js: $vars.prefix + '/' + record.name.toLowerCase()"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.HGet("user/grace", "id")).To(Equal("2"))
		})

		It("runs inside MULTI/EXEC", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id", "multi_exec": true})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.Exists("person:1")).To(BeTrue())
			Expect(server.Exists("person:2")).To(BeTrue())
		})
	})

	Context("set", func() {
		It("stores records as JSON documents", func() {
			sink := newSink(map[string]any{"command": "set", "keyspace": "doc", "keys": "id"})
			Expect(sink.Write(ctx, people)).To(Succeed())

			value, err := server.Get("doc:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(MatchJSON(`{"id":1,"name":"Ada","score":9.5}`))
		})

		It("merges into existing documents", func() {
			Expect(server.Set("doc:1", `{"email":"ada@example.com","name":"Old"}`)).To(Succeed())

			sink := newSink(map[string]any{"command": "set", "keyspace": "doc", "keys": "id", "merge": true})
			Expect(sink.Write(ctx, people)).To(Succeed())

			value, _ := server.Get("doc:1")
			var doc map[string]any
			Expect(json.Unmarshal([]byte(value), &doc)).To(Succeed())
			Expect(doc).To(HaveKeyWithValue("email", "ada@example.com"))
			Expect(doc).To(HaveKeyWithValue("name", "Ada"))
			Expect(server.Exists("doc:2")).To(BeTrue())
		})

		It("stores a single field with raw format", func() {
			sink := newSink(map[string]any{"command": "set", "keyspace": "name", "keys": "id", "format": "raw", "field": "name"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.Get("name:2")).To(Equal("Grace"))
		})
	})

	Context("collections", func() {
		It("adds set members", func() {
			sink := newSink(map[string]any{"command": "sadd", "keyspace": "names", "field": "name"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.SMembers("names")).To(ConsistOf("Ada", "Grace"))
		})

		It("pushes to lists in order", func() {
			sink := newSink(map[string]any{"command": "rpush", "keyspace": "queue", "field": "id"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.List("queue")).To(Equal([]string{"1", "2"}))

			lsink := newSink(map[string]any{"command": "lpush", "keyspace": "stack", "field": "id"})
			Expect(lsink.Write(ctx, people)).To(Succeed())
			Expect(server.List("stack")).To(Equal([]string{"2", "1"}))
		})

		It("adds scored members", func() {
			sink := newSink(map[string]any{"command": "zadd", "keyspace": "leaderboard", "field": "name", "score": "score"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.ZScore("leaderboard", "Ada")).To(Equal(9.5))
			Expect(server.ZScore("leaderboard", "Grace")).To(Equal(7.0))
		})

		It("appends stream entries", func() {
			sink := newSink(map[string]any{"command": "xadd", "keyspace": "events", "maxlen": 1})
			Expect(sink.Write(ctx, people)).To(Succeed())

			entries, err := server.Stream("events")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Values).To(ContainElement("Grace"))
		})
	})

	Context("key commands", func() {
		It("deletes and expires keys", func() {
			Expect(server.Set("person:1", "x")).To(Succeed())
			Expect(server.Set("person:2", "y")).To(Succeed())

			expire := newSink(map[string]any{"command": "expire", "keyspace": "person", "keys": "id", "ttl": "30s"})
			Expect(expire.Write(ctx, people[1:])).To(Succeed())
			Expect(server.TTL("person:2")).To(Equal(30 * time.Second))

			del := newSink(map[string]any{"command": "del", "keyspace": "person", "keys": "id"})
			Expect(del.Write(ctx, people[:1])).To(Succeed())
			Expect(server.Exists("person:1")).To(BeFalse())
			Expect(server.Exists("person:2")).To(BeTrue())
		})

		It("writes nothing with noop", func() {
			sink := newSink(map[string]any{"command": "noop"})
			Expect(sink.Write(ctx, people)).To(Succeed())
			Expect(server.Keys()).To(BeEmpty())
		})
	})

	Context("failures", func() {
		It("fails permanently when a key field is missing", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "email"})
			err := sink.Write(ctx, people)
			Expect(err).To(HaveOccurred())
			Expect(models.Classify(err)).To(Equal(models.FailurePermanent))
			Expect(server.Keys()).To(BeEmpty())
		})

		It("classifies server error replies as permanent", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id"})
			server.SetError("ERR something went wrong")
			err := sink.Write(ctx, people)
			Expect(models.Classify(err)).To(Equal(models.FailurePermanent))
		})

		It("classifies a loading server as transient", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id"})
			server.SetError("LOADING Redis is loading the dataset in memory")
			err := sink.Write(ctx, people)
			Expect(models.Classify(err)).To(Equal(models.FailureTransient))
		})

		It("classifies a lost connection as transient", func() {
			sink := newSink(map[string]any{"keyspace": "person", "keys": "id"})
			server.Close()
			err := sink.Write(ctx, people)
			Expect(err).To(HaveOccurred())
			Expect(models.Classify(err)).To(Equal(models.FailureTransient))
		})

		It("fails to open when the server is unreachable", func() {
			addr := server.Addr()
			server.Close()
			sink, err := NewRedis(RedisOptions{URI: "redis://" + addr, Keyspace: "person"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(sink.Open(ctx)).NotTo(Succeed())
		})

		DescribeTable("rejects invalid options",
			func(opts RedisOptions) {
				_, err := NewRedis(opts, nil)
				Expect(err).To(HaveOccurred())
			},
			Entry("no key", RedisOptions{}),
			Entry("both keyspace and key", RedisOptions{Keyspace: "a", Key: config.NewDynamicValue("record.id")}),
			Entry("unknown command", RedisOptions{Keyspace: "a", Command: "publish"}),
			Entry("raw without field", RedisOptions{Keyspace: "a", Command: "set", Format: "raw"}),
			Entry("expire without ttl", RedisOptions{Keyspace: "a", Command: "expire"}),
			Entry("zadd without score", RedisOptions{Keyspace: "a", Command: "zadd"}),
			Entry("bad uri", RedisOptions{Keyspace: "a", URI: "http://localhost"}),
			Entry("negative ttl", RedisOptions{Keyspace: "a", TTL: -time.Second}),
		)
	})

	It("is safe to share across lanes", func() {
		sink, err := NewRedis(RedisOptions{Keyspace: "a"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Capabilities().ConcurrencySafe).To(BeTrue())
	})
})
