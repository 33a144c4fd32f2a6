package sinks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
)

var _ = Describe("JSONL sink", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("writes one object per line in field order", func() {
		var buf bytes.Buffer
		sink := NewJSONLWriter(&buf)
		Expect(sink.Open(ctx)).To(Succeed())
		Expect(sink.Write(ctx, models.Chunk{
			models.RecordOf("b", 1, "a", "x"),
			models.RecordOf("b", 2),
		})).To(Succeed())
		Expect(sink.Close()).To(Succeed())

		Expect(buf.String()).To(Equal("{\"b\":1,\"a\":\"x\"}\n{\"b\":2}\n"))
	})

	It("truncates or appends to a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "out.jsonl")
		Expect(os.WriteFile(path, []byte("{\"old\":true}\n"), 0o644)).To(Succeed())

		factory, err := builder.CreateSinkFactory(config.ComponentConfig{
			Type:   "jsonl",
			Config: map[string]any{"path": path, "append": true},
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		sink, err := factory()
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Open(ctx)).To(Succeed())
		Expect(sink.Write(ctx, models.Chunk{models.RecordOf("new", true)})).To(Succeed())
		Expect(sink.Close()).To(Succeed())

		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("{\"old\":true}\n{\"new\":true}\n"))

		truncating := NewJSONL(JSONLOptions{Path: path})
		Expect(truncating.Open(ctx)).To(Succeed())
		Expect(truncating.Write(ctx, models.Chunk{models.RecordOf("n", 1)})).To(Succeed())
		Expect(truncating.Close()).To(Succeed())

		content, err = os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("{\"n\":1}\n"))
	})

	It("keeps lines whole under concurrent writes", func() {
		var buf bytes.Buffer
		sink := NewJSONLWriter(&buf)
		Expect(sink.Capabilities().ConcurrencySafe).To(BeTrue())
		Expect(sink.Open(ctx)).To(Succeed())

		var wg sync.WaitGroup
		for lane := range 4 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := range 25 {
					Expect(sink.Write(ctx, models.Chunk{models.RecordOf("lane", lane, "i", i)})).To(Succeed())
				}
			}()
		}
		wg.Wait()
		Expect(sink.Close()).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(100))
		for _, line := range lines {
			Expect(line).To(MatchRegexp(`^\{"lane":\d,"i":\d+\}$`))
		}
	})

	It("rejects writes before open", func() {
		sink := NewJSONL(JSONLOptions{})
		err := sink.Write(ctx, models.Chunk{models.RecordOf("a", 1)})
		Expect(models.Classify(err)).To(Equal(models.FailurePermanent))
	})
})

var _ = Describe("Noop sink", func() {
	It("is registered and accepts everything", func() {
		factory, err := builder.CreateSinkFactory(config.ComponentConfig{Type: "noop"}, nil)
		Expect(err).NotTo(HaveOccurred())
		sink, err := factory()
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.Open(context.Background())).To(Succeed())
		Expect(sink.Write(context.Background(), models.Chunk{models.RecordOf("a", 1)})).To(Succeed())
		Expect(sink.Close()).To(Succeed())
		Expect(sink.Capabilities().ConcurrencySafe).To(BeTrue())
	})
})
