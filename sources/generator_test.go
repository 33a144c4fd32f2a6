package sources

import (
	"context"
	"testing"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Defaults(t *testing.T) {
	src, err := builder.CreateSource(config.ComponentConfig{Type: "generator"}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(DefaultGeneratorCount), src.Capabilities().EstimatedSize)

	records, _ := drain(t, src)
	require.Len(t, records, DefaultGeneratorCount)
	first, _ := records[0].Get("index")
	require.Equal(t, int64(1), first)
	last, _ := records[DefaultGeneratorCount-1].Get("index")
	require.Equal(t, int64(DefaultGeneratorCount), last)
}

func TestGenerator_Fields(t *testing.T) {
	src, err := builder.CreateSource(config.ComponentConfig{
		Type: "generator",
		Config: map[string]any{
			"count": 3,
			"start": 10,
			"fields": []any{
				map[string]any{"name": "id", "value": "$js: $index"},
				map[string]any{"name": "key", "value": "$js: $vars.prefix + ':' + record.id"},
				map[string]any{"name": "kind", "value": "person"},
			},
		},
	}, map[string]any{"prefix": "person"})
	require.NoError(t, err)

	records, parseErrs := drain(t, src)
	require.Empty(t, parseErrs)
	require.Len(t, records, 3)
	require.Equal(t, "person:12", records[2].GetString("key"))
	require.Equal(t, "person", records[0].GetString("kind"))
	require.Equal(t, []string{"id", "key", "kind"}, records[0].Keys())
}

func TestGenerator_EvaluationErrorIsParseError(t *testing.T) {
	gen, err := NewGenerator(2, 1, []config.FieldSpec{
		{Name: "bad", Value: config.NewDynamicValue("missing.field")},
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, gen.Open(ctx))
	_, err = gen.Next(ctx)
	require.Equal(t, models.FailureParse, models.Classify(err))
}

func TestGenerator_InvalidCount(t *testing.T) {
	_, err := NewGenerator(-1, 1, nil, nil)
	require.Error(t, err)
}

func TestSlice(t *testing.T) {
	original := models.RecordOf("id", 1)
	src := NewSlice(original, models.RecordOf("id", 2))
	require.Equal(t, int64(2), src.Capabilities().EstimatedSize)

	records, _ := drain(t, src)
	require.Len(t, records, 2)
	records[0].Set("id", 99)
	require.Equal(t, "1", original.GetString("id"), "records are copies")

	registered, err := builder.CreateSource(config.ComponentConfig{
		Type:   "slice",
		Config: map[string]any{"records": []any{map[string]any{"name": "Ada"}}},
	}, nil)
	require.NoError(t, err)
	records, _ = drain(t, registered)
	require.Len(t, records, 1)
	require.Equal(t, "Ada", records[0].GetString("name"))
}
