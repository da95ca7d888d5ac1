package adapter_test

import (
	"context"
	"math"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/adapter"
	"github.com/m-mizutani/omoide/pkg/model"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	emb, err := adapter.NewHashEmbedder(256)
	gt.NoError(t, err)
	gt.Equal(t, emb.Dimension(), 256)

	a, err := emb.Embed(ctx, "Met with client about project")
	gt.NoError(t, err)
	gt.A(t, a).Length(256)
	gt.True(t, math.Abs(dot(a, a)-1) < 1e-5).Describe("vector is unit length")

	again, err := emb.Embed(ctx, "met with CLIENT about project!")
	gt.NoError(t, err)
	gt.True(t, math.Abs(dot(a, again)-1) < 1e-5).Describe("case and punctuation are ignored")

	related, err := emb.Embed(ctx, "client project meeting")
	gt.NoError(t, err)
	unrelated, err := emb.Embed(ctx, "swimming lessons")
	gt.NoError(t, err)
	gt.True(t, dot(a, related) > dot(a, unrelated))
}

func TestHashEmbedderRejectsEmptyText(t *testing.T) {
	emb, err := adapter.NewHashEmbedder(8)
	gt.NoError(t, err)

	_, err = emb.Embed(context.Background(), " ... ")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagEmbedding))

	_, err = adapter.NewHashEmbedder(0)
	gt.Error(t, err)
}
