package ranker

import (
	"context"
	"fmt"
	"testing"
)

var benchWords = []string{
	"dragon", "empire", "detective", "murder", "garden", "recipe", "galaxy",
	"robot", "history", "war", "romance", "village", "ocean", "mountain",
	"wizard", "kingdom", "science", "mystery", "family", "journey",
}

func benchDocs(n int) []doc {
	docs := make([]doc, n)
	for i := range docs {
		text := ""
		for k := 0; k < 12; k++ {
			text += benchWords[(i*7+k*3)%len(benchWords)] + " "
		}
		docs[i] = doc{id: fmt.Sprintf("%013d", i), text: text, genres: []string{benchWords[i%len(benchWords)]}}
	}
	return docs
}

func BenchmarkSearch(b *testing.B) {
	for _, n := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("records=%d", n), func(b *testing.B) {
			enc := hashingEncoder()
			snap := buildSnapshot(b, enc, benchDocs(n))
			r := New(enc, Limits{})
			q := Query{Text: "wizard kingdom journey", TopK: 10, Weights: DefaultWeights()}
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := r.Search(ctx, snap, q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSimilarTo(b *testing.B) {
	enc := hashingEncoder()
	docs := benchDocs(5000)
	snap := buildSnapshot(b, enc, docs)
	r := New(enc, Limits{})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.SimilarTo(ctx, snap, docs[i%len(docs)].id, 10, DefaultWeights()); err != nil {
			b.Fatal(err)
		}
	}
}
