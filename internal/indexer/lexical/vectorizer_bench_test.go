package lexical

import (
	"context"
	"fmt"
	"testing"
)

func benchCorpus(n int) []string {
	subjects := []string{"dragon", "detective", "robot", "queen", "sailor", "witch", "chef", "pilot"}
	places := []string{"space", "london", "a small village", "the deep sea", "an ancient forest"}
	docs := make([]string, n)
	for i := range docs {
		docs[i] = fmt.Sprintf("A %s travels to %s and discovers a secret about %s number %d",
			subjects[i%len(subjects)], places[i%len(places)], subjects[(i/3)%len(subjects)], i)
	}
	return docs
}

func BenchmarkFitTransform(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		docs := benchCorpus(n)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := New(DefaultOptions()).FitTransform(context.Background(), docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTransform(b *testing.B) {
	v := New(DefaultOptions())
	if _, err := v.FitTransform(context.Background(), benchCorpus(5000)); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.Transform("a witch in space discovers a secret")
	}
}
