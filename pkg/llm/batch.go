package llm

import (
	"context"
	"golang.org/x/sync/errgroup"
)

// Batch sizes per enrichment kind. Grammar calls are heavier.
const (
	TranslationBatchSize = 20
	PhoneticBatchSize    = 20
	GrammarBatchSize     = 5
)

// BatchResult holds one output per input. Failed positions keep the zero
// value of T and their error in Errors.
type BatchResult[T any] struct {
	Values []T
	Errors []error
}

func (r BatchResult[T]) Failed() int {
	n := 0
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Batch runs call over texts in chunks of size. Calls inside a chunk run
// concurrently and a per-item error never aborts the chunk. progress is
// invoked after every chunk. Only cancellation of ctx fails the whole batch.
func Batch[T any](ctx context.Context, texts []string, size int, call func(context.Context, string) (T, error), progress func(done, total int)) (BatchResult[T], error) {
	if size < 1 {
		size = 1
	}
	res := BatchResult[T]{
		Values: make([]T, len(texts)),
		Errors: make([]error, len(texts)),
	}

	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				v, err := call(ctx, texts[i])
				if err != nil {
					res.Errors[i] = err
					return nil
				}
				res.Values[i] = v
				return nil
			})
		}
		_ = g.Wait()

		if progress != nil {
			progress(end, len(texts))
		}
	}
	return res, nil
}

func BatchTranslate(ctx context.Context, gen Generator, texts []string, targetLanguage string, size int, progress func(done, total int)) (BatchResult[string], error) {
	return Batch(ctx, texts, size, func(ctx context.Context, text string) (string, error) {
		return gen.Translate(ctx, text, targetLanguage)
	}, progress)
}

func BatchPhonetic(ctx context.Context, gen Generator, texts []string, accent string, size int, progress func(done, total int)) (BatchResult[string], error) {
	return Batch(ctx, texts, size, func(ctx context.Context, text string) (string, error) {
		return gen.GeneratePhonetic(ctx, text, accent)
	}, progress)
}

func BatchGrammar(ctx context.Context, gen Generator, texts []string, size int, progress func(done, total int)) (BatchResult[*Grammar], error) {
	return Batch(ctx, texts, size, gen.AnalyzeGrammar, progress)
}
