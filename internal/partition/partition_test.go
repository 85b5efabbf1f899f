package partition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestPartitionSizesAndOrder(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, size, batches int }{
		{1, 30, 1}, {30, 30, 1}, {31, 30, 2}, {61, 30, 3}, {3, 2, 2}, {7, 1, 7},
	} {
		keywords := make([]string, tc.n)
		for i := range keywords {
			keywords[i] = fmt.Sprintf("kw-%d", i)
		}
		p := New(tc.size, nil)
		job, err := p.Partition("job", keywords, nil)
		require.NoError(t, err)
		require.Len(t, job.Batches, tc.batches)

		var joined []string
		for i, batch := range job.Batches {
			require.LessOrEqual(t, len(batch.Keywords), tc.size)
			require.Equal(t, i+1, batch.Key.Index)
			require.Equal(t, keyword.BatchPending, batch.Status)
			joined = append(joined, batch.Keywords...)
		}
		require.Equal(t, keywords, joined)
	}
}

func TestPartitionExample(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job, err := New(2, fixedClock{t: created}).Partition("abc", []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	require.Equal(t, created, job.CreatedAt)
	require.Equal(t, "abc-batch1", job.Batches[0].ID())
	require.Equal(t, []string{"a", "b"}, job.Batches[0].Keywords)
	require.Equal(t, "abc-batch2", job.Batches[1].ID())
	require.Equal(t, []string{"c"}, job.Batches[1].Keywords)
}

func TestPartitionDefaultsBatchSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBatchSize, New(0, nil).BatchSize())
}

func TestPartitionValidation(t *testing.T) {
	t.Parallel()

	p := New(2, nil)
	var verr *keyword.ValidationError

	_, err := p.Partition(" ", []string{"a"}, nil)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "id", verr.Field)

	_, err = p.Partition("job", nil, nil)
	require.ErrorAs(t, err, &verr)

	_, err = p.PartitionSource("job", Source{Inline: " , ,"})
	require.ErrorAs(t, err, &verr)

	_, err = p.PartitionSource("job", Source{})
	require.ErrorAs(t, err, &verr)
}

func TestParseSourceInlineKeepsDuplicates(t *testing.T) {
	t.Parallel()

	parsed, err := ParseSource(Source{Inline: " seo tips, go jobs ,seo tips,,"})
	require.NoError(t, err)
	require.Equal(t, []string{"seo tips", "go jobs", "seo tips"}, parsed.Keywords)
}

func TestParseSourceFile(t *testing.T) {
	t.Parallel()

	file := []byte("\xef\xbb\xbfKeyword,Volume\nbest coffee grinder,\"1,200\"\n\n  pour over kettle ,300\nburr vs blade\n")
	parsed, err := ParseSource(Source{File: file})
	require.NoError(t, err)
	require.Equal(t, []string{"best coffee grinder", "pour over kettle", "burr vs blade"}, parsed.Keywords)
	require.Equal(t, map[string]int{"best coffee grinder": 1200, "pour over kettle": 300}, parsed.Volumes)
}

func TestParseSourceCombinesInlineAndFile(t *testing.T) {
	t.Parallel()

	parsed, err := ParseSource(Source{Inline: "a", File: []byte("b\nc\n")})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, parsed.Keywords)
}

func TestEncodeKeywordsRoundTrip(t *testing.T) {
	t.Parallel()

	in := []string{"keyword", "shoes, red", `say "hi"`}
	data, err := EncodeKeywords(in)
	require.NoError(t, err)

	parsed, err := ParseSource(Source{File: data})
	require.NoError(t, err)
	require.Equal(t, in, parsed.Keywords)
}
