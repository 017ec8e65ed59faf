package xmldump

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocron/internal/model"
)

const sampleDump = `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.11/">
  <page>
    <title>Luke Skywalker</title>
    <ns>0</ns>
    <revision>
      <id>101</id>
      <text>Luke Skywalker is a Jedi. [[Category:Canon articles]]</text>
    </revision>
  </page>
  <page>
    <title>Category:Jedi</title>
    <ns>14</ns>
    <revision>
      <id>102</id>
      <text>A category of Force users. [[Category:Categories]]</text>
    </revision>
  </page>
  <page>
    <title>Talk:Luke Skywalker</title>
    <ns>1</ns>
    <revision>
      <id>103</id>
      <text>Discussion page content.</text>
    </revision>
  </page>
  <page>
    <title>Tatooine</title>
    <ns>0</ns>
    <revision>
      <id>104</id>
      <text>#REDIRECT [[Desert planet]]</text>
    </revision>
  </page>
</mediawiki>`

func TestProcessSkipsDisallowedNamespaces(t *testing.T) {
	p := New()
	var titles []string

	counts, err := p.Process(context.Background(), strings.NewReader(sampleDump), func(ctx context.Context, a model.RawArticle) error {
		titles = append(titles, a.Title)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 3, counts.Processed) // namespace 1 (Talk:) is skipped
	assert.ElementsMatch(t, []string{"Luke Skywalker", "Category:Jedi", "Tatooine"}, titles)
}

func TestProcessExtractsCategories(t *testing.T) {
	p := New()
	var got model.RawArticle

	_, err := p.Process(context.Background(), strings.NewReader(sampleDump), func(ctx context.Context, a model.RawArticle) error {
		if a.Title == "Luke Skywalker" {
			got = a
		}
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, got.Categories, "Category:Canon articles")
}

func TestProcessCountsRedirects(t *testing.T) {
	p := New()
	counts, err := p.Process(context.Background(), strings.NewReader(sampleDump), func(ctx context.Context, a model.RawArticle) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Redirects)
}

func TestProcessStopsOnEmitError(t *testing.T) {
	p := New()
	wantErr := errors.New("downstream failure")

	_, err := p.Process(context.Background(), strings.NewReader(sampleDump), func(ctx context.Context, a model.RawArticle) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestProcessRespectsContextCancellation(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, strings.NewReader(sampleDump), func(ctx context.Context, a model.RawArticle) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
