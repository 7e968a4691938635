package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

var testVocab = []string{
	"protocol", "tool", "discovery", "registry", "agent", "sandbox",
	"transport", "endpoint",
}

func record(repo, path, title, summary, raw string) *kb.RawRecord {
	return &kb.RawRecord{
		SourceRepo:  repo,
		Revision:    "rev-1",
		Path:        path,
		ContentType: kb.ContentTypeDocumentation,
		Title:       title,
		Summary:     summary,
		RawText:     raw,
		ContentHash: kb.ContentHash([]byte(raw)),
		ExtractedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newProcessor() *Processor {
	return New(Options{Vocabulary: testVocab, MinSharedTags: 2, PatternMinRepos: 3}, nil)
}

func TestProcessRepo_DerivesConceptsAndTags(t *testing.T) {
	p := newProcessor()
	res := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "docs/discovery.md", "Tool Discovery",
			"Agents find tools through the registry.",
			"The discovery protocol lets an agent query the tool registry."),
	})

	require.Len(t, res.Concepts, 1)
	c := res.Concepts[0]
	assert.Equal(t, "Tool Discovery", c.Name)
	assert.Equal(t, kb.ConceptID("Tool Discovery", "alpha"), c.ID)
	assert.Subset(t, c.Tags, []string{"agent", "discovery", "protocol", "registry", "tool"})
}

func TestProcessRepo_DropsEmptyTitles(t *testing.T) {
	p := newProcessor()
	res := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "a.md", "   ", "summary", "body"),
		record("alpha", "b.md", "Real Concept", "summary", "body"),
	})

	require.Len(t, res.Concepts, 1)
	assert.Equal(t, "Real Concept", res.Concepts[0].Name)
	assert.Empty(t, res.Errors, "unusable titles are filtered, not errors")
}

func TestProcessRepo_InvalidEncodingIsRecordedError(t *testing.T) {
	p := newProcessor()
	bad := record("alpha", "bad.md", "Bad", "s", string([]byte{0xff, 0xfe}))
	good := record("alpha", "good.md", "Good", "s", "fine")

	res := p.ProcessRepo([]*kb.RawRecord{bad, good})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "bad.md", res.Errors[0].Path)
	assert.Len(t, res.Concepts, 1, "batch continues past the bad record")
}

func TestProcessRepo_CoOccurrenceEdges(t *testing.T) {
	p := newProcessor()
	res := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "a.md", "Discovery Flow", "s", "tool discovery via registry protocol"),
		record("alpha", "b.md", "Registry Design", "s", "the registry protocol and tool metadata"),
		record("alpha", "c.md", "Unrelated", "s", "nothing relevant here"),
	})

	var co []*kb.Relationship
	for _, e := range res.Relationships {
		if e.Kind == kb.RelationCoOccursWith {
			co = append(co, e)
		}
	}
	require.Len(t, co, 1)
	e := co[0]
	assert.Greater(t, e.Weight, 0.0)
	assert.LessOrEqual(t, e.Weight, 1.0)
	assert.Less(t, e.FromConceptID, e.ToConceptID, "undirected edge stored canonically")
}

func TestProcessRepo_ReferenceEdges(t *testing.T) {
	p := newProcessor()
	res := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "a.md", "Transport Layer", "s", "see the endpoint manifest for details"),
		record("alpha", "b.md", "Endpoint Manifest", "s", "endpoints are declared here"),
	})

	var refs []*kb.Relationship
	for _, e := range res.Relationships {
		if e.Kind == kb.RelationReferences {
			refs = append(refs, e)
		}
	}
	require.Len(t, refs, 1)
	e := refs[0]
	assert.Equal(t, kb.ConceptID("Transport Layer", "alpha"), e.FromConceptID)
	assert.Equal(t, kb.ConceptID("Endpoint Manifest", "alpha"), e.ToConceptID)
	assert.Equal(t, 1.0, e.Weight, "exact mention carries full confidence")
}

func TestProcessRepo_Idempotent(t *testing.T) {
	p := newProcessor()
	records := []*kb.RawRecord{
		record("alpha", "a.md", "Discovery Flow", "s", "tool discovery via registry protocol"),
		record("alpha", "b.md", "Registry Design", "s", "the registry protocol and tool metadata"),
	}

	r1 := p.ProcessRepo(records)
	r2 := p.ProcessRepo(records)
	assert.Equal(t, r1.Concepts, r2.Concepts)
	assert.Equal(t, r1.Relationships, r2.Relationships)
}

func TestJoin_EquivalenceAcrossRepos(t *testing.T) {
	p := newProcessor()
	alpha := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "a.md", "Tool Discovery", "Agents find tools dynamically.", "tool discovery protocol registry"),
		record("alpha", "b.md", "Alpha Only", "s", "x"),
		record("alpha", "c.md", "Alpha Extra", "s", "y"),
	})
	beta := p.ProcessRepo([]*kb.RawRecord{
		record("beta", "d.md", "Tool Discovery", "Agents find tools dynamically.", "tool discovery registry"),
		record("beta", "e.md", "Beta Only", "s", "z"),
	})

	join := p.Join([]*RepoResult{alpha, beta})

	require.Len(t, join.Relationships, 1)
	e := join.Relationships[0]
	assert.Equal(t, kb.RelationEquivalentTo, e.Kind)
	assert.Equal(t, 1.0, e.Weight)
	assert.Less(t, e.FromConceptID, e.ToConceptID)
}

func TestJoin_PrincipleRequiresTwoRepos(t *testing.T) {
	p := newProcessor()
	alpha := p.ProcessRepo([]*kb.RawRecord{
		record("alpha", "a.md", "Lonely Concept", "Only one repository mentions this.", "x"),
	})

	join := p.Join([]*RepoResult{alpha})
	assert.Empty(t, join.Principles, "single-repo concepts never promote")

	for _, pr := range join.Principles {
		assert.GreaterOrEqual(t, pr.RepoCount, 2)
	}
}

func TestJoin_PrincipleAcrossThreeRepos(t *testing.T) {
	p := newProcessor()
	var results []*RepoResult
	for _, repo := range []string{"alpha", "beta", "gamma"} {
		results = append(results, p.ProcessRepo([]*kb.RawRecord{
			record(repo, "doc.md", "Tool Discovery",
				"Agents find tools through the registry.",
				"tool discovery protocol registry agent"),
		}))
	}

	join := p.Join(results)

	var found *kb.Principle
	for _, pr := range join.Principles {
		if pr.RepoCount == 3 {
			found = pr
		}
	}
	require.NotNil(t, found, "a principle spanning all three repositories")
	assert.Len(t, found.SupportingConcepts, 3)
}

func TestJoin_PrincipleDedupeIsIdempotent(t *testing.T) {
	p := newProcessor()
	results := []*RepoResult{
		p.ProcessRepo([]*kb.RawRecord{record("alpha", "a.md", "Shared Idea", "Agents find tools through the registry.", "x")}),
		p.ProcessRepo([]*kb.RawRecord{record("beta", "b.md", "Shared Idea", "Agents find tools through the registry.", "y")}),
	}

	j1 := p.Join(results)
	j2 := p.Join(results)
	assert.Equal(t, j1.Principles, j2.Principles)

	seen := map[string]bool{}
	for _, pr := range j1.Principles {
		assert.False(t, seen[pr.ID], "no duplicate principle ids")
		seen[pr.ID] = true
	}
}

func TestJoin_PatternPromotion(t *testing.T) {
	p := newProcessor()

	// Each repo carries the same shape: one doc references another and
	// both co-occur with a third through shared tags.
	build := func(repo string) *RepoResult {
		return p.ProcessRepo([]*kb.RawRecord{
			record(repo, "a.md", "Gateway Notes",
				"s", "see client handshake; tool discovery registry protocol agent"),
			record(repo, "b.md", "Client Handshake",
				"s", "tool discovery registry protocol"),
			record(repo, "c.md", "Registry Core",
				"s", "tool discovery registry protocol agent"),
		})
	}

	join := p.Join([]*RepoResult{build("alpha"), build("beta"), build("gamma")})
	require.Len(t, join.Patterns, 1)
	assert.Equal(t, 3, join.Patterns[0].RepoCount)

	// Two repositories are not enough.
	join2 := p.Join([]*RepoResult{build("alpha"), build("beta")})
	assert.Empty(t, join2.Patterns)
}

func TestDeriveTags(t *testing.T) {
	tags := DeriveTags("The Discovery PROTOCOL uses a tool registry", testVocab)
	assert.Equal(t, []string{"discovery", "protocol", "registry", "tool"}, tags)

	assert.Empty(t, DeriveTags("nothing matches here", testVocab))
}
