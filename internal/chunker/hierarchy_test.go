package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

func TestChunkHierarchical_LevelsAndLinks(t *testing.T) {
	c := New(heuristicCounter{}, Options{
		HierarchyLevels:        []int{10, 40},
		HierarchyLinkThreshold: 0.3,
	}, nil)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("func handler processes one request and writes a structured response\n")
	}
	file := types.SourceFile{RelativePath: "svc.go", Language: "go", RawText: sb.String()}

	result := c.Chunk(file, StrategyHierarchical, 0, 0)

	require.NotNil(t, result)
	assert.False(t, result.Fallback)

	levels := map[int]int{}
	linked := 0
	for _, chunk := range result.Chunks {
		assert.Equal(t, types.ChunkHierarchical, chunk.ChunkType)
		levels[chunk.ContextLevel]++
		if chunk.ContextLevel == 0 && chunk.ParentIndex != types.NoParent {
			linked++
		}
	}

	// Both granularities produced chunks, and fine chunks found parents:
	// every 10-word window is fully contained in some 40-word window.
	assert.Greater(t, levels[0], levels[1])
	assert.Greater(t, linked, 0)
}

func TestLinkLevels_ThresholdRespected(t *testing.T) {
	fine := []types.Chunk{
		{Text: "alpha beta gamma", ParentIndex: types.NoParent},
		{Text: "zeta eta theta", ParentIndex: types.NoParent},
	}
	coarse := []types.Chunk{
		{Text: "alpha beta gamma delta epsilon"},
	}

	linkLevels(fine, coarse, 0.3)

	assert.Equal(t, 0, fine[0].ParentIndex)
	assert.Equal(t, types.NoParent, fine[1].ParentIndex)
	assert.Equal(t, []int{0}, coarse[0].ChildIndexes)
}

func TestChunkHierarchical_CapsChunksPerFile(t *testing.T) {
	c := New(heuristicCounter{}, Options{
		HierarchyLevels:  []int{2},
		MaxChunksPerFile: 5,
	}, nil)

	file := types.SourceFile{
		RelativePath: "big.txt",
		RawText:      strings.Repeat("word ", 500),
	}

	result := c.Chunk(file, StrategyHierarchical, 0, 0)
	assert.LessOrEqual(t, len(result.Chunks), 5)
}
