package chunker

import (
	"github.com/lodestone-ai/lodestone/pkg/types"
)

// chunkHierarchical runs fixed-token chunking at each configured granularity
// (fine to coarse) and links chunks across adjacent levels. Links are stored
// as indices into the adjacent level's slice, so the hierarchy carries no
// reference cycles. The returned slice is ordered level by level, finest
// first.
func (c *Chunker) chunkHierarchical(file types.SourceFile) ([]types.Chunk, error) {
	levels := make([][]types.Chunk, 0, len(c.opts.HierarchyLevels))

	for level, size := range c.opts.HierarchyLevels {
		overlap := size / 10
		chunks, err := c.chunkFixed(file, size, overlap, level)
		if err != nil {
			return nil, err
		}
		for i := range chunks {
			chunks[i].ChunkType = types.ChunkHierarchical
			// Chunk IDs include the type, so recompute after retagging.
			chunks[i].ComputeID()
		}
		levels = append(levels, chunks)
	}

	for level := 0; level < len(levels)-1; level++ {
		linkLevels(levels[level], levels[level+1], c.opts.HierarchyLinkThreshold)
	}

	var all []types.Chunk
	for _, lvl := range levels {
		all = append(all, lvl...)
	}
	return all, nil
}

// linkLevels links each coarse chunk to the fine chunks it covers: a link is
// made when |fine ∩ coarse| / |fine| exceeds the threshold, measured over
// word sets. Quadratic in chunks per level; callers bound chunks per file.
func linkLevels(fine, coarse []types.Chunk, threshold float64) {
	coarseSets := make([]map[string]struct{}, len(coarse))
	for i := range coarse {
		coarseSets[i] = wordSet(coarse[i].Text)
	}

	for fi := range fine {
		fineSet := wordSet(fine[fi].Text)
		if len(fineSet) == 0 {
			continue
		}
		for ci := range coarse {
			inter := 0
			for w := range fineSet {
				if _, hit := coarseSets[ci][w]; hit {
					inter++
				}
			}
			if float64(inter)/float64(len(fineSet)) > threshold {
				fine[fi].ParentIndex = ci
				coarse[ci].ChildIndexes = append(coarse[ci].ChildIndexes, fi)
				break
			}
		}
	}
}

func wordSet(text string) map[string]struct{} {
	words := splitWords(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w.text] = struct{}{}
	}
	return set
}
