package correlate

import (
	"regexp"
	"sort"
	"sync"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// rawOccurrence is one entity mention before bucketing, carrying the
// original (non-canonicalized) name for display purposes.
type rawOccurrence struct {
	sha256       string
	originalName string
	entityType   domain.EntityType
	confidence   float64
	context      string
}

// bucketMap is a mutex-protected composite-key map from canonical variant
// key to accumulated occurrences, directly modeled on the reference
// correlator's CorrelationWindow (composite-key bucket map guarded by a
// single mutex), generalized here from a streaming single-event accumulator
// to a batch accumulation over all analyses in one case.
type bucketMap struct {
	mu      sync.Mutex
	buckets map[string][]rawOccurrence
}

func newBucketMap() *bucketMap {
	return &bucketMap{buckets: make(map[string][]rawOccurrence)}
}

// add indexes occ under every non-empty canonical variant key of its name
// and returns those keys. Buckets are not merged here: BuildCorrelatedEntities
// unions the returned keys, so buckets reached via any shared key are merged
// transitively when the occurrences are grouped.
func (b *bucketMap) add(name string, occ rawOccurrence) []string {
	variants := Canonicalize(name)
	keys := variants.Keys()
	if len(keys) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.buckets[k] = append(b.buckets[k], occ)
	}
	return keys
}

// capitalizedNGram matches runs of 1-3 capitalized words, a weak signal used
// only for OCR text per §4.5.
var capitalizedNGram = regexp.MustCompile(`([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+){0,2})`)

const imageEntityConfidence = 0.35 // lowest confidence band, weak signal only

// ExtractOccurrences pulls raw (name, occurrence) pairs out of one
// evidence's UnifiedAnalysis per the per-type extraction rules in §4.5.
func ExtractOccurrences(sha256 string, ua *domain.UnifiedAnalysis) []struct {
	Name string
	Occ  rawOccurrence
} {
	var out []struct {
		Name string
		Occ  rawOccurrence
	}
	emit := func(name string, etype domain.EntityType, conf float64, ctx string) {
		out = append(out, struct {
			Name string
			Occ  rawOccurrence
		}{Name: name, Occ: rawOccurrence{sha256: sha256, originalName: name, entityType: etype, confidence: conf, context: ctx}})
	}

	if ua.DocumentAnalysis != nil {
		for _, e := range ua.DocumentAnalysis.Entities {
			switch e.Type {
			case domain.EntityPerson, domain.EntityOrganization, domain.EntityEmailAddress:
				emit(e.Name, e.Type, e.Confidence, e.Context)
			}
		}
	}

	if ua.EmailAnalysis != nil {
		for _, p := range ua.EmailAnalysis.Participants {
			if p.DisplayName != "" {
				emit(p.DisplayName, domain.EntityPerson, ua.EmailAnalysis.ConfidenceOverall, "email participant")
			}
			if p.EmailAddress != "" {
				emit(p.EmailAddress, domain.EntityEmailAddress, ua.EmailAnalysis.ConfidenceOverall, "email participant")
			}
		}
	}

	if ua.ImageAnalysis != nil {
		for _, m := range capitalizedNGram.FindAllString(ua.ImageAnalysis.DetectedText, -1) {
			emit(m, domain.EntityOther, imageEntityConfidence, "ocr text")
		}
	}

	return out
}

var entityTypeRank = map[domain.EntityType]int{
	domain.EntityPerson: 4, domain.EntityOrganization: 3, domain.EntityEmailAddress: 2, domain.EntityOther: 1,
}

// BuildCorrelatedEntities runs the full bucket-then-aggregate pipeline over
// every analysis in a case, returning entities sorted by
// (occurrence_count desc, confidence_average desc).
func BuildCorrelatedEntities(analyses map[string]*domain.UnifiedAnalysis) []domain.CorrelatedEntity {
	bm := newBucketMap()
	// keyUnion is a union-find over canonical keys (key -> parent key), so
	// buckets reached transitively via any shared key are grouped together.
	keyUnion := make(map[string]string) // key -> representative root key

	var find func(string) string
	find = func(k string) string {
		root, ok := keyUnion[k]
		if !ok {
			keyUnion[k] = k
			return k
		}
		if root == k {
			return k
		}
		r := find(root)
		keyUnion[k] = r
		return r
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			keyUnion[ra] = rb
		}
	}

	for sha, ua := range analyses {
		for _, pair := range ExtractOccurrences(sha, ua) {
			keys := bm.add(pair.Name, pair.Occ)
			for i := 1; i < len(keys); i++ {
				union(keys[0], keys[i])
			}
			for _, k := range keys {
				find(k) // ensure registered
			}
		}
	}

	grouped := make(map[string][]rawOccurrence)
	for key, occs := range bm.buckets {
		root := find(key)
		grouped[root] = append(grouped[root], occs...)
	}

	var entities []domain.CorrelatedEntity
	for _, occs := range grouped {
		best := make(map[string]rawOccurrence) // sha256 -> highest-confidence occurrence
		for _, o := range occs {
			if cur, ok := best[o.sha256]; !ok || o.confidence > cur.confidence {
				best[o.sha256] = o
			}
		}
		if len(best) < 2 {
			continue
		}

		typeVotes := make(map[domain.EntityType]int)
		var sum float64
		var longestName string
		var occurrences []domain.EntityOccurrence
		for sha, o := range best {
			typeVotes[o.entityType]++
			sum += o.confidence
			if len(o.originalName) > len(longestName) {
				longestName = o.originalName
			}
			occurrences = append(occurrences, domain.EntityOccurrence{
				EvidenceSHA256: sha, OriginalName: o.originalName, Confidence: o.confidence,
				Context: o.context, Type: o.entityType,
			})
		}
		sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].EvidenceSHA256 < occurrences[j].EvidenceSHA256 })

		var winningType domain.EntityType
		bestVotes, bestRank := -1, -1
		for t, v := range typeVotes {
			rank := entityTypeRank[t]
			if v > bestVotes || (v == bestVotes && rank > bestRank) {
				winningType, bestVotes, bestRank = t, v, rank
			}
		}

		entities = append(entities, domain.CorrelatedEntity{
			EntityName:          longestName,
			EntityType:          winningType,
			OccurrenceCount:     len(best),
			ConfidenceAverage:   round4(sum / float64(len(best))),
			EvidenceOccurrences: occurrences,
		})
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].OccurrenceCount != entities[j].OccurrenceCount {
			return entities[i].OccurrenceCount > entities[j].OccurrenceCount
		}
		return entities[i].ConfidenceAverage > entities[j].ConfidenceAverage
	})
	return entities
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
