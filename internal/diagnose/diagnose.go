// Package diagnose computes the token/byte budget report `ctxguard
// diagnose` and `ctxguard current` print: per-kind byte totals,
// bloat-signature counts, a "heaviest records" top-N list, and the
// dry-run projected savings for each prescription.
package diagnose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
	"github.com/ctxguard/ctxguard/internal/strategy"
)

// ContextWindowTokens is the fixed context-window size diagnose reports
// percentages against, fixed at 200,000 regardless of the host agent's
// actual model, since ctxguard has no reliable way to learn the true
// window size from the transcript alone.
const ContextWindowTokens = 200_000

// HeaviestRecordCount is how many of the largest records diagnose lists.
const HeaviestRecordCount = 10

// EstimateTokens returns the estimated token count for a record: the sum
// of any explicit usage counters it carries, or ⌈byte_length/4⌉ over its
// textual content if it carries none.
func EstimateTokens(r record.Record) int {
	if u := r.MessageUsage(); u != nil {
		sum := u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
		if sum > 0 {
			return sum
		}
	}
	textLen := 0
	for _, b := range r.ContentBlocks() {
		textLen += len(b.Text) + len(b.Content)
	}
	if textLen == 0 {
		textLen = len(r.TextContent())
	}
	return ceilDiv(textLen, 4)
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// HeavyRecord is one entry in the diagnosis report's heaviest-records list.
type HeavyRecord struct {
	Index int
	UUID  string
	Kind  record.Kind
	Bytes int
}

// BloatSignatures counts records matching each known bloat pattern, the
// same signatures the strategy catalog's gentle/standard/aggressive tiers
// target.
type BloatSignatures struct {
	ProgressTicks         int
	FileHistorySnapshots  int
	SystemReminderTags    int
	ThinkingBlocksPresent int
	ThinkingSignatures    int
	OversizedToolResults  int

	// AdvisoryNearDuplicates counts pairs of document/tool_result payloads
	// that are highly similar but not byte-identical, so document-dedup's exact
	// SHA-256 match skips them. Advisory only: diagnose surfaces these as
	// further-savings candidates, nothing prunes on this signal.
	AdvisoryNearDuplicates int
}

// NearDuplicate is one advisory near-duplicate pairing: two payloads that
// are not exact matches (so document-dedup's hash check doesn't fire) but
// are similar enough, by edit distance, that a human reviewing the
// transcript would likely call them duplicates of each other.
type NearDuplicate struct {
	IndexA            int
	IndexB            int
	UUIDA             string
	UUIDB             string
	SimilarityPercent float64
}

// nearDuplicateMinBytes mirrors document-dedup's own size floor (spec
// §4.3 strategy 11): payloads smaller than this aren't worth an edit-
// distance comparison.
const nearDuplicateMinBytes = 1024

// nearDuplicateSimilarityThreshold is the minimum Levenshtein-derived
// similarity ratio for two non-identical payloads to be reported as near
// duplicates.
const nearDuplicateSimilarityThreshold = 0.85

// maxNearDuplicateCandidates bounds how many payloads diagnose will run
// pairwise comparisons over. The comparison is O(n^2); this keeps a
// diagnose pass over a transcript with thousands of oversized blocks from
// stalling on an advisory-only signal.
const maxNearDuplicateCandidates = 200

// PrescriptionProjection is the result of dry-running one named
// prescription against the diagnosed record set.
type PrescriptionProjection struct {
	Name          string
	BytesBefore   int
	BytesAfter    int
	BytesSaved    int
	RecordsBefore int
	RecordsAfter  int
}

// Report is the full diagnosis of a transcript.
type Report struct {
	TotalBytes       int
	RecordCount      int
	EstimatedTokens  int
	ContextPercent   float64
	BytesByKind      map[record.Kind]int
	Signatures       BloatSignatures
	Heaviest         []HeavyRecord
	Prescriptions    []PrescriptionProjection
	NearDuplicates   []NearDuplicate
}

// Diagnose builds the full report for records: byte/token totals, the
// per-kind byte breakdown, bloat-signature counts, the heaviest records,
// and — if registry is non-nil — a dry-run projected savings figure for
// every registered prescription.
func Diagnose(records []record.Record, registry *strategy.Registry, optsFor func(name string) strategy.Options) Report {
	report := Report{
		RecordCount: len(records),
		BytesByKind: make(map[record.Kind]int),
	}

	tokens := 0
	heaviest := make([]HeavyRecord, 0, len(records))
	for i := range records {
		r := records[i]
		b := r.ByteLen()
		report.TotalBytes += b
		kind := r.ClassifyKind()
		report.BytesByKind[kind] += b
		tokens += EstimateTokens(r)

		heaviest = append(heaviest, HeavyRecord{Index: i, UUID: r.UUID, Kind: kind, Bytes: b})

		countSignature(&report.Signatures, r, kind)
	}
	report.EstimatedTokens = tokens
	report.ContextPercent = 100 * float64(tokens) / float64(ContextWindowTokens)

	sort.SliceStable(heaviest, func(i, j int) bool { return heaviest[i].Bytes > heaviest[j].Bytes })
	if len(heaviest) > HeaviestRecordCount {
		heaviest = heaviest[:HeaviestRecordCount]
	}
	report.Heaviest = heaviest

	report.NearDuplicates = findNearDuplicates(records)
	report.Signatures.AdvisoryNearDuplicates = len(report.NearDuplicates)

	if registry != nil {
		for _, p := range registry.Prescriptions() {
			report.Prescriptions = append(report.Prescriptions, projectPrescription(registry, p, records, optsFor))
		}
		sort.Slice(report.Prescriptions, func(i, j int) bool {
			return report.Prescriptions[i].Name < report.Prescriptions[j].Name
		})
	}

	return report
}

func projectPrescription(registry *strategy.Registry, p action.Prescription, records []record.Record, optsFor func(name string) strategy.Options) PrescriptionProjection {
	before := sumBytes(records)
	after, _, err := strategy.Run(registry, p, records, optsFor)
	if err != nil {
		return PrescriptionProjection{Name: p.Name, BytesBefore: before, BytesAfter: before, RecordsBefore: len(records), RecordsAfter: len(records)}
	}
	afterBytes := sumBytes(after)
	return PrescriptionProjection{
		Name:          p.Name,
		BytesBefore:   before,
		BytesAfter:    afterBytes,
		BytesSaved:    before - afterBytes,
		RecordsBefore: len(records),
		RecordsAfter:  len(after),
	}
}

func sumBytes(records []record.Record) int {
	total := 0
	for _, r := range records {
		total += r.ByteLen()
	}
	return total
}

func countSignature(sigs *BloatSignatures, r record.Record, kind record.Kind) {
	switch kind {
	case record.KindProgressTick:
		sigs.ProgressTicks++
	case record.KindFileHistorySnapshot:
		sigs.FileHistorySnapshots++
	case record.KindSystemReminder:
		sigs.SystemReminderTags++
	}

	if blocks := r.ThinkingBlocks(); len(blocks) > 0 {
		sigs.ThinkingBlocksPresent++
		if recordHasThinkingSignature(r) {
			sigs.ThinkingSignatures++
		}
	}

	for _, b := range r.ContentBlocks() {
		if b.Type != "tool_result" {
			continue
		}
		payload := b.Text
		if len(b.Content) > 0 {
			payload = string(b.Content)
		}
		if len(payload) > 8*1024 || countLines(payload) > 100 {
			sigs.OversizedToolResults++
			break
		}
	}
}

type rawMessage struct {
	Content json.RawMessage `json:"content"`
}

type rawEnvelope struct {
	Message rawMessage `json:"message"`
}

// recordHasThinkingSignature reports whether any thinking block in r still
// carries its raw "signature" field. MessageContentBlock doesn't model
// that field (strategies that strip it rebuild the block map from
// scratch), so diagnose inspects the record's raw JSON directly rather
// than widening the shared block type for one report-only counter.
func recordHasThinkingSignature(r record.Record) bool {
	var env rawEnvelope
	if err := json.Unmarshal(r.Bytes(), &env); err != nil {
		return false
	}
	var blocks []map[string]json.RawMessage
	if err := json.Unmarshal(env.Message.Content, &blocks); err != nil {
		return false
	}
	for _, b := range blocks {
		var typ string
		if err := json.Unmarshal(b["type"], &typ); err != nil || typ != "thinking" {
			continue
		}
		if sig, ok := b["signature"]; ok && len(sig) > 0 {
			return true
		}
	}
	return false
}

// nearDupeCandidate is one document or tool_result payload large enough
// to be worth an edit-distance comparison against its peers.
type nearDupeCandidate struct {
	index   int
	uuid    string
	payload string
	hash    string
}

// candidatePayload returns b's payload and whether b is the kind of block
// document-dedup and the near-duplicate advisory both care about:
// document blocks, or tool_result blocks, of at least nearDuplicateMinBytes.
func candidatePayload(b record.MessageContentBlock) (string, bool) {
	if b.Type != "document" && b.Type != "tool_result" {
		return "", false
	}
	payload := b.Text
	if len(b.Content) > 0 {
		payload = string(b.Content)
	}
	if len(payload) < nearDuplicateMinBytes {
		return "", false
	}
	return payload, true
}

func collectNearDupeCandidates(records []record.Record) []nearDupeCandidate {
	var candidates []nearDupeCandidate
	for i := range records {
		for _, b := range records[i].ContentBlocks() {
			payload, ok := candidatePayload(b)
			if !ok {
				continue
			}
			sum := sha256.Sum256([]byte(payload))
			candidates = append(candidates, nearDupeCandidate{
				index:   i,
				uuid:    records[i].UUID,
				payload: payload,
				hash:    hex.EncodeToString(sum[:]),
			})
			if len(candidates) >= maxNearDuplicateCandidates {
				return candidates
			}
		}
	}
	return candidates
}

// findNearDuplicates is diagnose's advisory-only near-duplicate signal
// (spec §9 DESIGN NOTES: measured savings are authoritative, this is
// advisory). It never feeds back into a strategy's Propose: document-dedup
// and the rest of the catalog only ever act on exact matches.
func findNearDuplicates(records []record.Record) []NearDuplicate {
	candidates := collectNearDupeCandidates(records)
	if len(candidates) < 2 {
		return nil
	}

	dmp := diffmatchpatch.New()
	var found []NearDuplicate
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.hash == b.hash {
				// Exact match: document-dedup's own hash check already
				// covers this pairing, not an advisory signal.
				continue
			}
			similarity := payloadSimilarity(dmp, a.payload, b.payload)
			if similarity >= nearDuplicateSimilarityThreshold {
				found = append(found, NearDuplicate{
					IndexA: a.index, IndexB: b.index,
					UUIDA: a.uuid, UUIDB: b.uuid,
					SimilarityPercent: similarity * 100,
				})
			}
		}
	}
	return found
}

// payloadSimilarity returns a and b's similarity ratio in [0,1], derived
// from the Levenshtein distance between their diff sequence.
func payloadSimilarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(longer)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}
