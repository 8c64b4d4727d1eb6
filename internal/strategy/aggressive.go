package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/ctxguard/ctxguard/internal/action"
	"github.com/ctxguard/ctxguard/internal/record"
)

func aggressiveStrategies() []Strategy {
	return []Strategy{
		httpSpamStrategy{},
		errorRetryCollapseStrategy{},
		backgroundPollCollapseStrategy{},
		documentDedupStrategy{},
		megaBlockTrimStrategy{},
		envelopeStripStrategy{},
	}
}

// httpSpamStrategy collapses a run of three or more consecutive records
// matching the host agent's HTTP-request log sentinel.
type httpSpamStrategy struct{}

func (httpSpamStrategy) Name() string      { return "http-spam" }
func (httpSpamStrategy) Tier() action.Tier { return action.TierAggressive }
func (httpSpamStrategy) Describe() string {
	return "Collapses runs of three or more consecutive HTTP-request log lines into one summary record."
}

func (s httpSpamStrategy) Propose(records []record.Record, opts Options) []action.Action {
	minRun := opts.IntOption("min_run", 3)
	return collapseRunsMin(records, s.Name(), minRun, func(r record.Record) bool {
		return r.IsHTTPSpam()
	})
}

// errorRetryCollapseStrategy replaces a run of an error record followed by
// one or more retries producing the same error signature with a single
// synthetic record summarizing the attempt count and final outcome. The
// run is capped at max_run records so an unrelated later failure that
// happens to share a generic signature isn't swept into a much older run.
type errorRetryCollapseStrategy struct{}

func (errorRetryCollapseStrategy) Name() string      { return "error-retry-collapse" }
func (errorRetryCollapseStrategy) Tier() action.Tier { return action.TierAggressive }
func (errorRetryCollapseStrategy) Describe() string {
	return "Collapses an error followed by same-signature retries into one attempt-count summary."
}

func (s errorRetryCollapseStrategy) Propose(records []record.Record, opts Options) []action.Action {
	maxRun := opts.IntOption("max_run", 20)

	var actions []action.Action
	i := 0
	for i < len(records) {
		sig := records[i].ErrorSignature()
		if sig == "" {
			i++
			continue
		}
		start := i
		lastText := records[i].TextContent()
		j := i + 1
		for j < len(records) && j-start < maxRun && records[j].ErrorSignature() == sig {
			lastText = records[j].TextContent()
			j++
		}
		end := j - 1
		count := end - start + 1
		if count < 2 {
			i = j
			continue
		}
		collapsed, ok := buildCollapsedRecord(records[start], s.Name(), count, lastText)
		if ok {
			actions = append(actions, action.Action{
				Kind:        action.ReplaceRange,
				StartUUID:   records[start].UUID,
				EndUUID:     records[end].UUID,
				Replacement: &collapsed,
				Strategy:    s.Name(),
				Reason:      "collapsed repeated same-signature error/retry attempts",
			})
		}
		i = j
	}
	return actions
}

// backgroundPollCollapseStrategy collapses consecutive polling/status-query
// records with no intervening genuine user turn into one summary record.
type backgroundPollCollapseStrategy struct{}

func (backgroundPollCollapseStrategy) Name() string      { return "background-poll-collapse" }
func (backgroundPollCollapseStrategy) Tier() action.Tier { return action.TierAggressive }
func (backgroundPollCollapseStrategy) Describe() string {
	return "Collapses consecutive background-task polling records into one summary record."
}

func (s backgroundPollCollapseStrategy) Propose(records []record.Record, opts Options) []action.Action {
	return collapseRuns(records, s.Name(), func(r record.Record) bool {
		return r.ClassifyKind() != record.KindUser && r.IsBackgroundPoll()
	})
}

const documentDedupMinBytes = 1024

// documentDedupStrategy replaces a document content block with a short
// stub referencing the first record carrying the identical (SHA-256,
// canonical-payload) document, keeping the first occurrence intact.
type documentDedupStrategy struct{}

func (documentDedupStrategy) Name() string      { return "document-dedup" }
func (documentDedupStrategy) Tier() action.Tier { return action.TierAggressive }
func (documentDedupStrategy) Describe() string {
	return "Replaces repeated document blocks of 1KiB+ with a stub referencing the first occurrence."
}

func (s documentDedupStrategy) Propose(records []record.Record, opts Options) []action.Action {
	minBytes := opts.IntOption("min_bytes", documentDedupMinBytes)
	firstIndexByHash := make(map[string]int)

	var actions []action.Action
	for i := range records {
		rec := records[i]
		blocks := rec.ContentBlocks()
		if len(blocks) == 0 {
			continue
		}

		changed := false
		newBlocks := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			if b.Type != "document" {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			payload := documentPayload(b)
			if len(payload) < minBytes {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			hash := sha256Hex(payload)
			firstIdx, seen := firstIndexByHash[hash]
			if !seen {
				firstIndexByHash[hash] = i
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			newBlocks = append(newBlocks, map[string]any{
				"type":    "document",
				"content": documentStub(firstIdx),
			})
			changed = true
		}
		if !changed {
			continue
		}
		replacement, ok := withReplacedMessageContent(rec, newBlocks)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "replaced duplicate document block with a reference stub",
		})
	}
	return actions
}

func documentPayload(b record.MessageContentBlock) []byte {
	if len(b.Content) > 0 {
		return b.Content
	}
	return []byte(b.Text)
}

func documentStub(firstRecordIndex int) string {
	return fmt.Sprintf("[ctxguard: duplicate of the document at record index %d]", firstRecordIndex)
}

const (
	megaBlockMaxBytes  = 32 * 1024
	megaBlockHeadLines = 80
	megaBlockTailLines = 30
)

// megaBlockTrimStrategy truncates any single content block over 32KiB that
// no earlier strategy already reduced, using the same head/tail elision
// shape as tool-output-trim but with an 80/30-line window. It is the last
// block-oriented strategy so it only ever sees what survived the others.
type megaBlockTrimStrategy struct{}

func (megaBlockTrimStrategy) Name() string      { return "mega-block-trim" }
func (megaBlockTrimStrategy) Tier() action.Tier { return action.TierAggressive }
func (megaBlockTrimStrategy) Describe() string {
	return "Safety-net trim for any remaining content block over 32KiB, regardless of block type."
}

func (s megaBlockTrimStrategy) Propose(records []record.Record, opts Options) []action.Action {
	maxBytes := opts.IntOption("max_bytes", megaBlockMaxBytes)
	headLines := opts.IntOption("head_lines", megaBlockHeadLines)
	tailLines := opts.IntOption("tail_lines", megaBlockTailLines)

	var actions []action.Action
	for i := range records {
		rec := records[i]
		blocks := rec.ContentBlocks()
		if len(blocks) == 0 {
			continue
		}

		changed := false
		newBlocks := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			text := blockPrimaryText(b)
			if len(text) <= maxBytes {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			trimmed, ok := trimLines(text, headLines, tailLines)
			if !ok {
				newBlocks = append(newBlocks, blockToMap(b))
				continue
			}
			m := blockToMap(b)
			if _, hasText := m["text"]; hasText {
				m["text"] = trimmed
			} else {
				m["content"] = trimmed
			}
			m["ctxguardOrigBytes"] = len(text)
			newBlocks = append(newBlocks, m)
			changed = true
		}
		if !changed {
			continue
		}
		replacement, ok := withReplacedMessageContent(rec, newBlocks)
		if !ok {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        rec.UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "trimmed an oversized content block not reduced by an earlier strategy",
		})
	}
	return actions
}

func blockPrimaryText(b record.MessageContentBlock) string {
	if b.Text != "" {
		return b.Text
	}
	return contentText(b.Content)
}

// envelopeFieldCandidates are the top-level fields ctxguard considers for
// envelope-strip: ambient, per-process identifiers the host agent stamps
// on every record it writes during one run.
var envelopeFieldCandidates = []string{"cwd", "version", "gitBranch", "userType", "sessionSlug"}

// envelopeStripStrategy removes any of the envelopeFieldCandidates whose
// value is constant across every record carrying it, then stamps that
// constant value set onto the first surviving record as a synthetic
// header annotation so the information isn't lost, only deduplicated. It
// runs last because it must observe the full remaining record set before
// deciding which fields are actually constant.
type envelopeStripStrategy struct{}

func (envelopeStripStrategy) Name() string      { return "envelope-strip" }
func (envelopeStripStrategy) Tier() action.Tier { return action.TierAggressive }
func (envelopeStripStrategy) Describe() string {
	return "Hoists constant envelope fields (cwd, version, branch) into a header field on the first record; no separate header record is added."
}

func (s envelopeStripStrategy) Propose(records []record.Record, opts Options) []action.Action {
	if len(records) == 0 {
		return nil
	}

	raws := make([]map[string]json.RawMessage, len(records))
	distinct := make(map[string]map[string]json.RawMessage, len(envelopeFieldCandidates))
	for _, f := range envelopeFieldCandidates {
		distinct[f] = make(map[string]json.RawMessage)
	}

	for i := range records {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(records[i].Bytes(), &raw); err != nil {
			raw = map[string]json.RawMessage{}
		}
		raws[i] = raw
		for _, f := range envelopeFieldCandidates {
			if v, ok := raw[f]; ok {
				distinct[f][string(v)] = v
			}
		}
	}

	constant := make(map[string]json.RawMessage)
	for _, f := range envelopeFieldCandidates {
		if vals := distinct[f]; len(vals) == 1 {
			for _, v := range vals {
				constant[f] = v
			}
		}
	}
	if len(constant) == 0 {
		return nil
	}

	headerValue, err := json.Marshal(constant)
	if err != nil {
		return nil
	}

	var actions []action.Action
	for i := range records {
		raw := raws[i]
		changed := false
		for f := range constant {
			if _, ok := raw[f]; ok {
				delete(raw, f)
				changed = true
			}
		}
		if i == 0 {
			raw["ctxguardEnvelopeHeader"] = headerValue
			changed = true
		}
		if !changed {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		replacement, err := record.Parse(data)
		if err != nil {
			continue
		}
		actions = append(actions, action.Action{
			Kind:        action.Replace,
			UUID:        records[i].UUID,
			Replacement: &replacement,
			Strategy:    s.Name(),
			Reason:      "hoisted constant envelope field(s) out of the per-record repeat",
		})
	}
	return actions
}
