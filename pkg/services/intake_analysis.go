package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/mapping"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
	"github.com/ekaya-inc/ekaya-intake/pkg/rules"
)

// seedContext writes the entries every reasoning call starts from.
func (s *intakeService) seedContext(ctx context.Context, sess *models.ImportSession, route router.Result, res *extraction.Result, schema *models.DestinationSchema) error {
	sample := fmt.Sprintf("Source %q (%s, %s): %s.\n\n%s",
		sess.Filename, route.SourceType, route.MIMEType, res.Describe(), res.RawSample)
	if err := s.appendContext(ctx, sess, models.ContextKindSourceSample, sample); err != nil {
		return err
	}
	if err := s.appendContext(ctx, sess, models.ContextKindSchema, schema.Describe()); err != nil {
		return err
	}

	patterns := s.lookupPatterns(ctx, schema, sess.SourceFields)
	if len(patterns) == 0 {
		return nil
	}
	fields := make([]string, 0, len(patterns))
	for f := range patterns {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Previously confirmed mappings for these columns:\n")
	for _, f := range fields {
		p := patterns[f]
		fmt.Fprintf(&b, "- %q -> %q (confirmed %d time(s))\n", f, p.TargetField, p.TimesConfirmed)
	}
	return s.appendContext(ctx, sess, models.ContextKindLearnedPatterns, b.String())
}

// lookupPatterns returns learned patterns keyed by source field. The learned
// store only biases scores, so a lookup failure is logged and ignored.
func (s *intakeService) lookupPatterns(ctx context.Context, schema *models.DestinationSchema, fields []string) map[string]*models.LearnedPattern {
	if s.deps.Patterns == nil || len(fields) == 0 {
		return nil
	}
	bySignature := make(map[string]string, len(fields))
	signatures := make([]string, 0, len(fields))
	for _, f := range fields {
		sig := mapping.Signature(schema.Name, f)
		if _, dup := bySignature[sig]; !dup {
			signatures = append(signatures, sig)
		}
		bySignature[sig] = f
	}

	found, err := s.deps.Patterns.Lookup(ctx, signatures)
	if err != nil {
		s.logger.Warn("Learned pattern lookup failed", zap.Error(err))
		return nil
	}

	out := make(map[string]*models.LearnedPattern, len(found))
	for _, f := range fields {
		if p := found[mapping.Signature(schema.Name, f)]; p != nil {
			out[f] = p
		}
	}
	return out
}

// analyze runs one reasoning round over the full context and advances the
// session to round_pending, awaiting_approval or failed.
func (s *intakeService) analyze(runCtx context.Context, sess *models.ImportSession, schema *models.DestinationSchema) error {
	sess.LastError = ""

	reasonCtx, cancel := context.WithTimeout(llm.WithSessionContext(runCtx, sess.ID, sess.RoundNumber), s.cfg.ReasoningTimeout)
	reply, err := s.deps.Reasoner.Reason(reasonCtx, sess.Context)
	timedOut := errors.Is(reasonCtx.Err(), context.DeadlineExceeded)
	cancel()

	if cerr := s.discardIfCancelled(runCtx, sess); cerr != nil {
		return cerr
	}
	if err != nil {
		kind := apperrors.ErrReasoning
		if timedOut || errors.Is(err, context.DeadlineExceeded) || llm.GetErrorType(err) == llm.ErrorTypeTimeout {
			kind = apperrors.ErrReasoningTimeout
		}
		sess.LastError = apperrors.Code(kind)
		s.logger.Warn("Reasoning round failed",
			zap.String("session_id", sess.ID.String()),
			zap.Int("round", sess.RoundNumber),
			zap.String("code", sess.LastError),
			zap.Error(err))
		if saveErr := s.save(runCtx, sess); saveErr != nil {
			return saveErr
		}
		return apperrors.NewSessionError(kind, sess.ID.String(), sess.ContentFingerprint, err)
	}
	if reply == nil {
		reply = &models.ReasoningReply{}
	}

	patterns := s.lookupPatterns(runCtx, schema, sess.SourceFields)
	candidates := s.mergeCandidates(sess, schema, reply, patterns)

	var limit float64
	if sess.SourceType == models.SourceTypeFreeText && !sess.HasUserAnswer() {
		limit = extraction.FreeTextConfidenceCap
	}
	resolved := make(map[string]bool, len(sess.Decisions))
	for _, d := range sess.Decisions {
		if d.Resolved {
			resolved[d.SourceField] = true
		}
	}

	sess.Proposals = mapping.Score(mapping.ScoreInput{
		Candidates:        candidates,
		AdapterConfidence: sess.FieldConfidence,
		Coverage:          sess.Coverage,
		Patterns:          patterns,
		Resolved:          resolved,
		Schema:            schema,
		Cap:               limit,
	})
	sess.Decisions = rules.SyncDecisions(sess.Proposals, sess.Decisions)
	sess.AggregateScore = mapping.Aggregate(sess.Proposals)
	sess.Risk = mapping.Risk(sess.AggregateScore)

	outcome := rules.Apply(projectItems(sess.SourceItems, reply.Items, sess.Proposals, sess.HasUserAnswer()))
	sess.Items = outcome.Items
	sess.Flags = outcome.Flags

	below := mapping.BelowThreshold(sess.Proposals)
	s.logger.Info("Analysis round complete",
		zap.String("session_id", sess.ID.String()),
		zap.Int("round", sess.RoundNumber),
		zap.Int("questions", len(reply.Questions)),
		zap.Int("below_threshold", len(below)),
		zap.Float64("aggregate", sess.AggregateScore),
		zap.String("risk", string(sess.Risk)))

	if reply.HasQuestions() || len(below) > 0 || sess.Risk != models.RiskLow {
		return s.openRound(runCtx, sess, roundQuestions(sess, reply))
	}

	if err := s.transition(sess, models.SessionStatusGateCheck); err != nil {
		return err
	}
	gate := rules.Evaluate(sess.Decisions, sess.Flags)
	if !gate.Passed() {
		s.logger.Info("Gate check blocked",
			zap.String("session_id", sess.ID.String()),
			zap.Strings("unresolved_columns", gate.UnresolvedColumns),
			zap.Int("gating_flags", len(gate.GatingFlags)))
		return s.openRound(runCtx, sess, gate.Questions)
	}

	if err := s.transition(sess, models.SessionStatusAwaitingApproval); err != nil {
		return err
	}
	sess.Questions = nil
	sess.Summary = BuildSummary(sess, outcome.Derivations)
	return s.save(runCtx, sess)
}

// openRound parks the session in round_pending with questions, or fails it
// when the round ceiling is reached.
func (s *intakeService) openRound(ctx context.Context, sess *models.ImportSession, questions []models.PendingQuestion) error {
	if sess.RoundNumber >= s.cfg.MaxRounds {
		return s.fail(ctx, sess, models.FailureReasonNeedsManualReview, apperrors.ErrRoundLimitExceeded,
			fmt.Errorf("still unresolved after %d round(s)", sess.RoundNumber))
	}
	if err := s.transition(sess, models.SessionStatusRoundPending); err != nil {
		return err
	}
	sess.Questions = questions
	sess.Summary = nil

	var b strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&b, "[%s] %s\n", q.ID, q.Text)
	}
	if err := s.appendContext(ctx, sess, models.ContextKindQuestions, b.String()); err != nil {
		return err
	}
	return s.save(ctx, sess)
}

// mergeCandidates folds the reasoner's mappings into the session's current
// candidates. A confirmed proposal is never replaced, targets must exist in
// the schema, and only fields the adapter produced are considered.
func (s *intakeService) mergeCandidates(sess *models.ImportSession, schema *models.DestinationSchema, reply *models.ReasoningReply, patterns map[string]*models.LearnedPattern) []mapping.Candidate {
	var candidates []mapping.Candidate
	if len(sess.Proposals) > 0 {
		candidates = mapping.FromProposals(sess.Proposals)
	} else {
		candidates = mapping.Propose(sess.SourceFields, schema, patterns)
	}

	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		index[c.SourceField] = i
	}
	userAnswered := sess.HasUserAnswer()

	for _, m := range reply.Mappings {
		i, ok := index[m.SourceField]
		if !ok {
			s.logger.Debug("Ignoring mapping for unknown source field", zap.String("source_field", m.SourceField))
			continue
		}
		c := &candidates[i]
		if c.Status == models.ProposalStatusConfirmed {
			continue
		}

		var target *string
		if m.TargetField != nil && strings.TrimSpace(*m.TargetField) != "" {
			t := strings.TrimSpace(*m.TargetField)
			if !schema.HasField(t) {
				s.logger.Debug("Ignoring mapping to unknown target field",
					zap.String("source_field", m.SourceField),
					zap.String("target_field", t))
				continue
			}
			target = &t
		}

		conf := clampUnit(m.Confidence)
		c.TargetField = target
		c.ReasonerConfidence = &conf
		c.Reasoning = m.Reasoning
		c.Status = models.ProposalStatusProposed
		if m.FromUserAnswer && userAnswered && target != nil {
			c.Status = models.ProposalStatusConfirmed
		}
	}
	return candidates
}

// projectItems rebuilds the working items from the extracted ones. Values of
// columns mapped to the core fields replace what the adapter guessed; the
// reasoner's per-row values only fill gaps. Once the user has answered, the
// reasoner may restate the quantity of a part whose rows disagree.
func projectItems(source []models.CandidateItem, replyItems []models.ReasoningItem, proposals []models.MappingProposal, userAnswered bool) []models.CandidateItem {
	items := models.CloneItems(source)

	core := make(map[string]string, 3)
	for _, p := range proposals {
		switch t := p.Target(); t {
		case models.TargetFieldPartNumber, models.TargetFieldSerialNumber, models.TargetFieldQuantity:
			if _, taken := core[t]; !taken {
				core[t] = p.SourceField
			}
		}
	}

	for i := range items {
		it := &items[i]
		if src, ok := core[models.TargetFieldPartNumber]; ok {
			it.PartNumber = strings.TrimSpace(it.Fields[src])
		}
		if src, ok := core[models.TargetFieldSerialNumber]; ok {
			it.SerialNumber = strings.TrimSpace(it.Fields[src])
		}
		if src, ok := core[models.TargetFieldQuantity]; ok {
			it.Quantity = nil
			if n, ok := extraction.ParseQuantity(it.Fields[src]); ok {
				it.Quantity = &n
			}
		}
	}

	byRow := make(map[int]models.ReasoningItem, len(replyItems))
	for _, ri := range replyItems {
		byRow[ri.Row] = ri
	}
	if userAnswered {
		items = settleConflicts(items, byRow)
	}

	for i := range items {
		it := &items[i]
		ri, ok := byRow[it.Row]
		if !ok {
			continue
		}
		if it.PartNumber == "" && ri.PartNumber != "" {
			it.PartNumber = strings.TrimSpace(ri.PartNumber)
		}
		if it.SerialNumber == "" && ri.SerialNumber != "" {
			it.SerialNumber = strings.TrimSpace(ri.SerialNumber)
		}
		if it.Quantity == nil && ri.Quantity != nil && *ri.Quantity >= 0 {
			q := *ri.Quantity
			it.Quantity = &q
		}
	}
	return items
}

// settleConflicts applies restated quantities to parts whose rows disagree.
// When at least one row of such a part is restated, the part's other rows
// fold into the first restated row, which keeps their serial numbers.
func settleConflicts(items []models.CandidateItem, byRow map[int]models.ReasoningItem) []models.CandidateItem {
	contested := rules.ConflictingParts(items)
	if len(contested) == 0 {
		return items
	}

	restated := make(map[int]bool)
	head := make(map[string]int)
	for i := range items {
		it := &items[i]
		part := strings.TrimSpace(it.PartNumber)
		if !contested[part] {
			continue
		}
		ri, ok := byRow[it.Row]
		if !ok || ri.Quantity == nil || *ri.Quantity < 0 {
			continue
		}
		q := *ri.Quantity
		it.Quantity = &q
		restated[i] = true
		if _, seen := head[part]; !seen {
			head[part] = i
		}
	}
	if len(head) == 0 {
		return items
	}

	folded := make(map[string][]string)
	for part, h := range head {
		folded[part] = appendDistinct(nil, items[h].SerialNumbers...)
		folded[part] = appendDistinct(folded[part], items[h].SerialNumber)
	}
	out := make([]models.CandidateItem, 0, len(items))
	for i, it := range items {
		part := strings.TrimSpace(it.PartNumber)
		if _, settled := head[part]; settled && !restated[i] {
			folded[part] = appendDistinct(folded[part], it.SerialNumbers...)
			folded[part] = appendDistinct(folded[part], it.SerialNumber)
			continue
		}
		out = append(out, it)
	}
	for i := range out {
		it := &out[i]
		part := strings.TrimSpace(it.PartNumber)
		h, settled := head[part]
		if !settled || it.Row != items[h].Row || len(folded[part]) < 2 {
			continue
		}
		it.SerialNumbers = folded[part]
		it.SerialNumber = ""
	}
	return out
}

func appendDistinct(list []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, have := range list {
			if have == v {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}

// roundQuestions lists what the user is asked in the next round: the
// reasoner's questions, weak mappings, then undecided unmapped columns.
func roundQuestions(sess *models.ImportSession, reply *models.ReasoningReply) []models.PendingQuestion {
	var qs []models.PendingQuestion
	for i, text := range reply.Questions {
		qs = append(qs, models.PendingQuestion{
			ID:   fmt.Sprintf("clarify:%d:%d", sess.RoundNumber, i+1),
			Kind: models.QuestionKindClarification,
			Text: text,
		})
	}
	for _, p := range sess.Proposals {
		if !p.IsMapped() || p.Confidence >= mapping.AcceptanceThreshold {
			continue
		}
		qs = append(qs, models.PendingQuestion{
			ID:          "low_confidence:" + p.SourceField,
			Kind:        models.QuestionKindLowConfidence,
			SourceField: p.SourceField,
			Text: fmt.Sprintf("Column %q looks like %q (confidence %.2f). Is that right? If not, which field is it?",
				p.SourceField, p.Target(), p.Confidence),
		})
	}
	return append(qs, rules.UnmappedQuestions(sess.UnresolvedDecisions())...)
}

// BuildSummary assembles the approval summary and its digest.
func BuildSummary(sess *models.ImportSession, derivations []models.SummaryDerivation) *models.ApprovalSummary {
	sum := &models.ApprovalSummary{
		ItemCount:      len(sess.Items),
		Derivations:    derivations,
		Flags:          sess.Flags,
		AggregateScore: sess.AggregateScore,
		Risk:           sess.Risk,
	}

	parts := make(map[string]bool)
	for _, it := range sess.Items {
		if it.PartNumber != "" {
			parts[it.PartNumber] = true
		}
		sum.TotalQuantity += itemQuantity(it)
	}
	sum.PartCount = len(parts)

	for _, p := range sess.Proposals {
		if !p.IsMapped() {
			continue
		}
		sum.Mappings = append(sum.Mappings, models.SummaryMapping{
			SourceField: p.SourceField,
			TargetField: p.Target(),
			Confidence:  p.Confidence,
			Status:      string(p.Status),
		})
	}
	for _, d := range sess.Decisions {
		if sum.Dispositions == nil {
			sum.Dispositions = make(map[string]models.Disposition, len(sess.Decisions))
		}
		sum.Dispositions[d.SourceField] = d.Disposition
	}

	sum.Digest = sum.ComputeDigest()
	return sum
}

// itemQuantity is the number of units a committed item stands for. A line
// with neither a quantity nor serials counts as one unit.
func itemQuantity(it models.CandidateItem) int {
	switch {
	case it.Quantity != nil:
		return *it.Quantity
	case len(it.SerialNumbers) > 0:
		return len(it.SerialNumbers)
	default:
		return 1
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
