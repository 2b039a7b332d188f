// Package fsrs implements the spaced-repetition scheduler: given a card's
// memory state, a rating, and the current time, it produces the next memory
// state and due date. The model follows the FSRS stability/difficulty
// family. Output is fully deterministic, so reviews can be replayed from
// the review log.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// Params holds the tunable inputs of the scheduler.
type Params struct {
	Weights            [21]float64
	RequestedRetention float64 // target recall probability at the due date
	MaximumInterval    int     // days
}

// DefaultParams returns the default weight vector with 90% requested
// retention and a 100-year interval cap.
func DefaultParams() Params {
	return Params{
		Weights:            DefaultWeights,
		RequestedRetention: 0.9,
		MaximumInterval:    36500,
	}
}

// Scheduler computes review transitions. It carries no mutable state and
// is safe for concurrent use.
type Scheduler struct {
	w           [21]float64
	decay       float64 // -w[20]
	factor      float64 // 0.9^(1/decay) - 1
	retention   float64
	maxInterval int
}

// NewScheduler validates the params and precomputes the decay constants.
func NewScheduler(p Params) (*Scheduler, error) {
	if p.Weights == ([21]float64{}) {
		p.Weights = DefaultWeights
	}
	if err := validateWeights(p.Weights); err != nil {
		return nil, fmt.Errorf("scheduler weights: %w", err)
	}
	if p.RequestedRetention <= 0 || p.RequestedRetention >= 1 {
		return nil, fmt.Errorf("requested retention %f outside (0, 1)", p.RequestedRetention)
	}
	if p.MaximumInterval < 1 {
		return nil, fmt.Errorf("maximum interval %d must be at least 1 day", p.MaximumInterval)
	}
	decay := -p.Weights[20]
	return &Scheduler{
		w:           p.Weights,
		decay:       decay,
		factor:      math.Pow(0.9, 1.0/decay) - 1.0,
		retention:   p.RequestedRetention,
		maxInterval: p.MaximumInterval,
	}, nil
}

// ReviewCard applies one review to the card at the given time. It returns
// the updated card and the review log entry snapshotting the state before
// and after. The input card is not mutated. It fails before any state
// change when the rating is out of range or the card is soft-deleted.
func (s *Scheduler) ReviewCard(card domain.Card, rating domain.Rating, now time.Time, elapsedMs *int) (domain.Card, domain.ReviewLogEntry, error) {
	if !rating.IsValid() {
		return domain.Card{}, domain.ReviewLogEntry{}, &domain.ValidationError{
			Field: "rating",
			Msg:   fmt.Sprintf("must be 1..4, got %d", int(rating)),
		}
	}
	if card.IsDeleted {
		return domain.Card{}, domain.ReviewLogEntry{}, &domain.PreconditionError{
			Msg: fmt.Sprintf("card %s is deleted", card.ID),
		}
	}

	before := card.Snapshot()
	c := card

	if c.LastReviewAt == nil {
		// First review: seed stability and difficulty from the rating.
		c.Stability = s.initStability(rating)
		c.Difficulty = s.initDifficulty(rating, true)
		c.State = domain.StateLearning
	} else {
		// Cards ingested through sync may carry a stored stability of 0,
		// which the formulas below divide by and raise to negative powers.
		// Lift it to the floor first.
		c.Stability = clampStability(c.Stability)
		elapsedDays := now.Sub(*c.LastReviewAt).Hours() / 24.0
		if elapsedDays < 1 {
			c.Stability = s.shortTermStability(c.Stability, rating)
		} else {
			r := s.retrievability(elapsedDays, c.Stability)
			c.Stability = s.nextStability(c.Difficulty, c.Stability, r, rating)
		}
		c.Difficulty = s.nextDifficulty(c.Difficulty, rating)
		if rating == domain.Again {
			c.Lapses++
			c.State = domain.StateRelearning
		} else {
			c.State = domain.StateReview
		}
	}

	days := s.nextInterval(c.Stability)
	due := now.Add(time.Duration(days) * 24 * time.Hour)
	c.DueAt = &due
	t := now
	c.LastReviewAt = &t
	c.UpdatedAt = now

	if err := c.CheckInvariants(); err != nil {
		return domain.Card{}, domain.ReviewLogEntry{}, fmt.Errorf("scheduler produced invalid state: %w", err)
	}

	entry := domain.ReviewLogEntry{
		CardID:     c.ID,
		Rating:     rating,
		ReviewedAt: now,
		Before:     before,
		After:      c.Snapshot(),
		ElapsedMs:  elapsedMs,
	}
	return c, entry, nil
}

// Retrievability returns the predicted recall probability for the card at
// the given time, or 0 for an unreviewed card.
func (s *Scheduler) Retrievability(card domain.Card, now time.Time) float64 {
	if card.LastReviewAt == nil || card.Stability <= 0 {
		return 0
	}
	elapsed := now.Sub(*card.LastReviewAt).Hours() / 24.0
	return s.retrievability(elapsed, card.Stability)
}

// retrievability computes R(t, S) = (1 + FACTOR * t / S) ^ DECAY.
func (s *Scheduler) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+s.factor*elapsedDays/stability, s.decay)
}

// initStability returns S0(G) = clamp_s(w[G-1]).
func (s *Scheduler) initStability(r domain.Rating) float64 {
	return clampStability(s.w[r-1])
}

// initDifficulty returns D0(G) = w[4] - e^(w[5] * (G - 1)) + 1,
// clamped to [1, 10] unless the value feeds the mean-reversion target.
func (s *Scheduler) initDifficulty(r domain.Rating, clamp bool) float64 {
	d := s.w[4] - math.Exp(s.w[5]*float64(r-1)) + 1
	if clamp {
		return clampDifficulty(d)
	}
	return d
}

// nextInterval computes the next review interval in days:
// I(S) = round((S / FACTOR) * (retention^(1/DECAY) - 1)), clamped to
// [1, maxInterval].
func (s *Scheduler) nextInterval(stability float64) int {
	ivl := stability / s.factor * (math.Pow(s.retention, 1.0/s.decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > s.maxInterval {
		days = s.maxInterval
	}
	return days
}

// shortTermStability handles same-day reviews:
// SInc = e^(w[17] * (G - 3 + w[18])) * S^(-w[19]), floored at 1 for
// Good/Easy so a success never shrinks stability.
func (s *Scheduler) shortTermStability(stability float64, r domain.Rating) float64 {
	sInc := math.Exp(s.w[17]*(float64(r)-3+s.w[18])) * math.Pow(stability, -s.w[19])
	if r == domain.Good || r == domain.Easy {
		sInc = math.Max(sInc, 1.0)
	}
	return clampStability(stability * sInc)
}

// nextDifficulty applies linear damping plus mean reversion toward
// D0(Easy), clamped to [1, 10].
func (s *Scheduler) nextDifficulty(difficulty float64, r domain.Rating) float64 {
	deltaD := -s.w[6] * (float64(r) - 3)
	dPrime := difficulty + (10-difficulty)*deltaD/9
	d0Easy := s.initDifficulty(domain.Easy, false)
	return clampDifficulty(s.w[7]*d0Easy + (1-s.w[7])*dPrime)
}

func (s *Scheduler) nextStability(d, stab, r float64, rating domain.Rating) float64 {
	if rating == domain.Again {
		return s.nextForgetStability(d, stab, r)
	}
	return s.nextRecallStability(d, stab, r, rating)
}

// nextRecallStability grows stability after a successful recall:
// S' = S * (1 + e^w[8] * (11-D) * S^(-w[9]) * (e^((1-R)*w[10]) - 1)
//          * hardPenalty * easyBonus)
func (s *Scheduler) nextRecallStability(d, stab, r float64, rating domain.Rating) float64 {
	hardPenalty := 1.0
	if rating == domain.Hard {
		hardPenalty = s.w[15]
	}
	easyBonus := 1.0
	if rating == domain.Easy {
		easyBonus = s.w[16]
	}
	return clampStability(stab * (1 + math.Exp(s.w[8])*
		(11-d)*
		math.Pow(stab, -s.w[9])*
		(math.Exp((1-r)*s.w[10])-1)*
		hardPenalty*easyBonus))
}

// nextForgetStability shrinks stability after a lapse:
// S' = min(w[11] * D^(-w[12]) * ((S+1)^w[13] - 1) * e^((1-R)*w[14]),
//          S / e^(w[17] * w[18]))
// The second operand is strictly below S, so a lapse always decreases
// stability.
func (s *Scheduler) nextForgetStability(d, stab, r float64) float64 {
	long := s.w[11] *
		math.Pow(d, -s.w[12]) *
		(math.Pow(stab+1, s.w[13]) - 1) *
		math.Exp((1-r)*s.w[14])
	short := stab / math.Exp(s.w[17]*s.w[18])
	return clampStability(math.Min(long, short))
}

func clampStability(s float64) float64 {
	return math.Max(s, 0.001)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
