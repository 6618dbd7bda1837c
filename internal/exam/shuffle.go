package exam

import (
	"math/rand/v2"

	"github.com/pavelanni/examdesk/internal/model"
)

// Sample draws up to n questions uniformly at random without replacement.
// The returned slice is in draw order and never aliases bank.
func Sample(r *rand.Rand, bank []model.Question, n int) []model.Question {
	if n > len(bank) {
		n = len(bank)
	}
	if n <= 0 {
		return nil
	}
	picked := make([]model.Question, 0, n)
	for _, i := range r.Perm(len(bank))[:n] {
		picked = append(picked, bank[i])
	}
	return picked
}

// ShuffleOptions permutes the four options of q and moves the correct
// designator so that it still names the originally correct text.
func ShuffleOptions(r *rand.Rand, q model.Question) model.SnapshotQuestion {
	perm := r.Perm(len(q.Options))
	sq := model.SnapshotQuestion{ID: q.ID, Text: q.Text}
	correct := q.Correct.Index()
	for slot, from := range perm {
		sq.Options[slot] = q.Options[from]
		if from == correct {
			sq.Correct = model.Options[slot]
		}
	}
	return sq
}

// Snapshot samples count questions from bank and shuffles each one's options.
func Snapshot(r *rand.Rand, bank []model.Question, count int) []model.SnapshotQuestion {
	picked := Sample(r, bank, count)
	snap := make([]model.SnapshotQuestion, 0, len(picked))
	for _, q := range picked {
		snap = append(snap, ShuffleOptions(r, q))
	}
	return snap
}
