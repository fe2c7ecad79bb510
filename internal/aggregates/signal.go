package aggregates

// SignalOutcome is one realized (signal, was-it-correct) pair used to
// roll up confidence-accuracy per signal type.
type SignalOutcome struct {
	SignalType string
	Confidence float64
	Correct    bool
}

// SignalRollup is the per-signal-type aggregate, one signal_performance
// row: how often a signal type of this kind fired, how often it was
// right, and how well its confidence score tracked actual correctness.
type SignalRollup struct {
	SignalType         string
	TotalSignals       int
	CorrectSignals     int
	ConfidenceAccuracy float64
}

// RollupBySignalType buckets outcomes by SignalType and computes each
// bucket's confidence-accuracy: the mean confidence of correct
// predictions minus the mean confidence of incorrect ones, clamped to
// [0,1]. A signal type whose confidence reliably separates correct from
// incorrect calls scores near 1; one whose confidence is uninformative
// scores near 0.
func RollupBySignalType(outcomes []SignalOutcome) map[string]SignalRollup {
	type acc struct {
		total, correct           int
		correctConfSum          float64
		incorrectConfSum        float64
		incorrectCount          int
	}
	buckets := map[string]*acc{}
	for _, o := range outcomes {
		a, ok := buckets[o.SignalType]
		if !ok {
			a = &acc{}
			buckets[o.SignalType] = a
		}
		a.total++
		if o.Correct {
			a.correct++
			a.correctConfSum += o.Confidence
		} else {
			a.incorrectCount++
			a.incorrectConfSum += o.Confidence
		}
	}

	out := make(map[string]SignalRollup, len(buckets))
	for signalType, a := range buckets {
		var accuracy float64
		if a.correct > 0 || a.incorrectCount > 0 {
			var correctMean, incorrectMean float64
			if a.correct > 0 {
				correctMean = a.correctConfSum / float64(a.correct)
			}
			if a.incorrectCount > 0 {
				incorrectMean = a.incorrectConfSum / float64(a.incorrectCount)
			}
			accuracy = correctMean - incorrectMean
		}
		if accuracy < 0 {
			accuracy = 0
		}
		if accuracy > 1 {
			accuracy = 1
		}
		out[signalType] = SignalRollup{
			SignalType:         signalType,
			TotalSignals:       a.total,
			CorrectSignals:     a.correct,
			ConfidenceAccuracy: accuracy,
		}
	}
	return out
}
