package group

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answersScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_answers_scored_total",
		Help: "Answers scored and recorded, by correctness.",
	}, []string{"correct"})

	duplicateSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_duplicate_submissions_total",
		Help: "Submissions short-circuited by the one-answer-per-question guard.",
	})

	timeoutSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_timeout_submissions_total",
		Help: "Synthesized no-answer submissions after a round deadline.",
	})
)
