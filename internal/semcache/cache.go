package semcache

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/repository"
	"github.com/bookline/bookline-backend/internal/session"
)

// Hit is a prior turn whose question is close enough to the current one to
// reuse its answer instead of paying for inference again.
type Hit struct {
	Answer     string
	Metadata   map[string]any
	Similarity float64
}

// Cache answers "has this user already asked something equivalent" using
// cosine similarity over stored turn embeddings. Search is read-only; writing
// turns into the context is the orchestrator's job.
type Cache struct {
	sessions  repository.SessionStore
	embedder  providers.EmbeddingProvider
	threshold float64
	log       *logrus.Logger
}

// New creates a semantic cache with the given similarity threshold.
func New(sessions repository.SessionStore, embedder providers.EmbeddingProvider, threshold float64, log *logrus.Logger) *Cache {
	return &Cache{
		sessions:  sessions,
		embedder:  embedder,
		threshold: threshold,
		log:       log,
	}
}

// Search returns the best cached turn at or above the threshold, or nil on a
// miss. Embedding failures degrade to a miss; a malformed stored vector only
// skips that turn.
func (c *Cache) Search(ctx context.Context, userID, question string) (*Hit, error) {
	sess, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil || len(sess.Context) == 0 {
		return nil, nil
	}

	vector, err := c.embedder.Embed(ctx, question)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Warn("embedding failed, treating cache search as miss")
		return nil, nil
	}

	var best *session.Turn
	bestScore := 0.0
	for i := range sess.Context {
		turn := &sess.Context[i]
		if len(turn.Vector) == 0 {
			continue
		}
		score, ok := Cosine(vector, turn.Vector)
		if !ok {
			c.log.WithField("user_id", userID).Warn("skipping turn with malformed vector")
			continue
		}
		// Strictly greater: the earliest turn wins on exact ties.
		if score > bestScore {
			bestScore = score
			best = turn
		}
	}

	if best == nil || bestScore < c.threshold {
		return nil, nil
	}

	return &Hit{
		Answer:     best.AssistantText,
		Metadata:   best.Metadata,
		Similarity: bestScore,
	}, nil
}

// Cosine computes cosine similarity between two vectors. The second return
// value is false when the vectors are unusable (mismatched length or zero
// magnitude).
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
