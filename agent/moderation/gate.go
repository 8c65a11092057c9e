// Package moderation implements the safety gate applied to inbound user
// text and outbound agent text.
package moderation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type Verdict struct {
	Allowed bool
	Reasons []string
}

type Gate struct {
	classifier contractx.Classifier
}

func NewGate(classifier contractx.Classifier) *Gate {
	return &Gate{classifier: classifier}
}

// Check classifies text. Reasons hold the sorted flagged categories; a
// flagged result with no category is reported as "unspecified".
func (g *Gate) Check(ctx context.Context, text string) (Verdict, error) {
	res, err := g.classifier.Classify(ctx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: moderation: %v", contractx.ErrCollaboratorUnavailable, err)
	}

	reasons := make([]string, 0, len(res.Categories))
	for category, flagged := range res.Categories {
		if flagged {
			reasons = append(reasons, category)
		}
	}
	sort.Strings(reasons)

	if !res.Flagged && len(reasons) == 0 {
		return Verdict{Allowed: true}, nil
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "unspecified")
	}
	return Verdict{Allowed: false, Reasons: reasons}, nil
}

// Enforce runs Check and turns a rejection into the error of direction.
func (g *Gate) Enforce(ctx context.Context, direction Direction, text string) (Verdict, error) {
	v, err := g.Check(ctx, text)
	if err != nil {
		return v, err
	}
	if v.Allowed {
		return v, nil
	}
	if direction == Outbound {
		return v, contractx.ErrOutputRejected
	}
	return v, fmt.Errorf("%w! Your message violates our usage policies: %s",
		contractx.ErrInputRejected, strings.Join(v.Reasons, ", "))
}
