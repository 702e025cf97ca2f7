package adapter

import (
	"context"
	"fmt"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Passthrough covers sites whose replayed response already is the full
// resume document (duolie, shixiseng, 51job, liepin). No attachment.
type Passthrough struct{}

func (p *Passthrough) Name() string { return "passthrough" }

func (p *Passthrough) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	if in.Replay == nil || in.Replay.JSONBody == nil {
		return nil, fmt.Errorf("passthrough: no replay body for %s", in.Request.URL)
	}
	return baseEvent(in, in.Replay.JSONBody), nil
}
