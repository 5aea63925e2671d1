package api

import (
	"encoding/json"

	"github.com/Borislavv/shared-handle/pkg/shared"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const statsPath = "/stats"

// Snapshot is the progress of a stress run as served on /stats.
type Snapshot struct {
	Workers    int          `json:"workers"`
	Iterations int          `json:"iterations"`
	Ops        int64        `json:"ops"`
	Running    bool         `json:"running"`
	Finished   bool         `json:"finished"`
	Error      string       `json:"error,omitempty"`
	Tracker    shared.Stats `json:"tracker"`
}

type StatsProvider interface {
	Snapshot() Snapshot
}

type StatsController struct {
	provider StatsProvider
}

func NewStatsController(provider StatsProvider) *StatsController {
	return &StatsController{provider: provider}
}

func (c *StatsController) Stats(ctx *fasthttp.RequestCtx) {
	b, err := json.Marshal(c.provider.Snapshot())
	if err != nil {
		log.Err(err).Msg("[stats] failed to marshal snapshot")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	_, _ = ctx.Write(b)
}

func (c *StatsController) AddRoute(r *router.Router) {
	r.GET(statsPath, c.Stats)
}
